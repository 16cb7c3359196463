package database

import (
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/executor"
	"github.com/tegdb/tegdb/pkg/planner"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/storage"
	"github.com/tegdb/tegdb/pkg/types"
	"github.com/tegdb/tegdb/pkg/wal"
)

// Database é a fachada: abre o engine, mantém o cache de schemas, executa
// SQL e administra a transação explícita do usuário.
//
// O handle não pode ser compartilhado entre goroutines (single-writer,
// single-thread por contrato).
type Database struct {
	engine  *storage.StorageEngine
	schemas map[string]*catalog.TableSchema // lower(table) -> schema
	indexes map[string][]*catalog.IndexDef  // lower(table) -> defs

	registry   *executor.Registry
	extensions map[string]*Extension // Providers registrados (lower name)
	active     map[string]*Extension // Extensões ativadas por CREATE EXTENSION

	tx *storage.Transaction // Transação explícita (BEGIN ... COMMIT)

	schemaVersion uint64 // Incrementa a cada DDL; invalida planos preparados
}

// Open abre (ou cria) o banco endereçado por URL file:// ou caminho .teg,
// com as opções default.
func Open(dbURL string) (*Database, error) {
	return OpenWith(dbURL, wal.DefaultOptions())
}

// OpenWith abre com opções explícitas.
func OpenWith(dbURL string, opts wal.Options) (*Database, error) {
	path, err := ResolvePath(dbURL)
	if err != nil {
		return nil, err
	}

	engine, err := storage.Open(path, opts)
	if err != nil {
		return nil, err
	}

	db := &Database{
		engine:     engine,
		registry:   executor.NewRegistry(),
		extensions: make(map[string]*Extension),
		active:     make(map[string]*Extension),
	}

	if err := db.loadCatalog(); err != nil {
		engine.Close()
		return nil, err
	}
	return db, nil
}

// Close descarta a transação pendente (rollback) e fecha o engine.
func (db *Database) Close() error {
	db.tx = nil
	return db.engine.Close()
}

// CacheStats expõe os contadores do cache de valores do engine.
func (db *Database) CacheStats() storage.CacheStats {
	return db.engine.Stats()
}

// Tables lista as tabelas do catálogo em ordem alfabética.
func (db *Database) Tables() []string {
	var names []string
	for _, s := range db.schemas {
		names = append(names, s.Name)
	}
	sortStrings(names)
	return names
}

// Schema retorna o schema de uma tabela.
func (db *Database) Schema(table string) (*catalog.TableSchema, bool) {
	s, ok := db.schemas[strings.ToLower(table)]
	return s, ok
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// loadCatalog lê todas as chaves "__schema__" e "__index__" no open.
func (db *Database) loadCatalog() error {
	db.schemas = make(map[string]*catalog.TableSchema)
	db.indexes = make(map[string][]*catalog.IndexDef)

	prefix := []byte(catalog.SchemaKeyPrefix)
	it := db.engine.Scan(prefix, catalog.PrefixEnd(prefix))
	for it.Next() {
		data, err := it.Value()
		if err != nil {
			return err
		}
		schema, err := catalog.UnmarshalSchema(data)
		if err != nil {
			return err
		}
		db.schemas[strings.ToLower(schema.Name)] = schema
	}

	prefix = []byte(catalog.IndexKeyPrefix)
	it = db.engine.Scan(prefix, catalog.PrefixEnd(prefix))
	for it.Next() {
		data, err := it.Value()
		if err != nil {
			return err
		}
		def, err := catalog.UnmarshalIndexDef(data)
		if err != nil {
			return err
		}
		key := strings.ToLower(def.Table)
		db.indexes[key] = append(db.indexes[key], def)
	}
	return nil
}

// InTransaction reporta se há transação explícita aberta.
func (db *Database) InTransaction() bool { return db.tx != nil }

// Execute roda um statement que não produz linhas (DDL/DML/TX) e retorna a
// contagem de linhas afetadas.
func (db *Database) Execute(sqlText string, args ...types.Value) (int64, error) {
	stmt, err := sql.Parse(sqlText)
	if err != nil {
		return 0, err
	}
	return db.executeStmt(stmt, args)
}

// Query roda um SELECT. Com transação explícita aberta a sequência é lazy e
// toma a transação emprestada; em auto-commit o resultado é materializado e
// a transação implícita fecha antes do retorno.
func (db *Database) Query(sqlText string, args ...types.Value) (*executor.Rows, error) {
	stmt, err := sql.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*sql.SelectStmt)
	if !ok {
		return nil, &errors.SchemaError{Msg: "Query expects a SELECT statement"}
	}
	return db.querySelect(sel, args)
}

func (db *Database) querySelect(sel *sql.SelectStmt, args []types.Value) (*executor.Rows, error) {
	plan, err := db.plan(sel)
	if err != nil {
		return nil, err
	}
	return db.queryPlanned(plan, args)
}

// QueryStmt roda um SELECT já parseado (caminho do shell e de scripts).
func (db *Database) QueryStmt(stmt sql.Statement) (*executor.Rows, error) {
	sel, ok := stmt.(*sql.SelectStmt)
	if !ok {
		return nil, &errors.SchemaError{Msg: "QueryStmt expects a SELECT statement"}
	}
	return db.querySelect(sel, nil)
}

// ExecuteStmt roda um statement já parseado que não produz linhas.
func (db *Database) ExecuteStmt(stmt sql.Statement) (int64, error) {
	return db.executeStmt(stmt, nil)
}

func (db *Database) plan(stmt sql.Statement) (planner.Plan, error) {
	pl := planner.New(db.schemas, db.indexes)
	return pl.PlanStatement(stmt)
}

// executeStmt despacha o statement com a gestão de transação adequada.
func (db *Database) executeStmt(stmt sql.Statement, args []types.Value) (int64, error) {
	switch s := stmt.(type) {
	case *sql.BeginStmt:
		if db.tx != nil {
			return 0, &errors.TxStateError{Msg: "BEGIN inside an open transaction"}
		}
		tx, err := db.engine.Begin()
		if err != nil {
			return 0, err
		}
		db.tx = tx
		return 0, nil

	case *sql.CommitStmt:
		if db.tx == nil {
			return 0, &errors.TxStateError{Msg: "COMMIT without BEGIN"}
		}
		tx := db.tx
		db.tx = nil
		return 0, tx.Commit()

	case *sql.RollbackStmt:
		if db.tx == nil {
			return 0, &errors.TxStateError{Msg: "ROLLBACK without BEGIN"}
		}
		tx := db.tx
		db.tx = nil
		if err := tx.Rollback(); err != nil {
			return 0, err
		}
		// DDL desfeito some do storage; realinha o cache
		return 0, db.reloadAfterRollback()

	case *sql.SelectStmt:
		rows, err := db.querySelect(s, args)
		if err != nil {
			return 0, err
		}
		collected, err := rows.Collect()
		if err != nil {
			return 0, err
		}
		return int64(len(collected)), nil
	}

	// DML/DDL: roda na transação explícita ou numa implícita
	if db.tx != nil {
		return db.runInTx(db.tx, stmt, args)
	}

	tx, err := db.engine.Begin()
	if err != nil {
		return 0, err
	}
	n, err := db.runInTx(tx, stmt, args)
	if err != nil {
		tx.Rollback()
		db.reloadAfterRollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (db *Database) reloadAfterRollback() error {
	db.schemaVersion++
	return db.loadCatalog()
}

func (db *Database) runInTx(tx *storage.Transaction, stmt sql.Statement, args []types.Value) (int64, error) {
	switch s := stmt.(type) {
	case *sql.CreateTableStmt:
		return 0, db.createTable(tx, s)
	case *sql.DropTableStmt:
		return 0, db.dropTable(tx, s)
	case *sql.CreateIndexStmt:
		return 0, db.createIndex(tx, s)
	case *sql.DropIndexStmt:
		return 0, db.dropIndex(tx, s)
	case *sql.CreateExtensionStmt:
		return 0, db.createExtension(s)
	case *sql.DropExtensionStmt:
		return 0, db.dropExtension(s)
	case *sql.CopyStmt:
		return db.copyFrom(tx, s)
	}

	plan, err := db.plan(stmt)
	if err != nil {
		return 0, err
	}
	ex := executor.New(tx, db.registry, db.indexes)
	ex.SetParams(args)
	return ex.ExecuteDML(plan)
}
