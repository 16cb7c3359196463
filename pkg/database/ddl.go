package database

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/executor"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/storage"
	"github.com/tegdb/tegdb/pkg/types"
)

func (db *Database) createTable(tx *storage.Transaction, s *sql.CreateTableStmt) error {
	lower := strings.ToLower(s.Table)
	if _, exists := db.schemas[lower]; exists {
		return &errors.TableAlreadyExistsError{Name: s.Table}
	}

	cols := make([]catalog.Column, len(s.Columns))
	inlinePK := 0
	for i, def := range s.Columns {
		cols[i] = catalog.Column{
			Name:     def.Name,
			Type:     def.Type,
			Width:    def.Width,
			Nullable: !def.NotNull,
			Unique:   def.Unique,
		}
		if def.PrimaryKey {
			inlinePK++
			cols[i].PKPos = 1
			cols[i].Nullable = false
		}
	}

	switch {
	case inlinePK > 1:
		return &errors.SchemaError{Table: s.Table, Msg: "multiple inline PRIMARY KEY columns; use PRIMARY KEY(a, b)"}
	case inlinePK == 1 && len(s.PKColumns) > 0:
		return &errors.SchemaError{Table: s.Table, Msg: "inline and table-level PRIMARY KEY both declared"}
	case len(s.PKColumns) > 0:
		// PK composto: a ordem de declaração no PRIMARY KEY define a ordem
		// serializada da chave
		for pos, name := range s.PKColumns {
			found := false
			for i := range cols {
				if strings.EqualFold(cols[i].Name, name) {
					cols[i].PKPos = pos + 1
					cols[i].Nullable = false
					found = true
					break
				}
			}
			if !found {
				return &errors.ColumnNotFoundError{Table: s.Table, Column: name}
			}
		}
	}

	schema, err := catalog.NewTableSchema(s.Table, cols)
	if err != nil {
		return err
	}

	data, err := catalog.MarshalSchema(schema)
	if err != nil {
		return err
	}
	if err := tx.Set(catalog.SchemaKey(schema.Name), data); err != nil {
		return err
	}

	db.schemas[lower] = schema
	db.schemaVersion++
	return nil
}

// deletePrefix apaga todas as chaves com o prefixo dado dentro da transação.
func deletePrefix(tx *storage.Transaction, prefix []byte) error {
	// Coleta antes de mutar: o cursor do índice não é estável sob escrita
	var keys [][]byte
	it := tx.Scan(prefix, catalog.PrefixEnd(prefix))
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	for _, k := range keys {
		if _, err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) dropTable(tx *storage.Transaction, s *sql.DropTableStmt) error {
	lower := strings.ToLower(s.Table)
	schema, exists := db.schemas[lower]
	if !exists {
		return &errors.TableNotFoundError{Name: s.Table}
	}

	// Linhas, entradas de unicidade, entradas de índice e definições
	prefixes := [][]byte{
		catalog.RowKeyPrefix(schema.Name),
		[]byte(catalog.UniqueKeyPrefix + schema.Name + ":"),
		[]byte(catalog.IdxKeyPrefix + schema.Name + ":"),
		[]byte(catalog.IndexKeyPrefix + schema.Name + ":"),
	}
	for _, p := range prefixes {
		if err := deletePrefix(tx, p); err != nil {
			return err
		}
	}
	if _, err := tx.Delete(catalog.SchemaKey(schema.Name)); err != nil {
		return err
	}

	delete(db.schemas, lower)
	delete(db.indexes, lower)
	db.schemaVersion++
	return nil
}

func indexKindFromSQL(using string) (catalog.IndexKind, error) {
	switch using {
	case "", "BTREE":
		return catalog.KindBTree, nil
	case "HNSW":
		return catalog.KindVectorHnsw, nil
	case "IVF":
		return catalog.KindVectorIvf, nil
	case "LSH":
		return catalog.KindVectorLsh, nil
	}
	return 0, &errors.SchemaError{Msg: "unknown index kind " + using}
}

func (db *Database) createIndex(tx *storage.Transaction, s *sql.CreateIndexStmt) error {
	lower := strings.ToLower(s.Table)
	schema, exists := db.schemas[lower]
	if !exists {
		return &errors.TableNotFoundError{Name: s.Table}
	}
	col, colIdx, ok := schema.Column(s.Column)
	if !ok {
		return &errors.ColumnNotFoundError{Table: s.Table, Column: s.Column}
	}
	for _, def := range db.indexes[lower] {
		if strings.EqualFold(def.Name, s.Name) {
			return &errors.IndexAlreadyExistsError{Name: s.Name}
		}
	}

	kind, err := indexKindFromSQL(s.Using)
	if err != nil {
		return err
	}
	if kind != catalog.KindBTree && col.Type != types.TypeVector {
		return &errors.SchemaError{Table: s.Table, Msg: s.Using + " index requires a VECTOR column"}
	}

	def := &catalog.IndexDef{
		Name:   s.Name,
		Table:  schema.Name,
		Column: col.Name,
		Kind:   kind,
		Unique: s.Unique,
	}

	data, err := catalog.MarshalIndexDef(def)
	if err != nil {
		return err
	}
	if err := tx.Set(catalog.IndexDefKey(schema.Name, def.Name), data); err != nil {
		return err
	}

	// Backfill das linhas existentes
	var backfill []struct {
		key []byte
		val types.Value
	}
	it := tx.Scan(catalog.RowKeyPrefix(schema.Name), catalog.RowKeyEnd(schema.Name))
	for it.Next() {
		data, err := it.Value()
		if err != nil {
			return err
		}
		row, err := catalog.DecodeRow(schema, data)
		if err != nil {
			return err
		}
		v := row[colIdx]
		if v.IsNull() {
			continue
		}
		backfill = append(backfill, struct {
			key []byte
			val types.Value
		}{key: append([]byte(nil), it.Key()...), val: v})
	}

	seen := make(map[string][]byte)
	for _, b := range backfill {
		if def.Unique {
			enc := catalog.OrderedEncode(b.val)
			if holder, dup := seen[enc]; dup {
				return &errors.ConstraintViolationError{
					Kind: errors.UniqueViolation, Table: schema.Name,
					Column: col.Name, Value: b.val.String() + " (held by " + string(holder) + ")",
				}
			}
			seen[enc] = b.key
			if err := tx.Set(catalog.UniqueEntryKey(schema.Name, col.Name, b.val), b.key); err != nil {
				return err
			}
		}
		if err := tx.Set(catalog.SecondaryEntryKey(schema.Name, def.Name, b.val, b.key), b.key); err != nil {
			return err
		}
	}

	db.indexes[lower] = append(db.indexes[lower], def)
	db.schemaVersion++
	return nil
}

func (db *Database) dropIndex(tx *storage.Transaction, s *sql.DropIndexStmt) error {
	var def *catalog.IndexDef
	var tableLower string

	if s.Table != "" {
		tableLower = strings.ToLower(s.Table)
		for _, d := range db.indexes[tableLower] {
			if strings.EqualFold(d.Name, s.Name) {
				def = d
				break
			}
		}
	} else {
		// Sem ON <table>: procura o nome em todo o catálogo
		for tl, defs := range db.indexes {
			for _, d := range defs {
				if strings.EqualFold(d.Name, s.Name) {
					def = d
					tableLower = tl
					break
				}
			}
		}
	}
	if def == nil {
		return &errors.IndexNotFoundError{Name: s.Name}
	}

	if err := deletePrefix(tx, []byte(catalog.SecondaryPrefix(def.Table, def.Name))); err != nil {
		return err
	}

	if def.Unique {
		// Só remove as entradas __unique__ se a coluna não tem constraint
		// UNIQUE própria (que compartilha o namespace)
		schema := db.schemas[tableLower]
		col, _, _ := schema.Column(def.Column)
		if col == nil || !col.Unique {
			if err := deletePrefix(tx, []byte(catalog.UniqueKeyPrefix+def.Table+":"+def.Column+":")); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Delete(catalog.IndexDefKey(def.Table, def.Name)); err != nil {
		return err
	}

	defs := db.indexes[tableLower]
	for i, d := range defs {
		if d == def {
			db.indexes[tableLower] = append(defs[:i], defs[i+1:]...)
			break
		}
	}
	db.schemaVersion++
	return nil
}

// copyFrom importa um CSV: cada registro vira um INSERT tipado na transação
// que envolve o COPY.
func (db *Database) copyFrom(tx *storage.Transaction, s *sql.CopyStmt) (int64, error) {
	lower := strings.ToLower(s.Table)
	schema, exists := db.schemas[lower]
	if !exists {
		return 0, &errors.TableNotFoundError{Name: s.Table}
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return 0, fmt.Errorf("COPY: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(schema.Columns)

	ex := executor.New(tx, db.registry, db.indexes)
	var count int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("COPY %s: %w", s.Path, err)
		}

		values := make([]types.Value, len(schema.Columns))
		for i := range schema.Columns {
			v, err := parseCSVField(&schema.Columns[i], record[i])
			if err != nil {
				return count, err
			}
			values[i] = v
		}
		if err := ex.InsertRow(schema, values); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func parseCSVField(col *catalog.Column, field string) (types.Value, error) {
	if field == "" && col.Type != types.TypeText {
		return types.NewNull(), nil
	}
	switch col.Type {
	case types.TypeInteger:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return types.Value{}, &errors.SchemaError{Msg: col.Name + ": invalid INTEGER " + field}
		}
		return types.NewInteger(n), nil
	case types.TypeReal:
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return types.Value{}, &errors.SchemaError{Msg: col.Name + ": invalid REAL " + field}
		}
		return types.NewReal(f), nil
	case types.TypeVector:
		trimmed := strings.Trim(strings.TrimSpace(field), "[]")
		if trimmed == "" {
			return types.NewNull(), nil
		}
		parts := strings.Split(trimmed, ",")
		vec := make([]float64, len(parts))
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return types.Value{}, &errors.SchemaError{Msg: col.Name + ": invalid VECTOR element " + p}
			}
			vec[i] = f
		}
		return types.NewVector(vec), nil
	default:
		return types.NewText(field), nil
	}
}
