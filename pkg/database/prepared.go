package database

import (
	"fmt"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/executor"
	"github.com/tegdb/tegdb/pkg/planner"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/types"
)

// Statement é um prepared statement: AST parseado uma vez, contagem de
// parâmetros validada no bind e, para SELECT, plano cacheado enquanto o
// catálogo não muda.
type Statement struct {
	db         *Database
	ast        sql.Statement
	paramCount int

	plan        planner.Plan
	planVersion uint64
}

// Prepare parseia e retorna o statement reutilizável.
func (db *Database) Prepare(sqlText string) (*Statement, error) {
	ast, params, err := sql.ParseWithParams(sqlText)
	if err != nil {
		return nil, err
	}
	return &Statement{db: db, ast: ast, paramCount: params}, nil
}

// ParamCount retorna o número de placeholders '?' do statement.
func (st *Statement) ParamCount() int { return st.paramCount }

func (st *Statement) bind(args []types.Value) error {
	if len(args) != st.paramCount {
		return &errors.SchemaError{Msg: fmt.Sprintf("statement expects %d parameter(s), got %d", st.paramCount, len(args))}
	}
	return nil
}

// Query executa um SELECT preparado.
func (st *Statement) Query(args ...types.Value) (*executor.Rows, error) {
	if err := st.bind(args); err != nil {
		return nil, err
	}
	sel, ok := st.ast.(*sql.SelectStmt)
	if !ok {
		return nil, &errors.SchemaError{Msg: "prepared statement is not a SELECT"}
	}

	// Plano cacheado vale enquanto nenhum DDL invalidou o catálogo
	if st.plan == nil || st.planVersion != st.db.schemaVersion {
		plan, err := st.db.plan(sel)
		if err != nil {
			return nil, err
		}
		st.plan = plan
		st.planVersion = st.db.schemaVersion
	}

	return st.db.queryPlanned(st.plan, args)
}

// Execute executa DML/DDL preparado e retorna linhas afetadas.
func (st *Statement) Execute(args ...types.Value) (int64, error) {
	if err := st.bind(args); err != nil {
		return 0, err
	}
	return st.db.executeStmt(st.ast, args)
}

// queryPlanned roda um plano de SELECT já pronto com a mesma disciplina de
// transação do Query.
func (db *Database) queryPlanned(plan planner.Plan, args []types.Value) (*executor.Rows, error) {
	if db.tx != nil {
		ex := executor.New(db.tx, db.registry, db.indexes)
		ex.SetParams(args)
		return ex.ExecuteSelect(plan)
	}

	tx, err := db.engine.Begin()
	if err != nil {
		return nil, err
	}
	ex := executor.New(tx, db.registry, db.indexes)
	ex.SetParams(args)
	rows, err := ex.ExecuteSelect(plan)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	collected, err := rows.Collect()
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return executor.Materialized(rows.Columns(), collected), nil
}

// Bind converte valores Go nativos para types.Value (conveniência da API).
func Bind(args ...any) ([]types.Value, error) {
	out := make([]types.Value, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			out[i] = types.NewNull()
		case int:
			out[i] = types.NewInteger(int64(v))
		case int64:
			out[i] = types.NewInteger(v)
		case float64:
			out[i] = types.NewReal(v)
		case string:
			out[i] = types.NewText(v)
		case []float64:
			out[i] = types.NewVector(v)
		case types.Value:
			out[i] = v
		default:
			return nil, &errors.SchemaError{Msg: fmt.Sprintf("cannot bind parameter of type %T", a)}
		}
	}
	return out, nil
}
