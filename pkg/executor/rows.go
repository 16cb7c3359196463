package executor

import (
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// Rows é a sequência lazy, finita e não-reiniciável de um SELECT.
// Ela toma emprestada a Transaction: consuma (ou descarte) antes do commit
// e não execute DML durante a iteração.
type Rows struct {
	cols  []string
	fetch func() ([]types.Value, bool, error)
	done  bool
}

// Columns retorna os nomes das colunas projetadas.
func (r *Rows) Columns() []string { return r.cols }

// Next produz a próxima linha; ok=false encerra a sequência.
func (r *Rows) Next() ([]types.Value, bool, error) {
	if r.done {
		return nil, false, nil
	}
	row, ok, err := r.fetch()
	if err != nil || !ok {
		r.done = true
		return nil, false, err
	}
	return row, true, nil
}

// Collect materializa o restante da sequência (conveniência para resultados
// pequenos).
func (r *Rows) Collect() ([][]types.Value, error) {
	var out [][]types.Value
	for {
		row, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

// Materialized embala linhas já computadas numa Rows.
func Materialized(cols []string, rows [][]types.Value) *Rows {
	i := 0
	return &Rows{
		cols: cols,
		fetch: func() ([]types.Value, bool, error) {
			if i >= len(rows) {
				return nil, false, nil
			}
			row := rows[i]
			i++
			return row, true, nil
		},
	}
}

// singleRow embala um resultado de uma linha (agregações).
func singleRow(cols []string, row []types.Value) *Rows {
	return Materialized(cols, [][]types.Value{row})
}

var errNotSelect = &errors.SchemaError{Msg: "plan does not produce rows"}
