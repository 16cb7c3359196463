package executor

import (
	"bytes"
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/planner"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/types"
)

// ExecuteDML roda Insert/Update/Delete e retorna a contagem de linhas.
func (ex *Executor) ExecuteDML(plan planner.Plan) (int64, error) {
	switch p := plan.(type) {
	case *planner.Insert:
		return ex.executeInsert(p)
	case *planner.Update:
		return ex.executeUpdate(p)
	case *planner.Delete:
		return ex.executeDelete(p)
	}
	return 0, &errors.SchemaError{Msg: "plan is not DML"}
}

func (ex *Executor) executeInsert(p *planner.Insert) (int64, error) {
	var count int64
	for _, rowExprs := range p.Rows {
		values, err := ex.bindInsertRow(p.Table, p.Columns, rowExprs)
		if err != nil {
			return count, err
		}
		if err := ex.InsertRow(p.Table, values); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// bindInsertRow resolve a lista de expressões na ordem das colunas do schema.
func (ex *Executor) bindInsertRow(schema *catalog.TableSchema, columns []string, exprs []sql.Expr) ([]types.Value, error) {
	values := make([]types.Value, len(schema.Columns))
	for i := range values {
		values[i] = types.NewNull()
	}

	if len(columns) == 0 {
		if len(exprs) != len(schema.Columns) {
			return nil, &errors.SchemaError{Table: schema.Name, Msg: "VALUES count does not match column count"}
		}
		for i, e := range exprs {
			v, err := ex.evalConstant(e)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	if len(exprs) != len(columns) {
		return nil, &errors.SchemaError{Table: schema.Name, Msg: "VALUES count does not match column list"}
	}
	for i, col := range columns {
		_, idx, ok := schema.Column(col)
		if !ok {
			return nil, &errors.ColumnNotFoundError{Table: schema.Name, Column: col}
		}
		v, err := ex.evalConstant(exprs[i])
		if err != nil {
			return nil, err
		}
		values[idx] = v
	}
	return values, nil
}

// InsertRow valida, mantém entradas de índice e grava a linha.
// Também usado pelo COPY.
func (ex *Executor) InsertRow(schema *catalog.TableSchema, values []types.Value) error {
	values = coerceRow(schema, values)

	data, err := catalog.EncodeRow(schema, values)
	if err != nil {
		return err
	}

	rowKey, err := catalog.BuildRowKey(schema, pkValuesOf(schema, values))
	if err != nil {
		return err
	}

	// Colisão de PK: conflict=Fail
	if _, exists, err := ex.tx.Get(rowKey); err != nil {
		return err
	} else if exists {
		return &errors.ConstraintViolationError{
			Kind: errors.PrimaryKeyViolation, Table: schema.Name,
			Column: pkColumnNames(schema), Value: string(rowKey),
		}
	}

	if err := ex.insertIndexEntries(schema, values, rowKey); err != nil {
		return err
	}

	return ex.tx.Set(rowKey, data)
}

// insertIndexEntries escreve entradas __unique__ e __idx__ da linha.
func (ex *Executor) insertIndexEntries(schema *catalog.TableSchema, values []types.Value, rowKey []byte) error {
	// Constraints UNIQUE: sonda e escreve "__unique__T:c:v" -> row key
	for _, col := range schema.UniqueColumns() {
		_, idx, _ := schema.Column(col.Name)
		v := values[idx]
		if v.IsNull() {
			continue // NULL não participa de unicidade
		}
		key := catalog.UniqueEntryKey(schema.Name, col.Name, v)
		holder, exists, err := ex.tx.Get(key)
		if err != nil {
			return err
		}
		if exists && !bytes.Equal(holder, rowKey) {
			return &errors.ConstraintViolationError{
				Kind: errors.UniqueViolation, Table: schema.Name, Column: col.Name, Value: v.String(),
			}
		}
		if err := ex.tx.Set(key, rowKey); err != nil {
			return err
		}
	}

	// Índices secundários: "__idx__T:i:v:rowkey" -> row key
	for _, def := range ex.indexes[strings.ToLower(schema.Name)] {
		_, idx, ok := schema.Column(def.Column)
		if !ok {
			continue
		}
		v := values[idx]
		if v.IsNull() {
			continue
		}
		if def.Unique {
			key := catalog.UniqueEntryKey(schema.Name, def.Column, v)
			holder, exists, err := ex.tx.Get(key)
			if err != nil {
				return err
			}
			if exists && !bytes.Equal(holder, rowKey) {
				return &errors.ConstraintViolationError{
					Kind: errors.UniqueViolation, Table: schema.Name, Column: def.Column, Value: v.String(),
				}
			}
			if err := ex.tx.Set(key, rowKey); err != nil {
				return err
			}
		}
		entryKey := catalog.SecondaryEntryKey(schema.Name, def.Name, v, rowKey)
		if err := ex.tx.Set(entryKey, rowKey); err != nil {
			return err
		}
	}
	return nil
}

// deleteIndexEntries remove todas as entradas derivadas da linha.
func (ex *Executor) deleteIndexEntries(schema *catalog.TableSchema, values []types.Value, rowKey []byte) error {
	for _, col := range schema.UniqueColumns() {
		_, idx, _ := schema.Column(col.Name)
		v := values[idx]
		if v.IsNull() {
			continue
		}
		if _, err := ex.tx.Delete(catalog.UniqueEntryKey(schema.Name, col.Name, v)); err != nil {
			return err
		}
	}
	for _, def := range ex.indexes[strings.ToLower(schema.Name)] {
		_, idx, ok := schema.Column(def.Column)
		if !ok {
			continue
		}
		v := values[idx]
		if v.IsNull() {
			continue
		}
		if def.Unique {
			if _, err := ex.tx.Delete(catalog.UniqueEntryKey(schema.Name, def.Column, v)); err != nil {
				return err
			}
		}
		if _, err := ex.tx.Delete(catalog.SecondaryEntryKey(schema.Name, def.Name, v, rowKey)); err != nil {
			return err
		}
	}
	return nil
}

type scannedRow struct {
	key    []byte
	values []types.Value
}

// materializeScan coleta as linhas do scan antes de mutar: o cursor da
// árvore não é estável sob escrita.
func (ex *Executor) materializeScan(plan planner.Plan) (*catalog.TableSchema, []scannedRow, error) {
	schema, _, source, err := ex.scanSource(plan)
	if err != nil {
		return nil, nil, err
	}
	var rows []scannedRow
	for {
		key, row, ok, err := source()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return schema, rows, nil
		}
		rows = append(rows, scannedRow{key: append([]byte(nil), key...), values: row})
	}
}

func (ex *Executor) executeUpdate(p *planner.Update) (int64, error) {
	schema, rows, err := ex.materializeScan(p.ScanPlan)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, r := range rows {
		newValues := append([]types.Value(nil), r.values...)
		for _, a := range p.Assignments {
			_, idx, ok := schema.Column(a.Column)
			if !ok {
				return count, &errors.ColumnNotFoundError{Table: schema.Name, Column: a.Column}
			}
			v, err := ex.ctx(schema, r.values).eval(a.Value)
			if err != nil {
				return count, err
			}
			newValues[idx] = v
		}
		newValues = coerceRow(schema, newValues)

		data, err := catalog.EncodeRow(schema, newValues)
		if err != nil {
			return count, err
		}

		newKey, err := catalog.BuildRowKey(schema, pkValuesOf(schema, newValues))
		if err != nil {
			return count, err
		}

		if !bytes.Equal(newKey, r.key) {
			// PK mudou: vira delete + insert
			if err := ex.deleteIndexEntries(schema, r.values, r.key); err != nil {
				return count, err
			}
			if _, err := ex.tx.Delete(r.key); err != nil {
				return count, err
			}
			if _, exists, err := ex.tx.Get(newKey); err != nil {
				return count, err
			} else if exists {
				return count, &errors.ConstraintViolationError{
					Kind: errors.PrimaryKeyViolation, Table: schema.Name,
					Column: pkColumnNames(schema), Value: string(newKey),
				}
			}
			if err := ex.insertIndexEntries(schema, newValues, newKey); err != nil {
				return count, err
			}
			if err := ex.tx.Set(newKey, data); err != nil {
				return count, err
			}
			count++
			continue
		}

		// Mesma linha: refaz entradas de índice cujo valor mudou
		if err := ex.updateIndexEntries(schema, r.values, newValues, r.key); err != nil {
			return count, err
		}
		if err := ex.tx.Set(r.key, data); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// updateIndexEntries: para cada coluna indexada/única cujo valor mudou,
// apaga a entrada antiga, sonda a nova com exclusão do próprio row key e
// grava a nova.
func (ex *Executor) updateIndexEntries(schema *catalog.TableSchema, oldValues, newValues []types.Value, rowKey []byte) error {
	probe := func(column string, v types.Value) error {
		key := catalog.UniqueEntryKey(schema.Name, column, v)
		holder, exists, err := ex.tx.Get(key)
		if err != nil {
			return err
		}
		if exists && !bytes.Equal(holder, rowKey) {
			return &errors.ConstraintViolationError{
				Kind: errors.UniqueViolation, Table: schema.Name, Column: column, Value: v.String(),
			}
		}
		return ex.tx.Set(key, rowKey)
	}

	for _, col := range schema.UniqueColumns() {
		_, idx, _ := schema.Column(col.Name)
		oldV, newV := oldValues[idx], newValues[idx]
		if oldV.Compare(newV) == 0 {
			continue
		}
		if !oldV.IsNull() {
			if _, err := ex.tx.Delete(catalog.UniqueEntryKey(schema.Name, col.Name, oldV)); err != nil {
				return err
			}
		}
		if !newV.IsNull() {
			if err := probe(col.Name, newV); err != nil {
				return err
			}
		}
	}

	for _, def := range ex.indexes[strings.ToLower(schema.Name)] {
		_, idx, ok := schema.Column(def.Column)
		if !ok {
			continue
		}
		oldV, newV := oldValues[idx], newValues[idx]
		if oldV.Compare(newV) == 0 {
			continue
		}
		if !oldV.IsNull() {
			if def.Unique {
				if _, err := ex.tx.Delete(catalog.UniqueEntryKey(schema.Name, def.Column, oldV)); err != nil {
					return err
				}
			}
			if _, err := ex.tx.Delete(catalog.SecondaryEntryKey(schema.Name, def.Name, oldV, rowKey)); err != nil {
				return err
			}
		}
		if !newV.IsNull() {
			if def.Unique {
				if err := probe(def.Column, newV); err != nil {
					return err
				}
			}
			if err := ex.tx.Set(catalog.SecondaryEntryKey(schema.Name, def.Name, newV, rowKey), rowKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ex *Executor) executeDelete(p *planner.Delete) (int64, error) {
	schema, rows, err := ex.materializeScan(p.ScanPlan)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, r := range rows {
		if err := ex.deleteIndexEntries(schema, r.values, r.key); err != nil {
			return count, err
		}
		if _, err := ex.tx.Delete(r.key); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// === Helpers ===

func pkValuesOf(schema *catalog.TableSchema, values []types.Value) []types.Value {
	pk := schema.PrimaryKey()
	out := make([]types.Value, len(pk))
	for i, col := range pk {
		_, idx, _ := schema.Column(col.Name)
		out[i] = values[idx]
	}
	return out
}

func pkColumnNames(schema *catalog.TableSchema) string {
	pk := schema.PrimaryKey()
	names := make([]string, len(pk))
	for i, col := range pk {
		names[i] = col.Name
	}
	return strings.Join(names, ",")
}

// coerceRow promove INTEGER para REAL em colunas REAL (coerção numérica do
// INSERT/UPDATE).
func coerceRow(schema *catalog.TableSchema, values []types.Value) []types.Value {
	for i := range schema.Columns {
		if schema.Columns[i].Type == types.TypeReal && values[i].Type == types.TypeInteger {
			values[i] = types.NewReal(float64(values[i].Int))
		}
	}
	return values
}
