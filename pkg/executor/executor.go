package executor

import (
	"sort"
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/planner"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/storage"
	"github.com/tegdb/tegdb/pkg/types"
)

// Executor roda ExecutionPlans contra uma Transaction ativa.
type Executor struct {
	tx       *storage.Transaction
	registry *Registry
	indexes  map[string][]*catalog.IndexDef // lower(table) -> defs
	params   []types.Value
}

// New cria o executor para uma transação.
func New(tx *storage.Transaction, registry *Registry, indexes map[string][]*catalog.IndexDef) *Executor {
	return &Executor{tx: tx, registry: registry, indexes: indexes}
}

// SetParams instala os valores dos placeholders '?' do statement.
func (ex *Executor) SetParams(params []types.Value) {
	ex.params = params
}

func (ex *Executor) ctx(schema *catalog.TableSchema, row []types.Value) *evalContext {
	return &evalContext{schema: schema, row: row, params: ex.params, registry: ex.registry}
}

// evalConstant avalia uma expressão sem linha (literais/params/aritmética).
func (ex *Executor) evalConstant(e sql.Expr) (types.Value, error) {
	return ex.ctx(nil, nil).eval(e)
}

func (ex *Executor) evalLimit(e sql.Expr) (int64, error) {
	if e == nil {
		return -1, nil
	}
	v, err := ex.evalConstant(e)
	if err != nil {
		return 0, err
	}
	if v.Type != types.TypeInteger || v.Int < 0 {
		return 0, &errors.SchemaError{Msg: "LIMIT expects a non-negative integer"}
	}
	return v.Int, nil
}

// === Fontes de linha (rowKey + valores decodificados) ===

type rowSource func() (key []byte, row []types.Value, ok bool, err error)

func exhausted() (key []byte, row []types.Value, ok bool, err error) {
	return nil, nil, false, nil
}

func (ex *Executor) decodeRow(schema *catalog.TableSchema, data []byte) ([]types.Value, error) {
	return catalog.DecodeRow(schema, data)
}

// pkLookupSource resolve a row key e entrega no máximo uma linha.
func (ex *Executor) pkLookupSource(p *planner.PrimaryKeyLookup) (rowSource, error) {
	pkValues := make([]types.Value, len(p.PKValues))
	for i, e := range p.PKValues {
		v, err := ex.evalConstant(e)
		if err != nil {
			return nil, err
		}
		pkValues[i] = v
	}

	rowKey, err := catalog.BuildRowKey(p.Table, pkValues)
	if err != nil {
		return nil, err
	}

	done := false
	return func() ([]byte, []types.Value, bool, error) {
		if done {
			return exhausted()
		}
		done = true
		data, found, err := ex.tx.Get(rowKey)
		if err != nil || !found {
			return nil, nil, false, err
		}
		row, err := ex.decodeRow(p.Table, data)
		if err != nil {
			return nil, nil, false, err
		}
		return rowKey, row, true, nil
	}, nil
}

// tableScanSource percorre "<table>:" .. "<table>;" em ordem de chave.
func (ex *Executor) tableScanSource(schema *catalog.TableSchema) rowSource {
	it := ex.tx.Scan(catalog.RowKeyPrefix(schema.Name), catalog.RowKeyEnd(schema.Name))
	return func() ([]byte, []types.Value, bool, error) {
		if !it.Next() {
			return exhausted()
		}
		data, err := it.Value()
		if err != nil {
			return nil, nil, false, err
		}
		row, err := ex.decodeRow(schema, data)
		if err != nil {
			return nil, nil, false, err
		}
		return it.Key(), row, true, nil
	}
}

// indexScanSource segue entradas do índice até as row keys.
func (ex *Executor) indexScanSource(p *planner.SecondaryIndexScan) (rowSource, error) {
	prefix := []byte(catalog.SecondaryPrefix(p.Table.Name, p.Index.Name))
	if strings.HasPrefix(p.Index.Name, "__unique_constraint__") {
		// Entradas __unique__ têm formato próprio: chave por valor, valor = row key
		return ex.uniqueProbeSource(p)
	}

	start := append([]byte(nil), prefix...)
	end := catalog.PrefixEnd(prefix)

	switch {
	case p.Bounds.Equal != nil:
		v, err := ex.evalConstant(p.Bounds.Equal)
		if err != nil {
			return nil, err
		}
		start = append(start, catalog.OrderedEncode(v)...)
		start = append(start, ':')
		end = catalog.PrefixEnd(start)
	default:
		if p.Bounds.Lower != nil {
			v, err := ex.evalConstant(p.Bounds.Lower)
			if err != nil {
				return nil, err
			}
			start = append(start, catalog.OrderedEncode(v)...)
		}
		if p.Bounds.Upper != nil {
			v, err := ex.evalConstant(p.Bounds.Upper)
			if err != nil {
				return nil, err
			}
			upper := append(append([]byte(nil), prefix...), catalog.OrderedEncode(v)...)
			if p.Bounds.UpperInc {
				end = catalog.PrefixEnd(upper)
			} else {
				end = upper
			}
		}
	}

	it := ex.tx.Scan(start, end)
	stopped := false
	return func() ([]byte, []types.Value, bool, error) {
		if stopped {
			return exhausted()
		}
		for it.Next() {
			// O valor da entrada de índice é a row key
			rowKeyBytes, err := it.Value()
			if err != nil {
				return nil, nil, false, err
			}
			data, found, err := ex.tx.Get(rowKeyBytes)
			if err != nil {
				return nil, nil, false, err
			}
			if !found {
				continue // Entrada órfã não deveria existir; pula
			}
			row, err := ex.decodeRow(p.Table, data)
			if err != nil {
				return nil, nil, false, err
			}
			if p.Unique {
				// Igualdade em índice único: no máximo um match
				stopped = true
			}
			return rowKeyBytes, row, true, nil
		}
		return exhausted()
	}, nil
}

// uniqueProbeSource resolve uma igualdade via entrada __unique__ (um get).
func (ex *Executor) uniqueProbeSource(p *planner.SecondaryIndexScan) (rowSource, error) {
	v, err := ex.evalConstant(p.Bounds.Equal)
	if err != nil {
		return nil, err
	}
	probeKey := catalog.UniqueEntryKey(p.Table.Name, p.Index.Column, v)

	done := false
	return func() ([]byte, []types.Value, bool, error) {
		if done {
			return exhausted()
		}
		done = true
		rowKeyBytes, found, err := ex.tx.Get(probeKey)
		if err != nil || !found {
			return nil, nil, false, err
		}
		data, found, err := ex.tx.Get(rowKeyBytes)
		if err != nil || !found {
			return nil, nil, false, err
		}
		row, err := ex.decodeRow(p.Table, data)
		if err != nil {
			return nil, nil, false, err
		}
		return rowKeyBytes, row, true, nil
	}, nil
}

// scanSource monta a fonte bruta + filtro + limite de um plano de leitura.
func (ex *Executor) scanSource(plan planner.Plan) (*catalog.TableSchema, []sql.SelectItem, rowSource, error) {
	var schema *catalog.TableSchema
	var projection []sql.SelectItem
	var source rowSource
	var filter sql.Expr
	var limitExpr sql.Expr

	switch p := plan.(type) {
	case *planner.PrimaryKeyLookup:
		schema, projection, filter = p.Table, p.Projection, p.Filter
		src, err := ex.pkLookupSource(p)
		if err != nil {
			return nil, nil, nil, err
		}
		source = src
	case *planner.TableScan:
		schema, projection, filter, limitExpr = p.Table, p.Projection, p.Filter, p.Limit
		source = ex.tableScanSource(p.Table)
	case *planner.SecondaryIndexScan:
		schema, projection, filter, limitExpr = p.Table, p.Projection, p.Filter, p.Limit
		src, err := ex.indexScanSource(p)
		if err != nil {
			return nil, nil, nil, err
		}
		source = src
	default:
		return nil, nil, nil, errNotSelect
	}

	limit, err := ex.evalLimit(limitExpr)
	if err != nil {
		return nil, nil, nil, err
	}

	emitted := int64(0)
	filtered := func() ([]byte, []types.Value, bool, error) {
		if limit >= 0 && emitted >= limit {
			return exhausted()
		}
		for {
			key, row, ok, err := source()
			if err != nil || !ok {
				return nil, nil, false, err
			}
			match, err := ex.ctx(schema, row).evalBool(filter)
			if err != nil {
				return nil, nil, false, err
			}
			if !match {
				continue
			}
			emitted++
			return key, row, true, nil
		}
	}
	return schema, projection, filtered, nil
}

// === Projeção ===

func exprName(e sql.Expr) string {
	switch x := e.(type) {
	case *sql.ColumnRef:
		return x.Name
	case *sql.FuncCall:
		return x.Name
	default:
		return "expr"
	}
}

func projectionColumns(schema *catalog.TableSchema, items []sql.SelectItem) []string {
	var cols []string
	for _, item := range items {
		switch {
		case item.Star:
			for i := range schema.Columns {
				cols = append(cols, schema.Columns[i].Name)
			}
		case item.Alias != "":
			cols = append(cols, item.Alias)
		default:
			cols = append(cols, exprName(item.Expr))
		}
	}
	return cols
}

func (ex *Executor) project(schema *catalog.TableSchema, items []sql.SelectItem, row []types.Value) ([]types.Value, error) {
	var out []types.Value
	for _, item := range items {
		if item.Star {
			out = append(out, row...)
			continue
		}
		v, err := ex.ctx(schema, row).eval(item.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ExecuteSelect roda um plano de leitura e devolve a sequência lazy.
func (ex *Executor) ExecuteSelect(plan planner.Plan) (*Rows, error) {
	switch p := plan.(type) {
	case *planner.Aggregate:
		return ex.executeAggregate(p)
	case *planner.OrderBy:
		return ex.executeOrderBy(p)
	}

	schema, projection, source, err := ex.scanSource(plan)
	if err != nil {
		return nil, err
	}

	return &Rows{
		cols: projectionColumns(schema, projection),
		fetch: func() ([]types.Value, bool, error) {
			_, row, ok, err := source()
			if err != nil || !ok {
				return nil, false, err
			}
			projected, err := ex.project(schema, projection, row)
			if err != nil {
				return nil, false, err
			}
			return projected, true, nil
		},
	}, nil
}

// executeOrderBy materializa, ordena, aplica LIMIT e projeta.
func (ex *Executor) executeOrderBy(p *planner.OrderBy) (*Rows, error) {
	schema, _, source, err := ex.scanSource(p.Input)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		row []types.Value
	}
	var rows []keyed
	for {
		_, row, ok, err := source()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, keyed{row: row})
	}

	// Índices das colunas de ordenação
	type sortKey struct {
		idx  int
		desc bool
	}
	keys := make([]sortKey, len(p.Keys))
	for i, k := range p.Keys {
		_, idx, ok := schema.Column(k.Column)
		if !ok {
			return nil, &errors.ColumnNotFoundError{Table: schema.Name, Column: k.Column}
		}
		keys[i] = sortKey{idx: idx, desc: k.Desc}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		for _, k := range keys {
			cmp := rows[a].row[k.idx].Compare(rows[b].row[k.idx])
			if cmp == 0 {
				continue
			}
			if k.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	limit, err := ex.evalLimit(p.Limit)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && int64(len(rows)) > limit {
		rows = rows[:limit]
	}

	items := p.Projection
	if len(items) == 0 {
		items = []sql.SelectItem{{Star: true}}
	}

	out := make([][]types.Value, len(rows))
	for i, r := range rows {
		projected, err := ex.project(schema, items, r.row)
		if err != nil {
			return nil, err
		}
		out[i] = projected
	}
	return Materialized(projectionColumns(schema, items), out), nil
}

// executeAggregate materializa COUNT/SUM/AVG/MIN/MAX de uma passada.
func (ex *Executor) executeAggregate(p *planner.Aggregate) (*Rows, error) {
	// Projeção de agregação não mistura expressões simples sem GROUP BY
	for _, item := range p.Items {
		if item.Star {
			return nil, &errors.SchemaError{Msg: "aggregate query mixes plain expressions without GROUP BY"}
		}
		if _, ok := item.Expr.(*sql.FuncCall); !ok {
			return nil, &errors.SchemaError{Msg: "aggregate query mixes plain expressions without GROUP BY"}
		}
	}

	schema, _, source, err := ex.scanSource(p.Input)
	if err != nil {
		return nil, err
	}

	type accum struct {
		count   int64
		sum     float64
		sumI    int64
		intOnly bool
		min     types.Value
		max     types.Value
		seen    bool
	}
	accs := make([]accum, len(p.Items))
	for i := range accs {
		accs[i].intOnly = true
	}

	for {
		_, row, ok, err := source()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for i, item := range p.Items {
			call := item.Expr.(*sql.FuncCall)
			acc := &accs[i]

			if call.Star {
				acc.count++
				continue
			}
			if len(call.Args) != 1 {
				return nil, &errors.SchemaError{Msg: call.Name + " expects 1 argument"}
			}
			v, err := ex.ctx(schema, row).eval(call.Args[0])
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue // Agregações ignoram NULL
			}
			acc.count++
			if r, ok := v.AsReal(); ok {
				acc.sum += r
				if v.Type == types.TypeInteger {
					acc.sumI += v.Int
				} else {
					acc.intOnly = false
				}
			}
			if !acc.seen || v.Compare(acc.min) < 0 {
				acc.min = v
			}
			if !acc.seen || v.Compare(acc.max) > 0 {
				acc.max = v
			}
			acc.seen = true
		}
	}

	row := make([]types.Value, len(p.Items))
	for i, item := range p.Items {
		call := item.Expr.(*sql.FuncCall)
		acc := &accs[i]
		switch call.Name {
		case "COUNT":
			row[i] = types.NewInteger(acc.count)
		case "SUM":
			switch {
			case !acc.seen:
				row[i] = types.NewNull()
			case acc.intOnly:
				row[i] = types.NewInteger(acc.sumI)
			default:
				row[i] = types.NewReal(acc.sum)
			}
		case "AVG":
			if acc.count == 0 {
				row[i] = types.NewNull()
			} else {
				row[i] = types.NewReal(acc.sum / float64(acc.count))
			}
		case "MIN":
			if !acc.seen {
				row[i] = types.NewNull()
			} else {
				row[i] = acc.min
			}
		case "MAX":
			if !acc.seen {
				row[i] = types.NewNull()
			} else {
				row[i] = acc.max
			}
		default:
			return nil, &errors.SchemaError{Msg: "unknown aggregate " + call.Name}
		}
	}

	cols := make([]string, len(p.Items))
	for i, item := range p.Items {
		if item.Alias != "" {
			cols[i] = item.Alias
		} else {
			cols[i] = exprName(item.Expr)
		}
	}
	return singleRow(cols, row), nil
}
