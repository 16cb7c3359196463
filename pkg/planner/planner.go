package planner

import (
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/sql"
)

// CostWeights pondera a estimativa io + cpu + memory no desempate entre
// índices secundários.
type CostWeights struct {
	IO     float64
	CPU    float64
	Memory float64
}

// DefaultCostWeights: I/O domina num engine baseado em disco.
var DefaultCostWeights = CostWeights{IO: 1.0, CPU: 0.2, Memory: 0.1}

// Planner é rule-based: AST + snapshot de schemas -> ExecutionPlan.
type Planner struct {
	schemas map[string]*catalog.TableSchema
	indexes map[string][]*catalog.IndexDef // Por tabela (lower-case)
	weights CostWeights
}

// New cria o planner com um snapshot dos schemas válido por um statement.
func New(schemas map[string]*catalog.TableSchema, indexes map[string][]*catalog.IndexDef) *Planner {
	return &Planner{schemas: schemas, indexes: indexes, weights: DefaultCostWeights}
}

// SetWeights troca os pesos de custo.
func (pl *Planner) SetWeights(w CostWeights) { pl.weights = w }

func (pl *Planner) schema(table string) (*catalog.TableSchema, error) {
	s, ok := pl.schemas[strings.ToLower(table)]
	if !ok {
		return nil, &errors.TableNotFoundError{Name: table}
	}
	return s, nil
}

// PlanStatement mapeia o AST para um plano.
func (pl *Planner) PlanStatement(stmt sql.Statement) (Plan, error) {
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return pl.planSelect(s)
	case *sql.InsertStmt:
		return pl.planInsert(s)
	case *sql.UpdateStmt:
		return pl.planUpdate(s)
	case *sql.DeleteStmt:
		return pl.planDelete(s)
	default:
		return nil, &errors.SchemaError{Msg: "statement is not plannable"}
	}
}

func (pl *Planner) planInsert(s *sql.InsertStmt) (Plan, error) {
	schema, err := pl.schema(s.Table)
	if err != nil {
		return nil, err
	}
	for _, col := range s.Columns {
		if _, _, ok := schema.Column(col); !ok {
			return nil, &errors.ColumnNotFoundError{Table: s.Table, Column: col}
		}
	}
	return &Insert{Table: schema, Columns: s.Columns, Rows: s.Rows}, nil
}

func (pl *Planner) planUpdate(s *sql.UpdateStmt) (Plan, error) {
	schema, err := pl.schema(s.Table)
	if err != nil {
		return nil, err
	}
	for _, a := range s.Assignments {
		if _, _, ok := schema.Column(a.Column); !ok {
			return nil, &errors.ColumnNotFoundError{Table: s.Table, Column: a.Column}
		}
	}
	scan, err := pl.planScan(schema, s.Where, starProjection(), nil, nil)
	if err != nil {
		return nil, err
	}
	return &Update{Table: schema, Assignments: s.Assignments, ScanPlan: scan}, nil
}

func (pl *Planner) planDelete(s *sql.DeleteStmt) (Plan, error) {
	schema, err := pl.schema(s.Table)
	if err != nil {
		return nil, err
	}
	scan, err := pl.planScan(schema, s.Where, starProjection(), nil, nil)
	if err != nil {
		return nil, err
	}
	return &Delete{Table: schema, ScanPlan: scan}, nil
}

func starProjection() []sql.SelectItem {
	return []sql.SelectItem{{Star: true}}
}

func (pl *Planner) planSelect(s *sql.SelectStmt) (Plan, error) {
	schema, err := pl.schema(s.Table)
	if err != nil {
		return nil, err
	}

	if err := pl.checkColumns(schema, s); err != nil {
		return nil, err
	}

	aggregate := hasAggregate(s.Items)

	projection := s.Items
	if aggregate || len(s.OrderBy) > 0 {
		// OrderBy/Aggregate precisam das colunas de entrada completas
		projection = starProjection()
	}

	plan, err := pl.planScan(schema, s.Where, projection, nil, s.OrderBy)
	if err != nil {
		return nil, err
	}

	if aggregate {
		return &Aggregate{Input: plan, Items: s.Items}, nil
	}

	// A ordem natural (byte order das row keys == PK ascendente) só vale
	// para TableScan e PrimaryKeyLookup; um index scan devolve na ordem do
	// valor indexado.
	naturalOrder := orderMatchesPrimaryKey(schema, s.OrderBy)
	if _, isIndexScan := plan.(*SecondaryIndexScan); isIndexScan && len(s.OrderBy) > 0 {
		naturalOrder = false
	}

	if len(s.OrderBy) > 0 && !naturalOrder {
		return &OrderBy{Input: plan, Keys: s.OrderBy, Limit: s.Limit, Projection: s.Items}, nil
	}

	// Sem wrapper: o LIMIT e a projeção final empurram para o scan
	switch p := plan.(type) {
	case *TableScan:
		p.Limit = s.Limit
		p.Projection = s.Items
	case *SecondaryIndexScan:
		p.Limit = s.Limit
		p.Projection = s.Items
	case *PrimaryKeyLookup:
		p.Projection = s.Items
	}
	return plan, nil
}

func (pl *Planner) checkColumns(schema *catalog.TableSchema, s *sql.SelectStmt) error {
	check := func(e sql.Expr) error {
		var failed *errors.ColumnNotFoundError
		walkColumns(e, func(name string) {
			if _, _, ok := schema.Column(name); !ok && failed == nil {
				failed = &errors.ColumnNotFoundError{Table: schema.Name, Column: name}
			}
		})
		if failed != nil {
			return failed
		}
		return nil
	}

	for _, item := range s.Items {
		if item.Star {
			continue
		}
		if err := check(item.Expr); err != nil {
			return err
		}
	}
	if s.Where != nil {
		if err := check(s.Where); err != nil {
			return err
		}
	}
	for _, k := range s.OrderBy {
		if _, _, ok := schema.Column(k.Column); !ok {
			return &errors.ColumnNotFoundError{Table: schema.Name, Column: k.Column}
		}
	}
	return nil
}

// planScan escolhe PrimaryKeyLookup > SecondaryIndexScan > TableScan.
func (pl *Planner) planScan(schema *catalog.TableSchema, where sql.Expr, projection []sql.SelectItem, limit sql.Expr, order []sql.OrderKey) (Plan, error) {
	conjuncts, pure := collectConjuncts(where)

	// 1. PrimaryKeyLookup: igualdade para TODAS as colunas do PK, em
	// conjunção pura (OR em qualquer lugar desabilita).
	if pure {
		if pkValues, residual, ok := matchPrimaryKey(schema, conjuncts); ok {
			return &PrimaryKeyLookup{
				Table:      schema,
				PKValues:   pkValues,
				Projection: projection,
				Filter:     residual,
			}, nil
		}

		// 2. SecondaryIndexScan: igualdade/range sobre coluna indexada
		if scan := pl.matchSecondary(schema, conjuncts, projection, limit); scan != nil {
			return scan, nil
		}
	}

	// 3. Default
	return &TableScan{
		Table:      schema,
		Projection: projection,
		Filter:     where,
		Limit:      limit,
	}, nil
}

// collectConjuncts achata uma conjunção. pure=false quando a árvore contém
// OR (o WHERE inteiro vira filtro residual do TableScan).
func collectConjuncts(e sql.Expr) ([]sql.Expr, bool) {
	if e == nil {
		return nil, true
	}
	if b, ok := e.(*sql.Binary); ok {
		switch b.Op {
		case sql.OpAnd:
			left, lok := collectConjuncts(b.Left)
			right, rok := collectConjuncts(b.Right)
			return append(left, right...), lok && rok
		case sql.OpOr:
			return nil, false
		}
	}
	return []sql.Expr{e}, true
}

// equalityOn reconhece "col = valor" (ou invertido) sem referências a outras
// colunas no lado do valor.
func equalityOn(e sql.Expr, column string) (sql.Expr, bool) {
	b, ok := e.(*sql.Binary)
	if !ok || b.Op != sql.OpEq {
		return nil, false
	}
	if ref, ok := b.Left.(*sql.ColumnRef); ok && strings.EqualFold(ref.Name, column) && isConstant(b.Right) {
		return b.Right, true
	}
	if ref, ok := b.Right.(*sql.ColumnRef); ok && strings.EqualFold(ref.Name, column) && isConstant(b.Left) {
		return b.Left, true
	}
	return nil, false
}

// isConstant: avaliável sem a linha (literal, param, aritmética sobre eles).
func isConstant(e sql.Expr) bool {
	constant := true
	walkColumns(e, func(string) { constant = false })
	return constant
}

func walkColumns(e sql.Expr, fn func(name string)) {
	switch x := e.(type) {
	case *sql.ColumnRef:
		fn(x.Name)
	case *sql.Binary:
		walkColumns(x.Left, fn)
		walkColumns(x.Right, fn)
	case *sql.Unary:
		walkColumns(x.Expr, fn)
	case *sql.FuncCall:
		for _, a := range x.Args {
			walkColumns(a, fn)
		}
	}
}

// matchPrimaryKey procura igualdades cobrindo todo o PK; devolve os valores
// na ordem do PK e o filtro residual (conjunção dos predicados restantes).
func matchPrimaryKey(schema *catalog.TableSchema, conjuncts []sql.Expr) ([]sql.Expr, sql.Expr, bool) {
	pk := schema.PrimaryKey()
	if len(pk) == 0 || len(conjuncts) == 0 {
		return nil, nil, false
	}

	values := make([]sql.Expr, len(pk))
	used := make([]bool, len(conjuncts))

	for i, col := range pk {
		found := false
		for j, c := range conjuncts {
			if used[j] {
				continue
			}
			if v, ok := equalityOn(c, col.Name); ok {
				values[i] = v
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return nil, nil, false
		}
	}

	var residual sql.Expr
	for j, c := range conjuncts {
		if used[j] {
			continue
		}
		residual = andCombine(residual, c)
	}
	return values, residual, true
}

func andCombine(acc, e sql.Expr) sql.Expr {
	if acc == nil {
		return e
	}
	return &sql.Binary{Op: sql.OpAnd, Left: acc, Right: e}
}

// candidate é um índice utilizável para os conjuncts dados.
type candidate struct {
	index    *catalog.IndexDef
	bounds   KeyBounds
	residual sql.Expr
	cost     float64
}

// matchSecondary escolhe o melhor índice secundário: unique primeiro, depois
// bounds mais apertadas, depois menor custo estimado io+cpu+memory.
func (pl *Planner) matchSecondary(schema *catalog.TableSchema, conjuncts []sql.Expr, projection []sql.SelectItem, limit sql.Expr) *SecondaryIndexScan {
	if len(conjuncts) == 0 {
		return nil
	}

	var best *candidate
	for _, def := range pl.indexes[strings.ToLower(schema.Name)] {
		// Índices vetoriais (HNSW/IVF/LSH) não participam do planning exato
		if def.Kind != catalog.KindBTree {
			continue
		}
		cand := buildCandidate(def, conjuncts)
		if cand == nil {
			continue
		}
		cand.cost = pl.estimateCost(cand)
		if best == nil || better(cand, best) {
			best = cand
		}
	}

	// Colunas UNIQUE têm entradas __unique__ que servem lookups de igualdade
	for _, col := range schema.UniqueColumns() {
		for _, c := range conjuncts {
			if v, ok := equalityOn(c, col.Name); ok {
				implicit := &catalog.IndexDef{
					Name:   "__unique_constraint__" + col.Name,
					Table:  schema.Name,
					Column: col.Name,
					Kind:   catalog.KindBTree,
					Unique: true,
				}
				cand := &candidate{
					index:    implicit,
					bounds:   KeyBounds{Equal: v},
					residual: conjoinAll(conjuncts),
				}
				cand.cost = pl.estimateCost(cand)
				if best == nil || better(cand, best) {
					best = cand
				}
			}
		}
	}

	if best == nil {
		return nil
	}
	return &SecondaryIndexScan{
		Table:      schema,
		Index:      best.index,
		Bounds:     best.bounds,
		Projection: projection,
		Filter:     best.residual,
		Limit:      limit,
		Unique:     best.index.Unique && best.bounds.Equal != nil,
	}
}

func better(a, b *candidate) bool {
	au, bu := a.index.Unique, b.index.Unique
	if au != bu {
		return au
	}
	at, bt := a.bounds.Tightness(), b.bounds.Tightness()
	if at != bt {
		return at < bt
	}
	return a.cost < b.cost
}

func (pl *Planner) estimateCost(c *candidate) float64 {
	// Estimativa grosseira por forma do acesso; sem estatísticas de tabela,
	// só a forma das bounds diferencia os candidatos.
	var rows float64
	switch c.bounds.Tightness() {
	case 0:
		if c.index.Unique {
			rows = 1
		} else {
			rows = 16
		}
	case 1:
		rows = 64
	case 2:
		rows = 256
	default:
		rows = 1024
	}
	w := pl.weights
	return rows*w.IO + rows*w.CPU + rows*w.Memory
}

func conjoinAll(conjuncts []sql.Expr) sql.Expr {
	var residual sql.Expr
	for _, c := range conjuncts {
		residual = andCombine(residual, c)
	}
	return residual
}

// buildCandidate extrai bounds de igualdade/range sobre a coluna do índice.
func buildCandidate(def *catalog.IndexDef, conjuncts []sql.Expr) *candidate {
	var bounds KeyBounds
	var usedAny bool
	used := make(map[sql.Expr]bool)

	for _, c := range conjuncts {
		b, ok := c.(*sql.Binary)
		if !ok {
			continue
		}

		var ref *sql.ColumnRef
		var val sql.Expr
		var op sql.BinaryOp

		if r, ok := b.Left.(*sql.ColumnRef); ok && strings.EqualFold(r.Name, def.Column) && isConstant(b.Right) {
			ref, val, op = r, b.Right, b.Op
		} else if r, ok := b.Right.(*sql.ColumnRef); ok && strings.EqualFold(r.Name, def.Column) && isConstant(b.Left) {
			// Espelha o operador: 5 < col vira col > 5
			ref, val = r, b.Left
			switch b.Op {
			case sql.OpLt:
				op = sql.OpGt
			case sql.OpLtEq:
				op = sql.OpGtEq
			case sql.OpGt:
				op = sql.OpLt
			case sql.OpGtEq:
				op = sql.OpLtEq
			default:
				op = b.Op
			}
		} else {
			continue
		}
		_ = ref

		switch op {
		case sql.OpEq:
			bounds = KeyBounds{Equal: val}
			used[c] = true
			usedAny = true
		case sql.OpGt:
			if bounds.Equal == nil && bounds.Lower == nil {
				bounds.Lower, bounds.LowerInc = val, false
				used[c] = true
				usedAny = true
			}
		case sql.OpGtEq:
			if bounds.Equal == nil && bounds.Lower == nil {
				bounds.Lower, bounds.LowerInc = val, true
				used[c] = true
				usedAny = true
			}
		case sql.OpLt:
			if bounds.Equal == nil && bounds.Upper == nil {
				bounds.Upper, bounds.UpperInc = val, false
				used[c] = true
				usedAny = true
			}
		case sql.OpLtEq:
			if bounds.Equal == nil && bounds.Upper == nil {
				bounds.Upper, bounds.UpperInc = val, true
				used[c] = true
				usedAny = true
			}
		}
		if bounds.Equal != nil {
			break
		}
	}

	if !usedAny {
		return nil
	}

	// As bounds só estreitam o scan; o predicado completo permanece como
	// filtro de recheck sobre a linha decodificada (TEXT codificado em chave
	// de índice não delimita ranges com exatidão).
	return &candidate{index: def, bounds: bounds, residual: conjoinAll(conjuncts)}
}

func hasAggregate(items []sql.SelectItem) bool {
	for _, item := range items {
		if item.Star {
			continue
		}
		if isAggregateExpr(item.Expr) {
			return true
		}
	}
	return false
}

func isAggregateExpr(e sql.Expr) bool {
	call, ok := e.(*sql.FuncCall)
	if !ok {
		return false
	}
	switch call.Name {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	}
	return false
}

// orderMatchesPrimaryKey: a ordem natural do scan é o PK ascendente.
func orderMatchesPrimaryKey(schema *catalog.TableSchema, order []sql.OrderKey) bool {
	if len(order) == 0 {
		return true
	}
	pk := schema.PrimaryKey()
	if len(order) > len(pk) {
		return false
	}
	for i, k := range order {
		if k.Desc || !strings.EqualFold(k.Column, pk[i].Name) {
			return false
		}
	}
	return true
}
