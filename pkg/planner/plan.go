package planner

import (
	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/sql"
)

// Plan é um nó da árvore de execução produzida pelo planner.
type Plan interface {
	planNode()
}

// KeyBounds delimita um scan de índice sobre a coluna indexada.
// Equal != nil representa igualdade exata; senão Lower/Upper formam o range
// (nil = aberto daquele lado).
type KeyBounds struct {
	Equal    sql.Expr
	Lower    sql.Expr
	LowerInc bool
	Upper    sql.Expr
	UpperInc bool
}

// Tightness ordena bounds da mais restrita para a mais frouxa, usado no
// desempate entre índices.
func (b KeyBounds) Tightness() int {
	switch {
	case b.Equal != nil:
		return 0
	case b.Lower != nil && b.Upper != nil:
		return 1
	case b.Lower != nil || b.Upper != nil:
		return 2
	default:
		return 3
	}
}

// PrimaryKeyLookup: WHERE cobre todo o PK com igualdades em conjunção.
type PrimaryKeyLookup struct {
	Table      *catalog.TableSchema
	PKValues   []sql.Expr // Na ordem das colunas do PK
	Projection []sql.SelectItem
	Filter     sql.Expr // Residual após remover as igualdades do PK
}

// SecondaryIndexScan: igualdade/range sobre coluna indexada.
type SecondaryIndexScan struct {
	Table      *catalog.TableSchema
	Index      *catalog.IndexDef
	Bounds     KeyBounds
	Projection []sql.SelectItem
	Filter     sql.Expr
	Limit      sql.Expr // nil = sem limite
	// Unique com igualdade permite parar no primeiro match
	Unique bool
}

// TableScan é o plano default.
type TableScan struct {
	Table      *catalog.TableSchema
	Projection []sql.SelectItem
	Filter     sql.Expr
	Limit      sql.Expr
}

// Insert rejeita em colisão de PK ou violação de UNIQUE (conflict=Fail).
type Insert struct {
	Table   *catalog.TableSchema
	Columns []string
	Rows    [][]sql.Expr
}

// Update roda o scan e aplica os assignments linha a linha.
type Update struct {
	Table       *catalog.TableSchema
	Assignments []sql.Assignment
	ScanPlan    Plan
}

// Delete roda o scan e emite remoções.
type Delete struct {
	Table    *catalog.TableSchema
	ScanPlan Plan
}

// OrderBy materializa e ordena quando nenhum índice fornece a ordem pedida.
// A projeção final do SELECT é aplicada depois da ordenação.
type OrderBy struct {
	Input      Plan
	Keys       []sql.OrderKey
	Limit      sql.Expr // LIMIT aplicado após a ordenação
	Projection []sql.SelectItem
}

// Aggregate materializa COUNT/SUM/AVG/MIN/MAX sem GROUP BY.
type Aggregate struct {
	Input Plan
	Items []sql.SelectItem
}

func (*PrimaryKeyLookup) planNode()   {}
func (*SecondaryIndexScan) planNode() {}
func (*TableScan) planNode()          {}
func (*Insert) planNode()             {}
func (*Update) planNode()             {}
func (*Delete) planNode()             {}
func (*OrderBy) planNode()            {}
func (*Aggregate) planNode()          {}
