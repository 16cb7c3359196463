package catalog

import (
	"sort"
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// Prefixos de chave reservados no log.
const (
	SchemaKeyPrefix = "__schema__"
	IndexKeyPrefix  = "__index__"
	UniqueKeyPrefix = "__unique__"
	IdxKeyPrefix    = "__idx__"
)

// Larguras fixas por tipo
const (
	integerWidth    = 8 // int64 two's-complement little-endian
	realWidth       = 8 // IEEE-754 double little-endian
	textPrefixWidth = 2 // Prefixo de comprimento do TEXT(n)
	vectorElemWidth = 8 // f64 por elemento
)

// Column descreve uma coluna e seu lugar na linha serializada.
type Column struct {
	Name     string         `bson:"name"`
	Type     types.DataType `bson:"type"`
	Width    int            `bson:"width"` // TEXT: bytes máximos; VECTOR: dimensão
	Nullable bool           `bson:"nullable"`
	Unique   bool           `bson:"unique"`
	PKPos    int            `bson:"pk_pos"` // 1-based na ordem do PRIMARY KEY; 0 = não é PK

	// Layout calculado no DDL
	FixedOffset int `bson:"fixed_offset"`
	FixedWidth  int `bson:"fixed_width"`
	ElemWidth   int `bson:"elem_width,omitempty"` // VECTOR: bytes por elemento
}

// TableSchema é o schema persistido de uma tabela.
type TableSchema struct {
	Name      string   `bson:"name"`
	Columns   []Column `bson:"columns"`
	RowWidth  int      `bson:"row_width"`
	BitmapLen int      `bson:"bitmap_len"`
}

// NewTableSchema valida as colunas e calcula o layout fixo (bitmap de nulls
// seguido das colunas em ordem de declaração).
func NewTableSchema(name string, cols []Column) (*TableSchema, error) {
	if len(cols) == 0 {
		return nil, &errors.SchemaError{Table: name, Msg: "table needs at least one column"}
	}

	seen := make(map[string]bool, len(cols))
	pkCount := 0
	for i := range cols {
		c := &cols[i]
		lower := strings.ToLower(c.Name)
		if seen[lower] {
			return nil, &errors.SchemaError{Table: name, Msg: "duplicate column " + c.Name}
		}
		seen[lower] = true

		switch c.Type {
		case types.TypeText, types.TypeVector:
			// TEXT e VECTOR exigem largura declarada
			if c.Width <= 0 {
				return nil, &errors.SchemaError{Table: name, Msg: c.Name + ": TEXT/VECTOR requires a declared width"}
			}
		case types.TypeInteger, types.TypeReal:
		default:
			return nil, &errors.SchemaError{Table: name, Msg: c.Name + ": invalid column type"}
		}

		if c.PKPos > 0 {
			pkCount++
			if c.Nullable {
				return nil, &errors.SchemaError{Table: name, Msg: c.Name + ": primary key column cannot be nullable"}
			}
			if c.Type == types.TypeReal || c.Type == types.TypeVector {
				return nil, &errors.SchemaError{Table: name, Msg: c.Name + ": primary key must be INTEGER or TEXT"}
			}
		}
	}
	if pkCount == 0 {
		return nil, &errors.SchemaError{Table: name, Msg: "primary key not defined"}
	}

	s := &TableSchema{Name: name, Columns: cols}
	s.computeLayout()
	return s, nil
}

func (s *TableSchema) computeLayout() {
	s.BitmapLen = (len(s.Columns) + 7) / 8
	off := s.BitmapLen
	for i := range s.Columns {
		c := &s.Columns[i]
		switch c.Type {
		case types.TypeInteger:
			c.FixedWidth = integerWidth
		case types.TypeReal:
			c.FixedWidth = realWidth
		case types.TypeText:
			c.FixedWidth = textPrefixWidth + c.Width
		case types.TypeVector:
			c.ElemWidth = vectorElemWidth
			c.FixedWidth = c.Width * vectorElemWidth
		}
		c.FixedOffset = off
		off += c.FixedWidth
	}
	s.RowWidth = off
}

// Column retorna a coluna pelo nome (case-insensitive) e seu índice.
func (s *TableSchema) Column(name string) (*Column, int, bool) {
	for i := range s.Columns {
		if strings.EqualFold(s.Columns[i].Name, name) {
			return &s.Columns[i], i, true
		}
	}
	return nil, -1, false
}

// PrimaryKey retorna as colunas do PK na ordem declarada no PRIMARY KEY.
func (s *TableSchema) PrimaryKey() []*Column {
	var pk []*Column
	for i := range s.Columns {
		if s.Columns[i].PKPos > 0 {
			pk = append(pk, &s.Columns[i])
		}
	}
	sort.Slice(pk, func(a, b int) bool { return pk[a].PKPos < pk[b].PKPos })
	return pk
}

// UniqueColumns retorna as colunas UNIQUE que não fazem parte do PK.
func (s *TableSchema) UniqueColumns() []*Column {
	var out []*Column
	for i := range s.Columns {
		if s.Columns[i].Unique && s.Columns[i].PKPos == 0 {
			out = append(out, &s.Columns[i])
		}
	}
	return out
}

// IndexKind identifica a estrutura do índice secundário.
type IndexKind int

const (
	KindBTree IndexKind = iota
	KindVectorHnsw
	KindVectorIvf
	KindVectorLsh
)

func (k IndexKind) String() string {
	return [...]string{"BTREE", "HNSW", "IVF", "LSH"}[k]
}

// IndexDef é a definição persistida de um índice secundário.
type IndexDef struct {
	Name   string    `bson:"name"`
	Table  string    `bson:"table"`
	Column string    `bson:"column"`
	Kind   IndexKind `bson:"kind"`
	Unique bool      `bson:"unique"`
}

// SchemaKey retorna a chave de catálogo da tabela.
func SchemaKey(table string) []byte {
	return []byte(SchemaKeyPrefix + table)
}

// IndexDefKey retorna a chave de catálogo de um índice.
func IndexDefKey(table, index string) []byte {
	return []byte(IndexKeyPrefix + table + ":" + index)
}
