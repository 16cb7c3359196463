package catalog

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// Codec de linha de largura fixa.
//
// Layout: bitmap de nulls (1 bit por coluna, bit ligado = NULL) seguido dos
// bytes de cada coluna no offset calculado no DDL. O decoder lê apenas por
// offsets do schema; não há metadados por linha além do bitmap.
//
// Nota de formato: TEXT(n) é serializado como prefixo de comprimento de
// 2 bytes little-endian + UTF-8, zero-padded até n. Prefixo de comprimento
// em vez de NUL terminador porque TEXT pode conter bytes NUL legítimos e
// LIKE precisa operar sobre o comprimento exato armazenado.

// EncodeRow serializa os valores (na ordem das colunas do schema).
func EncodeRow(s *TableSchema, values []types.Value) ([]byte, error) {
	if len(values) != len(s.Columns) {
		return nil, &errors.SchemaError{Table: s.Name, Msg: fmt.Sprintf("expected %d values, got %d", len(s.Columns), len(values))}
	}

	buf := make([]byte, s.RowWidth)

	for i := range s.Columns {
		col := &s.Columns[i]
		v := values[i]

		if v.IsNull() {
			if !col.Nullable {
				return nil, &errors.ConstraintViolationError{Kind: errors.NotNull, Table: s.Name, Column: col.Name, Value: "NULL"}
			}
			buf[i/8] |= 1 << (i % 8)
			continue
		}

		dst := buf[col.FixedOffset : col.FixedOffset+col.FixedWidth]
		switch col.Type {
		case types.TypeInteger:
			if v.Type != types.TypeInteger {
				return nil, &errors.SchemaError{Table: s.Name, Msg: col.Name + ": expected INTEGER, got " + v.Type.String()}
			}
			binary.LittleEndian.PutUint64(dst, uint64(v.Int))

		case types.TypeReal:
			r, ok := v.AsReal()
			if !ok {
				return nil, &errors.SchemaError{Table: s.Name, Msg: col.Name + ": expected REAL, got " + v.Type.String()}
			}
			binary.LittleEndian.PutUint64(dst, math.Float64bits(r))

		case types.TypeText:
			if v.Type != types.TypeText {
				return nil, &errors.SchemaError{Table: s.Name, Msg: col.Name + ": expected TEXT, got " + v.Type.String()}
			}
			if len(v.Text) > col.Width {
				return nil, &errors.ConstraintViolationError{Kind: errors.TextLengthExceeded, Table: s.Name, Column: col.Name, Value: v.Text}
			}
			binary.LittleEndian.PutUint16(dst[0:2], uint16(len(v.Text)))
			copy(dst[textPrefixWidth:], v.Text)

		case types.TypeVector:
			if v.Type != types.TypeVector {
				return nil, &errors.SchemaError{Table: s.Name, Msg: col.Name + ": expected VECTOR, got " + v.Type.String()}
			}
			if len(v.Vec) != col.Width {
				return nil, &errors.ConstraintViolationError{Kind: errors.VectorDimMismatch, Table: s.Name, Column: col.Name, Value: fmt.Sprintf("dim %d != %d", len(v.Vec), col.Width)}
			}
			for j, f := range v.Vec {
				binary.LittleEndian.PutUint64(dst[j*vectorElemWidth:], math.Float64bits(f))
			}
		}
	}

	return buf, nil
}

// DecodeRow deserializa uma linha pelos offsets do schema.
func DecodeRow(s *TableSchema, buf []byte) ([]types.Value, error) {
	if len(buf) != s.RowWidth {
		return nil, &errors.CorruptionError{Msg: fmt.Sprintf("row of %d bytes, schema %q expects %d", len(buf), s.Name, s.RowWidth)}
	}

	values := make([]types.Value, len(s.Columns))
	for i := range s.Columns {
		col := &s.Columns[i]

		if buf[i/8]&(1<<(i%8)) != 0 {
			values[i] = types.NewNull()
			continue
		}

		src := buf[col.FixedOffset : col.FixedOffset+col.FixedWidth]
		switch col.Type {
		case types.TypeInteger:
			values[i] = types.NewInteger(int64(binary.LittleEndian.Uint64(src)))
		case types.TypeReal:
			values[i] = types.NewReal(math.Float64frombits(binary.LittleEndian.Uint64(src)))
		case types.TypeText:
			n := int(binary.LittleEndian.Uint16(src[0:2]))
			if n > col.Width {
				return nil, &errors.CorruptionError{Msg: fmt.Sprintf("text length %d exceeds declared width %d", n, col.Width)}
			}
			values[i] = types.NewText(string(src[textPrefixWidth : textPrefixWidth+n]))
		case types.TypeVector:
			vec := make([]float64, col.Width)
			for j := range vec {
				vec[j] = math.Float64frombits(binary.LittleEndian.Uint64(src[j*vectorElemWidth:]))
			}
			values[i] = types.NewVector(vec)
		}
	}
	return values, nil
}
