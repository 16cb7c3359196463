package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// pkSeparator junta as partes de um PK composto. TEXT em posição de PK não
// pode conter este byte (validado no encode).
const pkSeparator = "|"

// RowKeyPrefix retorna o prefixo de scan da tabela: "<table>:".
func RowKeyPrefix(table string) []byte {
	return []byte(table + ":")
}

// RowKeyEnd retorna o limite superior exclusivo do range da tabela.
// ';' é o byte seguinte a ':' na tabela ASCII.
func RowKeyEnd(table string) []byte {
	return []byte(table + ";")
}

// BuildRowKey monta a chave da linha: "<table>:<pk1>|<pk2>|...".
// Inteiros viram 20 caracteres via OrderedEncode (não negativos zero-padded a
// 20 dígitos decimais) para que a ordem de bytes coincida com a ordem de
// valor; TEXT entra como está.
func BuildRowKey(s *TableSchema, pkValues []types.Value) ([]byte, error) {
	pk := s.PrimaryKey()
	if len(pkValues) != len(pk) {
		return nil, &errors.SchemaError{Table: s.Name, Msg: fmt.Sprintf("primary key needs %d value(s), got %d", len(pk), len(pkValues))}
	}

	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte(':')

	for i, col := range pk {
		if i > 0 {
			b.WriteString(pkSeparator)
		}
		part, err := EncodePKPart(col, pkValues[i])
		if err != nil {
			return nil, err
		}
		b.WriteString(part)
	}
	return []byte(b.String()), nil
}

// EncodePKPart codifica um componente do PK na forma textual ordenável.
func EncodePKPart(col *Column, v types.Value) (string, error) {
	if v.IsNull() {
		return "", &errors.ConstraintViolationError{Kind: errors.NotNull, Table: "", Column: col.Name, Value: "NULL"}
	}
	switch col.Type {
	case types.TypeInteger:
		if v.Type != types.TypeInteger {
			return "", &errors.SchemaError{Msg: col.Name + ": primary key expects INTEGER"}
		}
		return OrderedEncode(v), nil
	case types.TypeText:
		if v.Type != types.TypeText {
			return "", &errors.SchemaError{Msg: col.Name + ": primary key expects TEXT"}
		}
		if strings.Contains(v.Text, pkSeparator) {
			return "", &errors.SchemaError{Msg: col.Name + ": TEXT primary key cannot contain " + pkSeparator}
		}
		return v.Text, nil
	default:
		return "", &errors.SchemaError{Msg: col.Name + ": unsupported primary key type"}
	}
}

// OrderedEncode codifica um valor em texto cuja ordem de bytes acompanha a
// ordem do valor. Usado nas chaves de índice secundário.
func OrderedEncode(v types.Value) string {
	switch v.Type {
	case types.TypeInteger:
		if v.Int < 0 {
			// Negativos: '-' seguido de v+2^63 em 19 dígitos. Cresce com v e
			// fica abaixo de qualquer não negativo, pois '-' < '0'.
			return fmt.Sprintf("-%019d", uint64(v.Int)^(1<<63))
		}
		return fmt.Sprintf("%020d", v.Int)
	case types.TypeReal:
		// Truque clássico de ordenação de floats: inverte o bit de sinal dos
		// positivos e todos os bits dos negativos; o u64 resultante ordena
		// como o double original.
		bits := math.Float64bits(v.Real)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return fmt.Sprintf("%016x", bits)
	case types.TypeText:
		return v.Text
	default:
		return v.String()
	}
}

// UniqueEntryKey monta "__unique__<table>:<column>:<value>".
func UniqueEntryKey(table, column string, v types.Value) []byte {
	return []byte(UniqueKeyPrefix + table + ":" + column + ":" + OrderedEncode(v))
}

// SecondaryEntryKey monta "__idx__<table>:<index>:<value>:<row_key>".
func SecondaryEntryKey(table, index string, v types.Value, rowKey []byte) []byte {
	return []byte(IdxKeyPrefix + table + ":" + index + ":" + OrderedEncode(v) + ":" + string(rowKey))
}

// SecondaryPrefix retorna o prefixo de scan de um índice secundário.
func SecondaryPrefix(table, index string) string {
	return IdxKeyPrefix + table + ":" + index + ":"
}

// PrefixEnd retorna o menor byte-string maior que todos com o prefixo dado.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // Prefixo todo 0xff: sem limite superior
}
