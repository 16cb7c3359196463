package wal

import (
	"encoding/binary"
)

// Tipos de entrada (tag)
const (
	TagPut    uint8 = 1 // Put: chave + valor
	TagDelete uint8 = 2 // Delete: tombstone, valor vazio
	TagCommit uint8 = 3 // CommitMarker: fecha uma transação, valor vazio
)

// entryFixedSize é o prefixo fixo de cada entrada: tag(1) + key_len(4) + value_len(4).
const entryFixedSize = 1 + 4 + 4

// checksumSize é o sufixo opcional (FlagChecksums).
const checksumSize = 4

// Entry é uma entrada decodificada do log.
type Entry struct {
	Tag   uint8
	Key   []byte
	Value []byte
}

// EncodedLen retorna o tamanho total da entrada em disco.
func EncodedLen(keyLen, valueLen int, checksums bool) int {
	n := entryFixedSize + keyLen + valueLen
	if checksums {
		n += checksumSize
	}
	return n
}

// AppendEntry codifica a entrada no final de buf e retorna o slice estendido.
// Tamanhos multi-byte em little-endian (o endian declarado no cabeçalho).
func AppendEntry(buf []byte, tag uint8, key, value []byte, checksums bool) []byte {
	start := len(buf)
	buf = append(buf, tag)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, key...)
	buf = append(buf, value...)
	if checksums {
		crc := Checksum(buf[start:])
		buf = binary.LittleEndian.AppendUint32(buf, crc)
	}
	return buf
}

// ValuePayloadOffset retorna o offset do payload do valor relativo ao início
// da entrada.
func ValuePayloadOffset(keyLen int) int64 {
	return int64(entryFixedSize + keyLen)
}
