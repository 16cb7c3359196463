package wal

import "hash/crc32"

// Tabela CRC32 Castagnoli (mais eficiente em hardware moderno)
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum calcula o CRC32 dos dados
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateChecksum verifica se os dados correspondem ao checksum esperado
func ValidateChecksum(data []byte, expected uint32) bool {
	return Checksum(data) == expected
}
