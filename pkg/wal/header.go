package wal

import (
	"bytes"
	"encoding/binary"

	"github.com/tegdb/tegdb/pkg/errors"
)

// Constantes do formato de arquivo .teg
const (
	// FileHeaderSize é o tamanho fixo do cabeçalho no offset 0.
	// Os dados começam no byte 64.
	FileHeaderSize = 64

	// FormatVersion é a versão atual do formato em disco.
	FormatVersion = 2
)

// Magic ocupa os 6 primeiros bytes do arquivo.
var Magic = []byte("TEGDB\x00")

// Flags do cabeçalho
const (
	// FlagChecksums indica CRC32 por entrada após o payload.
	FlagChecksums uint32 = 1 << 0
	// FlagPreallocated indica que o arquivo pode se estender além de
	// ValidDataEnd; recovery não lê além desse limite.
	FlagPreallocated uint32 = 1 << 1
)

// Endian declarado para inteiros/floats de linha e tamanhos de entrada.
const (
	EndianLittle uint8 = 1
)

// FileHeader é o cabeçalho fixo de 64 bytes do arquivo .teg.
// Os campos do próprio cabeçalho são big-endian; Endian declara a ordem
// usada pelos dados (entradas e linhas).
type FileHeader struct {
	Version      uint16
	Flags        uint32
	MaxKey       uint32
	MaxValue     uint32
	Endian       uint8
	ValidDataEnd uint64
}

// Encode serializa o cabeçalho em buf (>= 64 bytes). Bytes reservados zerados.
func (h *FileHeader) Encode(buf []byte) {
	for i := range buf[:FileHeaderSize] {
		buf[i] = 0
	}
	copy(buf[0:6], Magic)
	binary.BigEndian.PutUint16(buf[6:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.Flags)
	binary.BigEndian.PutUint32(buf[12:16], h.MaxKey)
	binary.BigEndian.PutUint32(buf[16:20], h.MaxValue)
	buf[20] = h.Endian
	binary.BigEndian.PutUint64(buf[21:29], h.ValidDataEnd)
}

// Decode valida magic/versão/endian e preenche a struct.
func (h *FileHeader) Decode(buf []byte) error {
	if len(buf) < FileHeaderSize {
		return &errors.CorruptionError{Offset: 0, Msg: "file shorter than header"}
	}
	if !bytes.Equal(buf[0:6], Magic) {
		return &errors.CorruptionError{Offset: 0, Msg: "invalid magic number"}
	}

	h.Version = binary.BigEndian.Uint16(buf[6:8])
	if h.Version == 0 || h.Version > FormatVersion {
		return &errors.CorruptionError{Offset: 6, Msg: "unsupported format version"}
	}

	h.Flags = binary.BigEndian.Uint32(buf[8:12])
	h.MaxKey = binary.BigEndian.Uint32(buf[12:16])
	h.MaxValue = binary.BigEndian.Uint32(buf[16:20])
	h.Endian = buf[20]
	if h.Endian != EndianLittle {
		return &errors.CorruptionError{Offset: 20, Msg: "file declares an endian this build does not support"}
	}

	// v1 não tinha ValidDataEnd: implícito = tamanho do arquivo (0 sinaliza isso)
	if h.Version >= 2 {
		h.ValidDataEnd = binary.BigEndian.Uint64(buf[21:29])
	}
	return nil
}
