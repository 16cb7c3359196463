package wal

import (
	"encoding/binary"
	"io"

	"github.com/tegdb/tegdb/pkg/errors"
)

// Scanner lê entradas sequencialmente do offset 64 até o fim dos dados
// válidos. Usado pelo recovery na abertura do banco.
type Scanner struct {
	log *LogFile
	off int64
	end int64

	entryOff int64 // Offset da última entrada retornada
}

// NewScanner cria o leitor sequencial. end delimita os dados válidos.
func (l *LogFile) NewScanner(end int64) *Scanner {
	return &Scanner{
		log: l,
		off: FileHeaderSize,
		end: end,
	}
}

// EntryOffset retorna o offset absoluto da última entrada lida.
func (s *Scanner) EntryOffset() int64 { return s.entryOff }

// NextOffset retorna o cursor atual (fronteira da próxima entrada).
func (s *Scanner) NextOffset() int64 { return s.off }

// Next lê a próxima entrada.
// Retorna io.EOF no fim limpo; io.ErrUnexpectedEOF quando a última entrada
// está truncada (o chamador decide truncar o arquivo nessa fronteira).
func (s *Scanner) Next() (*Entry, error) {
	if s.off >= s.end {
		return nil, io.EOF
	}

	var fixed [entryFixedSize]byte
	if s.off+entryFixedSize > s.end {
		return nil, io.ErrUnexpectedEOF
	}
	if err := s.log.ReadAt(fixed[:], s.off); err != nil {
		return nil, err
	}

	tag := fixed[0]
	keyLen := binary.LittleEndian.Uint32(fixed[1:5])
	valLen := binary.LittleEndian.Uint32(fixed[5:9])

	if tag != TagPut && tag != TagDelete && tag != TagCommit {
		// Tag zero costuma ser região prealocada não escrita; qualquer outra
		// coisa é corrupção de verdade.
		if tag == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, &errors.CorruptionError{Offset: s.off, Msg: "unknown entry tag"}
	}

	if keyLen > s.log.header.MaxKey || valLen > s.log.header.MaxValue {
		return nil, &errors.CorruptionError{Offset: s.off, Msg: "entry length exceeds declared limits"}
	}

	total := int64(EncodedLen(int(keyLen), int(valLen), s.log.Checksums()))
	if s.off+total > s.end {
		return nil, io.ErrUnexpectedEOF
	}

	payload := make([]byte, keyLen+valLen)
	if err := s.log.ReadAt(payload, s.off+entryFixedSize); err != nil {
		return nil, err
	}

	if s.log.Checksums() {
		var crcBuf [checksumSize]byte
		if err := s.log.ReadAt(crcBuf[:], s.off+entryFixedSize+int64(keyLen+valLen)); err != nil {
			return nil, err
		}
		stored := binary.LittleEndian.Uint32(crcBuf[:])

		full := make([]byte, entryFixedSize+len(payload))
		copy(full, fixed[:])
		copy(full[entryFixedSize:], payload)
		if !ValidateChecksum(full, stored) {
			return nil, &errors.CorruptionError{Offset: s.off, Msg: "checksum mismatch"}
		}
	}

	s.entryOff = s.off
	s.off += total

	return &Entry{
		Tag:   tag,
		Key:   payload[:keyLen],
		Value: payload[keyLen:],
	}, nil
}
