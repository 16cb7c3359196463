package wal

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/tegdb/tegdb/pkg/errors"
)

// LogFile gerencia o arquivo .teg: cabeçalho fixo + entradas append-only.
// O dono (StorageEngine) garante acesso single-writer.
type LogFile struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	options Options
	header  FileHeader

	writeOff   int64 // Cursor de escrita (próximo append)
	flushedOff int64 // Tudo abaixo deste offset já está no SO
	lastSync   time.Time
}

// Open abre (ou cria) o arquivo de log e valida o cabeçalho.
func Open(path string, opts Options) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir arquivo de log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &LogFile{
		path:    path,
		file:    f,
		writer:  bufio.NewWriterSize(f, opts.BufferSize),
		options: opts,
	}

	if info.Size() == 0 {
		// Arquivo novo: grava o cabeçalho
		l.header = FileHeader{
			Version:      FormatVersion,
			MaxKey:       opts.MaxKeySize,
			MaxValue:     opts.MaxValueSize,
			Endian:       EndianLittle,
			ValidDataEnd: FileHeaderSize,
		}
		if opts.Checksums {
			l.header.Flags |= FlagChecksums
		}
		if opts.PreallocateSize > 0 {
			l.header.Flags |= FlagPreallocated
		}
		if err := l.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		if opts.PreallocateSize > FileHeaderSize {
			if err := f.Truncate(opts.PreallocateSize); err != nil {
				f.Close()
				return nil, fmt.Errorf("preallocation failed: %w", err)
			}
		}
		if _, err := f.Seek(FileHeaderSize, 0); err != nil {
			f.Close()
			return nil, err
		}
		l.writeOff = FileHeaderSize
		l.flushedOff = FileHeaderSize
		return l, nil
	}

	if info.Size() < FileHeaderSize {
		f.Close()
		return nil, &errors.CorruptionError{Offset: 0, Msg: "file shorter than header"}
	}

	var hbuf [FileHeaderSize]byte
	if _, err := f.ReadAt(hbuf[:], 0); err != nil {
		f.Close()
		return nil, err
	}
	if err := l.header.Decode(hbuf[:]); err != nil {
		f.Close()
		return nil, err
	}

	// Limites efetivos vêm do arquivo, não das opções da sessão
	l.writeOff = l.DataEnd(info.Size())
	l.flushedOff = l.writeOff
	if _, err := f.Seek(l.writeOff, 0); err != nil {
		f.Close()
		return nil, err
	}
	l.writer.Reset(f)
	return l, nil
}

// DataEnd calcula o fim dos dados válidos dado o tamanho físico do arquivo.
// Com prealocação, o cabeçalho manda (limitado ao tamanho físico). Sem
// prealocação, um arquivo v2 usa ValidDataEnd quando ele cabe no arquivo;
// vale o tamanho do arquivo no formato v1 ou quando ValidDataEnd passa do
// fim físico.
func (l *LogFile) DataEnd(fileSize int64) int64 {
	if l.header.Flags&FlagPreallocated != 0 && l.header.ValidDataEnd >= FileHeaderSize {
		end := int64(l.header.ValidDataEnd)
		if end > fileSize {
			end = fileSize
		}
		return end
	}
	if l.header.Version >= 2 && l.header.ValidDataEnd >= FileHeaderSize && int64(l.header.ValidDataEnd) <= fileSize {
		return int64(l.header.ValidDataEnd)
	}
	return fileSize
}

func (l *LogFile) Header() FileHeader { return l.header }
func (l *LogFile) Path() string      { return l.path }
func (l *LogFile) Options() Options  { return l.options }

// Size retorna o fim lógico dos dados (cursor de escrita).
func (l *LogFile) Size() int64 { return l.writeOff }

// Checksums reporta se o arquivo carrega CRC por entrada.
func (l *LogFile) Checksums() bool { return l.header.Flags&FlagChecksums != 0 }

// Append grava uma entrada completa no cursor e retorna o offset absoluto dela.
func (l *LogFile) Append(tag uint8, key, value []byte) (int64, error) {
	if uint32(len(key)) > l.header.MaxKey {
		return 0, &errors.KeyTooLargeError{Size: len(key), Max: int(l.header.MaxKey)}
	}
	if uint32(len(value)) > l.header.MaxValue {
		return 0, &errors.ValueTooLargeError{Size: len(value), Max: int(l.header.MaxValue)}
	}

	buf := AcquireBuffer()
	*buf = AppendEntry((*buf)[:0], tag, key, value, l.Checksums())

	off := l.writeOff
	n, err := l.writer.Write(*buf)
	ReleaseBuffer(buf)
	if err != nil {
		return 0, fmt.Errorf("log append failed: %w", err)
	}

	l.writeOff += int64(n)
	return off, nil
}

// ReadAt lê buf no offset dado. Posicional e sem efeitos colaterais, exceto
// pelo flush do buffer de escrita quando a região pedida ainda não chegou
// ao SO.
func (l *LogFile) ReadAt(buf []byte, off int64) error {
	if off+int64(len(buf)) > l.flushedOff {
		if err := l.flush(); err != nil {
			return err
		}
	}
	if _, err := l.file.ReadAt(buf, off); err != nil {
		return fmt.Errorf("log read at %d failed: %w", off, err)
	}
	return nil
}

func (l *LogFile) flush() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}
	l.flushedOff = l.writeOff
	return nil
}

// Sync força flush + fsync e atualiza ValidDataEnd no cabeçalho.
func (l *LogFile) Sync() error {
	if err := l.flush(); err != nil {
		return err
	}

	l.header.ValidDataEnd = uint64(l.writeOff)
	if err := l.writeHeader(); err != nil {
		return err
	}

	if err := l.file.Sync(); err != nil {
		return err
	}
	l.lastSync = time.Now()
	return nil
}

// CommitSync aplica a política de durabilidade configurada a um commit.
func (l *LogFile) CommitSync() error {
	switch l.options.SyncPolicy {
	case SyncImmediate:
		return l.Sync()
	case SyncGroupCommit:
		if time.Since(l.lastSync) >= l.options.GroupCommitInterval {
			return l.Sync()
		}
		// Dentro da janela de coalescência: só garante que chegou ao SO
		return l.flush()
	}
	return l.Sync()
}

// Truncate corta o arquivo em validEnd (recuperação de append parcial).
func (l *LogFile) Truncate(validEnd int64) error {
	if validEnd < FileHeaderSize {
		validEnd = FileHeaderSize
	}
	if err := l.flush(); err != nil {
		return err
	}
	if err := l.file.Truncate(validEnd); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	if _, err := l.file.Seek(validEnd, 0); err != nil {
		return err
	}
	l.writer.Reset(l.file)
	l.writeOff = validEnd
	l.flushedOff = validEnd

	l.header.ValidDataEnd = uint64(validEnd)
	return l.writeHeader()
}

func (l *LogFile) writeHeader() error {
	var hbuf [FileHeaderSize]byte
	l.header.Encode(hbuf[:])
	if _, err := l.file.WriteAt(hbuf[:], 0); err != nil {
		return fmt.Errorf("header write failed: %w", err)
	}
	return nil
}

// Close faz o flush final e fecha o arquivo.
func (l *LogFile) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.Sync()
	if cErr := l.file.Close(); err == nil {
		err = cErr
	}
	l.file = nil
	return err
}
