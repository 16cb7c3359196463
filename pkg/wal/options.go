package wal

import "time"

// SyncPolicy define a estratégia de durabilidade
type SyncPolicy int

const (
	// SyncImmediate chama fsync() após cada append que fecha transação.
	// Mais seguro, menor performance.
	SyncImmediate SyncPolicy = iota

	// SyncGroupCommit coalesce flushes dentro de um intervalo.
	// RPO de durabilidade <= GroupCommitInterval.
	SyncGroupCommit
)

// Options configura o backend de log
type Options struct {
	// Política de Sync
	SyncPolicy SyncPolicy

	// Intervalo de coalescência para SyncGroupCommit
	GroupCommitInterval time.Duration

	// Tamanho do buffer em memória antes de flush para o SO (bufio)
	BufferSize int

	// Limites de chave/valor gravados no cabeçalho do arquivo
	MaxKeySize   uint32
	MaxValueSize uint32

	// Valores até este tamanho ficam inline no índice em memória
	InlineValueThreshold int

	// Capacidade (em bytes) do cache LRU de valores lidos do disco
	CacheBytes int64

	// CRC32 por entrada (FlagChecksums no cabeçalho)
	Checksums bool

	// Prealocação do arquivo em disco; 0 desabilita. Com prealocação,
	// ValidDataEnd no cabeçalho delimita os dados válidos.
	PreallocateSize int64

	// Gatilhos de compactação: os três precisam valer simultaneamente
	CompactAbsoluteThreshold int64   // log_size mínimo
	CompactRatio             float64 // log_size / live_data_size
	CompactMinDelta          int64   // crescimento desde a última compactação
}

// DefaultOptions retorna uma configuração segura
func DefaultOptions() Options {
	return Options{
		SyncPolicy:               SyncImmediate,
		GroupCommitInterval:      200 * time.Millisecond,
		BufferSize:               64 * 1024, // 64KB bufio buffer
		MaxKeySize:               4 * 1024,
		MaxValueSize:             16 * 1024 * 1024,
		InlineValueThreshold:     256,
		CacheBytes:               8 * 1024 * 1024,
		Checksums:                false,
		CompactAbsoluteThreshold: 4 * 1024 * 1024,
		CompactRatio:             2.0,
		CompactMinDelta:          1 * 1024 * 1024,
	}
}
