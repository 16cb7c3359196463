package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/tegdb/tegdb/pkg/btree"
	"github.com/tegdb/tegdb/pkg/wal"
)

// maybeCompact dispara a compactação quando os três gatilhos valem ao
// mesmo tempo: tamanho absoluto, razão log/vivo e crescimento desde a
// última compactação.
func (se *StorageEngine) maybeCompact() {
	opts := se.log.Options()
	logSize := se.log.Size()

	if logSize <= opts.CompactAbsoluteThreshold {
		return
	}
	live := se.liveDataSize
	if live <= 0 {
		live = 1
	}
	if float64(logSize)/float64(live) <= opts.CompactRatio {
		return
	}
	if logSize-se.sizeAtLastCompact <= opts.CompactMinDelta {
		return
	}

	if err := se.Compact(); err != nil {
		// Compactação é manutenção: falhar aqui não pode derrubar o commit
		// que a disparou. O log antigo permanece intacto.
		fmt.Printf("tegdb: compaction failed: %v\n", err)
	}
}

// Compact reescreve a região de dados emitindo um Put por chave viva,
// fecha com um único CommitMarker de cauda e troca o arquivo de forma
// atômica: ou o novo substitui o antigo por inteiro, ou o antigo permanece.
func (se *StorageEngine) Compact() error {
	if se.activeTx != nil {
		return fmt.Errorf("cannot compact with an active transaction")
	}

	tmpPath := fmt.Sprintf("%s.compact-%s", se.log.Path(), uuid.NewString())
	opts := se.log.Options()

	newLog, err := wal.Open(tmpPath, opts)
	if err != nil {
		return fmt.Errorf("compaction temp file: %w", err)
	}

	// Novo índice construído junto com o novo arquivo
	newIndex := btree.NewTree(btree.DefaultDegree)
	var newLive int64

	it := se.Scan(nil, nil)
	for it.Next() {
		key := it.Key()
		value, err := it.Value()
		if err != nil {
			newLog.Close()
			return fmt.Errorf("compaction read: %w", err)
		}

		off, err := newLog.Append(wal.TagPut, key, value)
		if err != nil {
			newLog.Close()
			return fmt.Errorf("compaction write: %w", err)
		}

		ref := btree.Ref{
			Offset: off + wal.ValuePayloadOffset(len(key)),
			Len:    uint32(len(value)),
		}
		if len(value) <= opts.InlineValueThreshold {
			ref.Inline = append([]byte(nil), value...)
		}
		newIndex.Set(key, ref)
		newLive += int64(len(key)) + int64(len(value))
	}

	// Marker de cauda fecha o lote da compactação
	se.txCount++
	if _, err := newLog.Append(wal.TagCommit, commitMarkerKey(se.txCount), nil); err != nil {
		newLog.Close()
		return fmt.Errorf("compaction commit marker: %w", err)
	}
	// Sync também grava ValidDataEnd no cabeçalho do novo arquivo
	if err := newLog.Sync(); err != nil {
		newLog.Close()
		return fmt.Errorf("compaction sync: %w", err)
	}
	if err := newLog.Close(); err != nil {
		return fmt.Errorf("compaction close: %w", err)
	}

	// Troca atômica no nível do filesystem
	if err := se.log.Close(); err != nil {
		return err
	}
	if err := atomic.ReplaceFile(tmpPath, se.Path()); err != nil {
		// O antigo continua válido; reabre e segue
		reopened, rErr := wal.Open(se.Path(), opts)
		if rErr != nil {
			return fmt.Errorf("compaction swap failed (%v) and reopen failed: %w", err, rErr)
		}
		se.log = reopened
		return fmt.Errorf("compaction swap: %w", err)
	}

	reopened, err := wal.Open(se.Path(), opts)
	if err != nil {
		return fmt.Errorf("reopening compacted log: %w", err)
	}

	se.log = reopened
	se.index = newIndex
	se.liveDataSize = newLive
	se.sizeAtLastCompact = reopened.Size()
	se.cache.reset()

	fmt.Printf("tegdb: compacted %s to %d live key(s), %d bytes\n", se.Path(), newIndex.Len(), reopened.Size())
	return nil
}
