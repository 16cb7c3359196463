package storage

import (
	"bytes"
	"fmt"

	"github.com/tegdb/tegdb/pkg/btree"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/wal"
)

// TxKeyPrefix é o namespace reservado das chaves de CommitMarker.
const TxKeyPrefix = "__tx__"

// StorageEngine é o dono exclusivo do log e do índice de chaves.
// Single-writer: um flock garante exclusão entre processos e activeTx
// garante uma única transação por vez dentro do processo.
type StorageEngine struct {
	log   *wal.LogFile
	index *btree.BPlusTree
	cache *valueCache
	lock  *fileLock

	activeTx *Transaction
	txCount  uint64 // Contador monotônico de transações (chave do CommitMarker)

	liveDataSize      int64 // Bytes de chaves+valores vivos
	sizeAtLastCompact int64
}

// Open abre o banco em path, adquire o lock de escrita e reconstrói o
// índice a partir do log (recovery).
func Open(path string, opts wal.Options) (*StorageEngine, error) {
	lock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	logFile, err := wal.Open(path, opts)
	if err != nil {
		lock.release()
		return nil, err
	}

	se := &StorageEngine{
		log:   logFile,
		index: btree.NewTree(btree.DefaultDegree),
		cache: newValueCache(opts.CacheBytes),
		lock:  lock,
	}

	if err := se.recover(); err != nil {
		logFile.Close()
		lock.release()
		return nil, err
	}

	se.sizeAtLastCompact = se.log.Size()
	return se, nil
}

// Close fecha o log e libera o lock. Uma transação ativa é descartada
// (rollback) antes do fechamento.
func (se *StorageEngine) Close() error {
	if se.activeTx != nil {
		if err := se.activeTx.Rollback(); err != nil {
			se.log.Close()
			se.lock.release()
			return err
		}
	}

	err := se.log.Close()
	if lErr := se.lock.release(); err == nil {
		err = lErr
	}
	return err
}

// Len retorna o número de chaves vivas.
func (se *StorageEngine) Len() int {
	return se.index.Len()
}

// Path retorna o caminho do arquivo .teg.
func (se *StorageEngine) Path() string {
	return se.log.Path()
}

// Stats retorna os contadores do cache de valores.
func (se *StorageEngine) Stats() CacheStats {
	return CacheStats{Hits: se.cache.hits, Misses: se.cache.misses, Used: se.cache.used}
}

// Get retorna o valor vivo da chave, ou (nil, false) se ausente.
func (se *StorageEngine) Get(key []byte) ([]byte, bool, error) {
	ref, ok := se.index.Get(key)
	if !ok {
		return nil, false, nil
	}
	v, err := se.readRef(ref)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (se *StorageEngine) readRef(ref btree.Ref) ([]byte, error) {
	if ref.Inline != nil {
		return ref.Inline, nil
	}
	if v, ok := se.cache.get(ref.Offset); ok {
		return v, nil
	}

	buf := make([]byte, ref.Len)
	if err := se.log.ReadAt(buf, ref.Offset); err != nil {
		return nil, err
	}
	se.cache.put(ref.Offset, buf)
	return buf, nil
}

// Set grava a chave (write-through: append no log + índice).
func (se *StorageEngine) Set(key, value []byte) error {
	off, err := se.log.Append(wal.TagPut, key, value)
	if err != nil {
		return err
	}

	ref := btree.Ref{
		Offset: off + wal.ValuePayloadOffset(len(key)),
		Len:    uint32(len(value)),
	}
	if len(value) <= se.log.Options().InlineValueThreshold {
		ref.Inline = append([]byte(nil), value...)
	}

	if old, existed := se.index.Get(key); existed {
		se.liveDataSize -= int64(len(key)) + int64(old.Len)
		se.cache.invalidate(old.Offset)
	}
	se.index.Set(key, ref)
	se.liveDataSize += int64(len(key)) + int64(len(value))
	return nil
}

// Delete grava o tombstone e remove a chave do índice.
// Retorna se a chave estava viva.
func (se *StorageEngine) Delete(key []byte) (bool, error) {
	if _, err := se.log.Append(wal.TagDelete, key, nil); err != nil {
		return false, err
	}

	old, existed := se.index.Get(key)
	if existed {
		se.liveDataSize -= int64(len(key)) + int64(old.Len)
		se.cache.invalidate(old.Offset)
		se.index.Remove(key)
	}
	return existed, nil
}

// ScanIterator percorre um range semiaberto [start, end) em ordem de chave.
// Os valores são lidos de forma lazy em Value().
type ScanIterator struct {
	se     *StorageEngine
	cursor *btree.Cursor
	end    []byte
	ref    btree.Ref
	key    []byte
}

// Scan inicia a iteração sobre [start, end). end == nil itera até o fim.
func (se *StorageEngine) Scan(start, end []byte) *ScanIterator {
	c := se.index.NewCursor()
	c.Seek(se.index, start)
	return &ScanIterator{se: se, cursor: c, end: end}
}

// Next avança; retorna false no fim do range.
func (it *ScanIterator) Next() bool {
	if !it.cursor.Valid() {
		return false
	}
	key := it.cursor.Key()
	if it.end != nil && bytes.Compare(key, it.end) >= 0 {
		return false
	}
	it.key = key
	it.ref = it.cursor.Ref()
	it.cursor.Next()
	return true
}

func (it *ScanIterator) Key() []byte { return it.key }

func (it *ScanIterator) Value() ([]byte, error) {
	return it.se.readRef(it.ref)
}

// Begin inicia uma transação. O engine é single-writer: uma segunda chamada
// com transação ativa falha com TxState.
func (se *StorageEngine) Begin() (*Transaction, error) {
	if se.activeTx != nil {
		return nil, &errors.TxStateError{Msg: "a transaction is already active"}
	}

	se.txCount++
	tx := &Transaction{
		engine: se,
		id:     se.txCount,
		state:  TxActive,
	}
	se.activeTx = tx
	return tx, nil
}

// commitMarkerKey codifica a identidade da transação na chave do marker.
func commitMarkerKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", TxKeyPrefix, id))
}
