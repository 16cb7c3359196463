package storage

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/tegdb/tegdb/pkg/btree"
	"github.com/tegdb/tegdb/pkg/wal"
)

// tentativeOp é uma escrita ainda não confirmada por CommitMarker.
type tentativeOp struct {
	delete bool
	ref    btree.Ref
	keyLen int
	valLen int
}

// recover reconstrói o índice varrendo o log do offset 64 até o fim dos
// dados válidos.
//
// Regras:
//  1. Put/Delete entram num conjunto tentativo.
//  2. CommitMarker promove o conjunto tentativo para o índice vivo.
//  3. Cauda sem CommitMarker no fim do log é descartada (a transação não
//     commitada é desfeita por omissão) e o arquivo é truncado na fronteira
//     do último commit.
func (se *StorageEngine) recover() error {
	end := se.log.DataEnd(se.log.Size())
	scanner := se.log.NewScanner(end)

	tentative := make(map[string]tentativeOp)
	var tentativeOrder []string

	commitBoundary := int64(wal.FileHeaderSize)
	entries := 0

	for {
		entry, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// Append parcial: trunca na última fronteira bem formada
			fmt.Printf("tegdb: truncating torn tail at offset %d\n", scanner.NextOffset())
			break
		}
		if err != nil {
			return fmt.Errorf("recovery failed at entry %d: %w", entries, err)
		}
		entries++

		switch entry.Tag {
		case wal.TagPut:
			k := string(entry.Key)
			ref := btree.Ref{
				Offset: scanner.EntryOffset() + wal.ValuePayloadOffset(len(entry.Key)),
				Len:    uint32(len(entry.Value)),
			}
			if len(entry.Value) <= se.log.Options().InlineValueThreshold {
				ref.Inline = append([]byte(nil), entry.Value...)
			}
			if _, seen := tentative[k]; !seen {
				tentativeOrder = append(tentativeOrder, k)
			}
			tentative[k] = tentativeOp{ref: ref, keyLen: len(entry.Key), valLen: len(entry.Value)}

		case wal.TagDelete:
			k := string(entry.Key)
			if _, seen := tentative[k]; !seen {
				tentativeOrder = append(tentativeOrder, k)
			}
			tentative[k] = tentativeOp{delete: true, keyLen: len(entry.Key)}

		case wal.TagCommit:
			// Promove o conjunto tentativo para o estado vivo
			for _, k := range tentativeOrder {
				op := tentative[k]
				key := []byte(k)
				if old, existed := se.index.Get(key); existed {
					se.liveDataSize -= int64(len(key)) + int64(old.Len)
				}
				if op.delete {
					se.index.Remove(key)
				} else {
					se.index.Set(key, op.ref)
					se.liveDataSize += int64(op.keyLen) + int64(op.valLen)
				}
			}
			tentative = make(map[string]tentativeOp)
			tentativeOrder = tentativeOrder[:0]
			commitBoundary = scanner.NextOffset()

			if id, ok := parseTxMarker(entry.Key); ok && id > se.txCount {
				se.txCount = id
			}
		}
	}

	// Cauda não commitada (ou rasgada): volta o arquivo para a fronteira do
	// último commit para que um próximo CommitMarker não a promova.
	if commitBoundary < se.log.Size() {
		discarded := len(tentativeOrder)
		if err := se.log.Truncate(commitBoundary); err != nil {
			return err
		}
		if discarded > 0 {
			fmt.Printf("tegdb: discarded %d uncommitted write(s) during recovery\n", discarded)
		}
	}

	return nil
}

func parseTxMarker(key []byte) (uint64, bool) {
	if !bytes.HasPrefix(key, []byte(TxKeyPrefix)) {
		return 0, false
	}
	id, err := strconv.ParseUint(string(key[len(TxKeyPrefix):]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
