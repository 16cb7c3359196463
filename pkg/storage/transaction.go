package storage

import (
	"fmt"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/wal"
)

// TxState é o estado da transação: Active -> {Committed, RolledBack}.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

// undoOp é a operação inversa de uma escrita já aplicada ao log.
type undoOp struct {
	key      []byte
	hadValue bool   // true: restaurar prior com Put; false: desfazer com Delete
	prior    []byte // Valor anterior quando hadValue
}

// Transaction aplica escritas direto no log (write-through) e acumula o
// undo log em memória. Durável somente após o CommitMarker.
type Transaction struct {
	engine   *StorageEngine
	id       uint64
	state    TxState
	undo     []undoOp
	writes   int  // Escritas aplicadas ao log por esta transação
	poisoned bool // Falha de I/O no meio da tx: só rollback é permitido
}

// ID retorna o contador monotônico desta transação.
func (tx *Transaction) ID() uint64 { return tx.id }

// State retorna o estado atual.
func (tx *Transaction) State() TxState { return tx.state }

func (tx *Transaction) usable() error {
	if tx.state != TxActive {
		return &errors.TxStateError{Msg: "transaction already finished"}
	}
	if tx.poisoned {
		return &errors.TxStateError{Msg: "transaction poisoned by an I/O failure; only rollback is permitted"}
	}
	return nil
}

// Set grava a chave dentro da transação.
func (tx *Transaction) Set(key, value []byte) error {
	if err := tx.usable(); err != nil {
		return err
	}

	// Captura o estado anterior para o undo log
	prior, existed, err := tx.engine.Get(key)
	if err != nil {
		tx.poisoned = true
		return err
	}
	if existed {
		tx.undo = append(tx.undo, undoOp{key: append([]byte(nil), key...), hadValue: true, prior: prior})
	} else {
		tx.undo = append(tx.undo, undoOp{key: append([]byte(nil), key...)})
	}

	if err := tx.engine.Set(key, value); err != nil {
		// Limites (KeyTooLarge/ValueTooLarge) não tocam o log; só I/O envenena
		tx.undo = tx.undo[:len(tx.undo)-1]
		switch err.(type) {
		case *errors.KeyTooLargeError, *errors.ValueTooLargeError:
		default:
			tx.poisoned = true
		}
		return err
	}
	tx.writes++
	return nil
}

// Delete remove a chave dentro da transação.
func (tx *Transaction) Delete(key []byte) (bool, error) {
	if err := tx.usable(); err != nil {
		return false, err
	}

	prior, existed, err := tx.engine.Get(key)
	if err != nil {
		tx.poisoned = true
		return false, err
	}
	if existed {
		tx.undo = append(tx.undo, undoOp{key: append([]byte(nil), key...), hadValue: true, prior: prior})
	}

	deleted, err := tx.engine.Delete(key)
	if err != nil {
		if existed {
			tx.undo = tx.undo[:len(tx.undo)-1]
		}
		tx.poisoned = true
		return false, err
	}
	tx.writes++
	return deleted, nil
}

// Get lê através do engine: enxerga as escritas da própria transação.
func (tx *Transaction) Get(key []byte) ([]byte, bool, error) {
	return tx.engine.Get(key)
}

// Scan lê através do engine (vê as próprias escritas).
func (tx *Transaction) Scan(start, end []byte) *ScanIterator {
	return tx.engine.Scan(start, end)
}

// Commit grava o CommitMarker, aplica a política de fsync e libera o writer.
// Falha de durabilidade desfaz a transação via undo-replay.
func (tx *Transaction) Commit() error {
	if tx.state != TxActive {
		return &errors.TxStateError{Msg: "transaction already finished"}
	}
	if tx.poisoned {
		return &errors.TxStateError{Msg: "transaction poisoned by an I/O failure; only rollback is permitted"}
	}

	se := tx.engine

	// Transação sem escritas não precisa de marker nem fsync
	if tx.writes == 0 {
		tx.state = TxCommitted
		se.activeTx = nil
		return nil
	}

	if _, err := se.log.Append(wal.TagCommit, commitMarkerKey(tx.id), nil); err != nil {
		tx.poisoned = true
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("commit failed: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("commit failed, transaction rolled back: %w", err)
	}

	if err := se.log.CommitSync(); err != nil {
		tx.poisoned = true
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("commit fsync failed: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("commit fsync failed, transaction rolled back: %w", err)
	}

	tx.state = TxCommitted
	tx.undo = nil
	se.activeTx = nil

	se.maybeCompact()
	return nil
}

// Rollback reaplica o undo log em ordem reversa como Puts/Deletes comuns e
// fecha o lote com um CommitMarker. O efeito líquido no índice é zero.
func (tx *Transaction) Rollback() error {
	if tx.state != TxActive {
		return &errors.TxStateError{Msg: "transaction already finished"}
	}

	se := tx.engine
	var firstErr error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		op := tx.undo[i]
		var err error
		if op.hadValue {
			err = se.Set(op.key, op.prior)
		} else {
			_, err = se.Delete(op.key)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr == nil && tx.writes > 0 {
		if _, err := se.log.Append(wal.TagCommit, commitMarkerKey(tx.id), nil); err != nil {
			firstErr = err
		} else if err := se.log.CommitSync(); err != nil {
			firstErr = err
		}
	}

	tx.state = TxRolledBack
	tx.undo = nil
	se.activeTx = nil

	if firstErr != nil {
		return fmt.Errorf("rollback: %w", firstErr)
	}
	return nil
}
