package txn

import (
	"fmt"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/wal"
)

// Rollback abandons txn. An abort record is logged first; then the
// transaction's records are unlinked newest first, which restores what every
// touched page and file looked like before txn. Data files are not written
// because records of uncommitted transactions are never checkpointed.
func (m *Manager) Rollback(txn core.TransactionID) error {
	t, err := m.open(txn)
	if err != nil {
		return err
	}
	if _, err := m.wal.AbortTransaction(txn); err != nil {
		return fmt.Errorf("%w: abort %d: %w", ErrIOFailure, txn, err)
	}

	for i := len(t.chain) - 1; i >= 0; i-- {
		if r, ok := m.record(t.chain[i]); ok {
			m.unlink(r)
		}
	}
	delete(m.transactions, txn)
	return nil
}

// UndoChain returns the undo images txn logged for one page, newest first.
// Reinstating them in order walks the page back to its state before txn.
func (m *Manager) UndoChain(txn core.TransactionID, file core.FileID, page core.PageID) ([]*core.Page, error) {
	t, err := m.open(txn)
	if err != nil {
		return nil, err
	}

	var undo []*core.Page
	for i := len(t.chain) - 1; i >= 0; i-- {
		r, ok := m.record(t.chain[i])
		if !ok || r.kind != wal.KindModifyPage || r.file != file || r.page != page {
			continue
		}
		e, err := m.readEntry(r.offset)
		if err != nil {
			return nil, err
		}
		undo = append(undo, e.Undo)
	}
	return undo, nil
}
