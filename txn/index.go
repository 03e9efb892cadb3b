package txn

import (
	"github.com/google/btree"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/wal"
)

// pendingRecord describes an indexed WAL record that checkpointing has not
// applied yet. It keeps what visibility checks need so they do not have to
// decode the record.
type pendingRecord struct {
	offset core.WalOffset
	txn    core.TransactionID
	kind   wal.EventKind
	file   core.FileID
	page   core.PageID
	extent uint64
}

func (r pendingRecord) pageOffset() core.PageOffset {
	return core.PageOffset{File: r.file, Page: r.page}
}

func pendingLess(a, b pendingRecord) bool { return a.offset < b.offset }

func newPendingTree() *btree.BTreeG[pendingRecord] {
	return btree.NewG(32, pendingLess)
}

// transaction is the in-memory state of one transaction.
type transaction struct {
	id core.TransactionID
	// chain holds the offsets of the transaction's indexed records in append order.
	chain     []core.WalOffset
	beginSeq  uint64
	commitSeq uint64
	committed bool
}

func removeOffset(list []core.WalOffset, off core.WalOffset) []core.WalOffset {
	for i, o := range list {
		if o == off {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeEvent(list []core.TransactionWalOffset, off core.WalOffset) []core.TransactionWalOffset {
	for i, e := range list {
		if e.Offset == off {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// index records a newly appended event for txn t.
func (m *Manager) index(t *transaction, r pendingRecord) {
	ref := core.TransactionWalOffset{Txn: t.id, Offset: r.offset}
	if r.kind == wal.KindModifyPage {
		po := r.pageOffset()
		m.pageEvents[po] = append(m.pageEvents[po], ref)
	} else {
		m.fileEvents[r.file] = append(m.fileEvents[r.file], ref)
	}
	t.chain = append(t.chain, r.offset)
	m.pending.ReplaceOrInsert(r)
}

// unlink removes r from the per-key lists, the pending set and its
// transaction's chain. A committed transaction left without records is dropped.
func (m *Manager) unlink(r pendingRecord) {
	if r.kind == wal.KindModifyPage {
		po := r.pageOffset()
		if list := removeEvent(m.pageEvents[po], r.offset); len(list) > 0 {
			m.pageEvents[po] = list
		} else {
			delete(m.pageEvents, po)
		}
	} else {
		if list := removeEvent(m.fileEvents[r.file], r.offset); len(list) > 0 {
			m.fileEvents[r.file] = list
		} else {
			delete(m.fileEvents, r.file)
		}
	}
	m.pending.Delete(r)

	if t, ok := m.transactions[r.txn]; ok {
		t.chain = removeOffset(t.chain, r.offset)
		if t.committed && len(t.chain) == 0 {
			delete(m.transactions, r.txn)
		}
	}
}

// isHead reports whether r is the oldest entry of its per-key list.
func (m *Manager) isHead(r pendingRecord) bool {
	var list []core.TransactionWalOffset
	if r.kind == wal.KindModifyPage {
		list = m.pageEvents[r.pageOffset()]
	} else {
		list = m.fileEvents[r.file]
	}
	return len(list) > 0 && list[0].Offset == r.offset
}

func (m *Manager) record(off core.WalOffset) (pendingRecord, bool) {
	return m.pending.Get(pendingRecord{offset: off})
}
