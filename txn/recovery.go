package txn

import (
	"fmt"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/wal"
)

// RecoveryStats reports what CrashRecover found in the WAL.
type RecoveryStats struct {
	// Scanned is the number of decodable records.
	Scanned int
	// Replayed is the number of records of committed transactions applied to the data files.
	Replayed int
	// Discarded is the number of records of transactions that never committed.
	Discarded int
	// Committed is the number of committed transactions found.
	Committed int
	// TornTail is set when undecodable bytes followed the last record.
	TornTail bool
}

// CrashRecover replays the redo of every committed transaction in the WAL,
// syncs the data files and empties the WAL. Records of transactions without a
// commit record are discarded, and scanning stops at the first record that
// does not decode. Afterwards the manager starts with empty indexes and the
// transaction counter at zero.
//
// It must run before the first Begin and may run again while no transaction is open.
func (m *Manager) CrashRecover() (RecoveryStats, error) {
	if m.closed {
		return RecoveryStats{}, ErrClosed
	}
	for _, t := range m.transactions {
		if !t.committed {
			return RecoveryStats{}, ErrTransactionsOpen
		}
	}

	var stats RecoveryStats
	committed := make(map[core.TransactionID]struct{})
	res, err := m.wal.Replay(func(_ core.WalOffset, e *wal.Event) error {
		if e.Kind == wal.KindCommitTransaction {
			committed[e.Txn] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: scan WAL: %w", ErrIOFailure, err)
	}
	stats.Scanned = res.Records
	stats.TornTail = res.TornTail
	stats.Committed = len(committed)

	_, err = m.wal.Replay(func(_ core.WalOffset, e *wal.Event) error {
		if e.Kind == wal.KindCommitTransaction || e.Kind == wal.KindAbortTransaction {
			return nil
		}
		if _, ok := committed[e.Txn]; !ok {
			stats.Discarded++
			return nil
		}
		stats.Replayed++
		return m.apply(e)
	})
	if err != nil {
		return stats, fmt.Errorf("replay WAL: %w", err)
	}

	if err := m.syncFiles(); err != nil {
		return stats, err
	}
	if err := m.wal.Truncate(); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	m.resetIndexes()
	m.lastTxn = 0
	m.seq = 0
	next, err := m.scanFileIDs()
	if err != nil {
		return stats, err
	}
	m.nextFile = next
	m.recovered = true

	m.logger.Debug("recovery scan finished",
		"scanned", stats.Scanned,
		"replayed", stats.Replayed,
		"discarded", stats.Discarded,
		"committed", stats.Committed,
		"torn_tail", stats.TornTail,
	)
	return stats, nil
}
