package pagestore

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/staging"
	"github.com/hupe1980/pagestore/txn"
)

// PageSize is the size of a page in bytes.
const PageSize = core.PageSize

type (
	// TransactionID identifies a transaction within one process lifetime.
	TransactionID = core.TransactionID
	// FileID identifies a data file.
	FileID = core.FileID
	// PageID is a page index within a file.
	PageID = core.PageID
	// Page is one page image.
	Page = core.Page
	// RecoveryStats reports what crash recovery found in the WAL.
	RecoveryStats = txn.RecoveryStats
	// Stats is a snapshot of the store's bookkeeping.
	Stats = txn.Stats
)

// Store is a transactional page store rooted at one directory.
// All methods are safe for concurrent use; calls are serialized.
type Store struct {
	mu      sync.Mutex
	mgr     *txn.Manager
	logger  *Logger
	metrics MetricsCollector
	opts    options

	recovery RecoveryStats
	closed   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the store in dir, creating the directory if needed, and runs
// crash recovery before returning. A failed recovery fails Open.
func Open(dir string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	mgr, err := txn.New(dir,
		txn.WithLogger(o.logger.Logger),
		txn.WithFileSystem(o.fs),
		txn.WithWALOptions(o.walOptions),
		txn.WithSyncConcurrency(o.syncConcurrency),
	)
	if err != nil {
		return nil, translateError(err)
	}

	s := &Store{
		mgr:     mgr,
		logger:  o.logger,
		metrics: o.metricsCollector,
		opts:    o,
	}

	if _, err := s.recover(context.Background()); err != nil {
		_ = mgr.Close()
		return nil, err
	}

	if o.checkpointInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.runCheckpointer(ctx)
	}
	return s, nil
}

func (s *Store) recover(ctx context.Context) (RecoveryStats, error) {
	start := time.Now()
	stats, err := s.mgr.CrashRecover()
	elapsed := time.Since(start)
	s.metrics.RecordRecovery(stats.Replayed, stats.Discarded, elapsed, err)
	s.logger.LogRecovery(ctx, stats, elapsed, err)
	if err != nil {
		return stats, translateError(err)
	}
	s.recovery = stats
	s.metrics.RecordWALSize(s.mgr.Stats().WALSize)
	return stats, nil
}

// Recover runs crash recovery again. It fails with ErrTransactionsOpen while
// any transaction is open.
func (s *Store) Recover(ctx context.Context) (RecoveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RecoveryStats{}, ErrClosed
	}
	return s.recover(ctx)
}

// LastRecovery returns the statistics of the most recent successful recovery.
func (s *Store) LastRecovery() RecoveryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovery
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.mgr.Dir() }

// Begin starts a transaction.
func (s *Store) Begin() (TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	id, err := s.mgr.Begin()
	return id, translateError(err)
}

// Commit makes the writes of txn durable and visible to later transactions.
func (s *Store) Commit(id TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	start := time.Now()
	err := s.mgr.Commit(id)
	s.metrics.RecordCommit(time.Since(start), err)
	s.metrics.RecordWALSize(s.mgr.Stats().WALSize)
	s.logger.LogCommit(context.Background(), id, err)
	return translateError(err)
}

// Rollback abandons txn and discards its writes.
func (s *Store) Rollback(id TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.mgr.Rollback(id)
	s.metrics.RecordRollback(err)
	s.logger.LogRollback(context.Background(), id, err)
	return translateError(err)
}

// ReadPage returns the image of page as txn sees it.
func (s *Store) ReadPage(id TransactionID, file FileID, page PageID) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	start := time.Now()
	img, err := s.mgr.ReadPage(id, file, page)
	s.metrics.RecordRead(time.Since(start), err)
	return img, translateError(err)
}

// WritePage replaces page with image inside txn.
func (s *Store) WritePage(id TransactionID, file FileID, page PageID, image *Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	start := time.Now()
	err := s.mgr.WritePage(id, file, page, image)
	s.metrics.RecordWrite(time.Since(start), err)
	return translateError(err)
}

// CreateFile creates an empty file inside txn and returns its id.
func (s *Store) CreateFile(id TransactionID) (FileID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	file, err := s.mgr.CreateFile(id)
	s.logger.LogFileOp(context.Background(), "create file", id, file, err)
	return file, translateError(err)
}

// DeleteFile removes file inside txn.
func (s *Store) DeleteFile(id TransactionID, file FileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.mgr.DeleteFile(id, file)
	s.logger.LogFileOp(context.Background(), "delete file", id, file, err)
	return translateError(err)
}

// ExtendFile grows (delta > 0) or shrinks (delta < 0) file by delta pages and
// returns the new page count.
func (s *Store) ExtendFile(id TransactionID, file FileID, delta int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	extent, err := s.mgr.ExtendFile(id, file, delta)
	s.logger.LogFileOp(context.Background(), "extend file", id, file, err)
	return extent, translateError(err)
}

// Extent returns the page count of file as txn sees it.
func (s *Store) Extent(id TransactionID, file FileID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	extent, err := s.mgr.Extent(id, file)
	return extent, translateError(err)
}

// UndoChain returns the undo images txn logged for page, newest first.
func (s *Store) UndoChain(id TransactionID, file FileID, page PageID) ([]*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	undo, err := s.mgr.UndoChain(id, file, page)
	return undo, translateError(err)
}

// Stage returns a byte-addressed proxy over file inside txn.
// The proxy calls back into the store on load and Flush.
func (s *Store) Stage(id TransactionID, file FileID) *staging.Proxy {
	return staging.New(s, id, file)
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mgr.Stats()
}

// CheckpointStep performs one unit of checkpoint work and reports whether it
// made progress.
func (s *Store) CheckpointStep() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.checkpointStepLocked()
}

func (s *Store) checkpointStepLocked() (bool, error) {
	before := s.mgr.Stats().WALSize
	start := time.Now()
	progressed, err := s.mgr.CheckpointStep()
	s.metrics.RecordCheckpointStep(progressed, time.Since(start), err)
	if err != nil {
		return false, translateError(err)
	}
	if after := s.mgr.Stats().WALSize; after != before {
		s.metrics.RecordWALSize(after)
		if after == 0 {
			s.logger.LogTruncate(context.Background(), before)
		}
	}
	return progressed, nil
}

// Checkpoint steps until no progress is possible or ctx is done, and
// returns the number of productive steps.
func (s *Store) Checkpoint(ctx context.Context) (int, error) {
	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		progressed, err := s.CheckpointStep()
		if err != nil {
			s.logger.LogCheckpoint(ctx, steps, s.Stats().PendingRecords, err)
			return steps, err
		}
		if !progressed {
			s.logger.LogCheckpoint(ctx, steps, s.Stats().PendingRecords, nil)
			return steps, nil
		}
		steps++
	}
}
