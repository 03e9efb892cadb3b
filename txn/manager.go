// Package txn implements the transaction manager of the page store.
//
// The manager gives transactions atomic, durable page-level access to a set
// of numbered data files. Every mutation is appended to the WAL and indexed in
// memory before the call returns; data files only change when checkpointing
// or crash recovery applies committed records.
//
// A transaction sees its own writes plus the writes of transactions that
// committed before it began. The Manager is not safe for concurrent use; the
// root package serializes calls.
package txn

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/btree"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/internal/fs"
	"github.com/hupe1980/pagestore/wal"
)

// WALFileName is the name of the log inside the store directory.
const WALFileName = "WAL"

// maxExtent is the largest page count whose byte size fits an int64.
const maxExtent = math.MaxInt64 / core.PageSize

// Manager coordinates transactions, the WAL and the data files of one directory.
type Manager struct {
	dir             string
	fs              fs.FileSystem
	logger          *slog.Logger
	walOpts         wal.Options
	syncConcurrency int

	wal   *wal.WAL
	files map[core.FileID]fs.File
	dirty map[core.FileID]struct{}

	pageEvents   map[core.PageOffset][]core.TransactionWalOffset
	fileEvents   map[core.FileID][]core.TransactionWalOffset
	transactions map[core.TransactionID]*transaction
	pending      *btree.BTreeG[pendingRecord]

	lastTxn  core.TransactionID
	nextFile core.FileID
	seq      uint64

	recovered bool
	closed    bool
}

// New opens the store directory, creating it if needed. CrashRecover must run
// before the first transaction begins.
func New(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:             dir,
		fs:              fs.Default,
		logger:          slog.New(slog.DiscardHandler),
		walOpts:         wal.DefaultOptions(),
		syncConcurrency: 4,
		files:           make(map[core.FileID]fs.File),
		dirty:           make(map[core.FileID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resetIndexes()

	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	next, err := m.scanFileIDs()
	if err != nil {
		return nil, err
	}
	m.nextFile = next

	w, err := wal.Open(m.fs, filepath.Join(dir, WALFileName), m.walOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	m.wal = w

	m.logger.Debug("transaction manager opened", "dir", dir, "wal_size", w.Size(), "next_file", next)
	return m, nil
}

func (m *Manager) resetIndexes() {
	m.pageEvents = make(map[core.PageOffset][]core.TransactionWalOffset)
	m.fileEvents = make(map[core.FileID][]core.TransactionWalOffset)
	m.transactions = make(map[core.TransactionID]*transaction)
	m.pending = newPendingTree()
}

// scanFileIDs returns one past the largest numeric file name in the directory.
func (m *Manager) scanFileIDs() (core.FileID, error) {
	entries, err := m.fs.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("%w: scan directory: %w", ErrIOFailure, err)
	}
	var next core.FileID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil || id == math.MaxUint64 {
			continue
		}
		if core.FileID(id) >= next {
			next = core.FileID(id) + 1
		}
	}
	return next, nil
}

// Dir returns the store directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(file core.FileID) string {
	return filepath.Join(m.dir, file.String())
}

// handle returns the cached handle of file. Without create a missing file
// yields a nil handle and no error.
func (m *Manager) handle(file core.FileID, create bool) (fs.File, error) {
	if f, ok := m.files[file]; ok {
		return f, nil
	}
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := m.fs.OpenFile(m.path(file), flag, 0o644)
	if err != nil {
		if !create && isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIOFailure, file, err)
	}
	m.files[file] = f
	return f, nil
}

func (m *Manager) dropHandle(file core.FileID) error {
	f, ok := m.files[file]
	if !ok {
		return nil
	}
	delete(m.files, file)
	return f.Close()
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func (m *Manager) checkUsable() error {
	if m.closed {
		return ErrClosed
	}
	if !m.recovered {
		return ErrRecoveryRequired
	}
	return nil
}

// open returns the state of an open transaction.
func (m *Manager) open(id core.TransactionID) (*transaction, error) {
	if err := m.checkUsable(); err != nil {
		return nil, err
	}
	t, ok := m.transactions[id]
	if !ok || t.committed {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTransaction, id)
	}
	return t, nil
}

// Begin starts a transaction.
func (m *Manager) Begin() (core.TransactionID, error) {
	if err := m.checkUsable(); err != nil {
		return 0, err
	}
	if m.lastTxn == core.MaxTransactionID {
		return 0, ErrTransactionIDExhausted
	}
	m.lastTxn++
	m.seq++
	m.transactions[m.lastTxn] = &transaction{id: m.lastTxn, beginSeq: m.seq}
	return m.lastTxn, nil
}

// Commit durably marks txn as committed. Its writes become visible to
// transactions that begin afterwards.
func (m *Manager) Commit(txn core.TransactionID) error {
	t, err := m.open(txn)
	if err != nil {
		return err
	}
	if _, err := m.wal.CommitTransaction(txn); err != nil {
		return fmt.Errorf("%w: commit %d: %w", ErrIOFailure, txn, err)
	}
	m.seq++
	t.committed = true
	t.commitSeq = m.seq
	if len(t.chain) == 0 {
		delete(m.transactions, txn)
	}
	return nil
}

// ReadPage returns the image of page as txn sees it.
func (m *Manager) ReadPage(txn core.TransactionID, file core.FileID, page core.PageID) (*core.Page, error) {
	t, err := m.open(txn)
	if err != nil {
		return nil, err
	}
	return m.readPage(t, file, page)
}

// WritePage replaces page with image inside txn. The current image becomes
// the undo image of the logged record. Data files are not touched.
func (m *Manager) WritePage(txn core.TransactionID, file core.FileID, page core.PageID, image *core.Page) error {
	if image == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidAddress)
	}
	t, err := m.open(txn)
	if err != nil {
		return err
	}
	current, err := m.readPage(t, file, page)
	if err != nil {
		return err
	}
	redo := *image
	off, err := m.wal.ModifyPage(txn, file, page, current, &redo)
	if err != nil {
		return fmt.Errorf("%w: log page %d of file %s: %w", ErrIOFailure, page, file, err)
	}
	m.index(t, pendingRecord{offset: off, txn: txn, kind: wal.KindModifyPage, file: file, page: page})
	return nil
}

// CreateFile allocates a new FileID and creates an empty file with it inside txn.
func (m *Manager) CreateFile(txn core.TransactionID) (core.FileID, error) {
	t, err := m.open(txn)
	if err != nil {
		return 0, err
	}
	file := m.nextFile
	off, err := m.wal.CreateFile(txn, file)
	if err != nil {
		return 0, fmt.Errorf("%w: log create of file %s: %w", ErrIOFailure, file, err)
	}
	m.nextFile++
	m.index(t, pendingRecord{offset: off, txn: txn, kind: wal.KindCreateFile, file: file})
	return file, nil
}

// DeleteFile removes file inside txn.
func (m *Manager) DeleteFile(txn core.TransactionID, file core.FileID) error {
	t, err := m.open(txn)
	if err != nil {
		return err
	}
	exists, _, err := m.fileState(t, file)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrInvalidFile, file)
	}
	off, err := m.wal.DeleteFile(txn, file)
	if err != nil {
		return fmt.Errorf("%w: log delete of file %s: %w", ErrIOFailure, file, err)
	}
	m.index(t, pendingRecord{offset: off, txn: txn, kind: wal.KindDeleteFile, file: file})
	return nil
}

// ExtendFile changes the page count of file by delta and returns the new
// extent. A negative delta shrinks the file; the extent cannot go below zero.
func (m *Manager) ExtendFile(txn core.TransactionID, file core.FileID, delta int64) (uint64, error) {
	t, err := m.open(txn)
	if err != nil {
		return 0, err
	}
	exists, extent, err := m.fileState(t, file)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFile, file)
	}
	if delta == 0 {
		return extent, nil
	}

	var next uint64
	switch {
	case delta < 0:
		shrink := uint64(-delta) //nolint:gosec // delta is negative
		if shrink > extent {
			return 0, fmt.Errorf("%w: shrink file %s by %d pages (extent %d)", ErrInvalidAddress, file, shrink, extent)
		}
		next = extent - shrink
	default:
		grow := uint64(delta)
		if grow > maxExtent-extent {
			return 0, fmt.Errorf("%w: grow file %s by %d pages (extent %d)", ErrInvalidAddress, file, grow, extent)
		}
		next = extent + grow
	}

	off, err := m.wal.ExtendFile(txn, file, delta, next)
	if err != nil {
		return 0, fmt.Errorf("%w: log extend of file %s: %w", ErrIOFailure, file, err)
	}
	m.index(t, pendingRecord{offset: off, txn: txn, kind: wal.KindExtendFile, file: file, extent: next})
	return next, nil
}

// Extent returns the number of pages of file as txn sees it.
func (m *Manager) Extent(txn core.TransactionID, file core.FileID) (uint64, error) {
	t, err := m.open(txn)
	if err != nil {
		return 0, err
	}
	exists, extent, err := m.fileState(t, file)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFile, file)
	}
	return extent, nil
}

// Stats is a snapshot of the manager's bookkeeping.
type Stats struct {
	OpenTransactions      int
	CommittedTransactions int
	PendingRecords        int
	OpenFiles             int
	WALSize               int64
	NextFileID            core.FileID
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		PendingRecords: m.pending.Len(),
		OpenFiles:      len(m.files),
		NextFileID:     m.nextFile,
	}
	if m.wal != nil {
		s.WALSize = m.wal.Size()
	}
	for _, t := range m.transactions {
		if t.committed {
			s.CommittedTransactions++
		} else {
			s.OpenTransactions++
		}
	}
	return s
}

// Close releases the WAL and every cached file handle. Pending records stay
// in the WAL and are replayed by the next CrashRecover.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for id := range m.files {
		if err := m.dropHandle(id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.wal.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
