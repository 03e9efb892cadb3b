package txn

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/internal/conv"
	"github.com/hupe1980/pagestore/internal/fs"
	"github.com/hupe1980/pagestore/wal"
)

// CheckpointStep performs one bounded unit of checkpoint work and reports
// whether it made progress. It never blocks waiting for transactions.
//
// A step applies the oldest applicable pending record to its data file. A
// record is applicable when its transaction committed before every open
// transaction began and no older pending record touches the same file. When
// nothing is pending and the WAL is not empty, the step syncs the data files
// and truncates the WAL instead.
func (m *Manager) CheckpointStep() (bool, error) {
	if err := m.checkUsable(); err != nil {
		return false, err
	}

	r, ok := m.nextApplicable()
	if ok {
		if err := m.applyRecord(r); err != nil {
			return false, err
		}
		m.unlink(r)
		return true, nil
	}

	if m.pending.Len() == 0 && m.wal.Size() > 0 {
		if err := m.truncateLog(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// oldestOpenBegin returns the smallest begin sequence of the open transactions.
func (m *Manager) oldestOpenBegin() uint64 {
	oldest := uint64(math.MaxUint64)
	for _, t := range m.transactions {
		if !t.committed && t.beginSeq < oldest {
			oldest = t.beginSeq
		}
	}
	return oldest
}

func (m *Manager) nextApplicable() (pendingRecord, bool) {
	horizon := m.oldestOpenBegin()
	blocked := make(map[core.FileID]struct{})

	var (
		found pendingRecord
		ok    bool
	)
	m.pending.Ascend(func(r pendingRecord) bool {
		if _, isBlocked := blocked[r.file]; !isBlocked && m.isHead(r) {
			if t, exists := m.transactions[r.txn]; exists && t.committed && t.commitSeq < horizon {
				found, ok = r, true
				return false
			}
		}
		blocked[r.file] = struct{}{}
		return true
	})
	return found, ok
}

// applyRecord writes the redo of a pending record to its data file.
func (m *Manager) applyRecord(r pendingRecord) error {
	e := &wal.Event{Kind: r.kind, Txn: r.txn, File: r.file, Page: r.page, Extent: r.extent}
	if r.kind == wal.KindModifyPage {
		full, err := m.readEntry(r.offset)
		if err != nil {
			return err
		}
		e = full
	}
	return m.apply(e)
}

// apply writes the effect of a committed event to the data files. Every
// operation sets absolute state, so applying an event twice is harmless.
func (m *Manager) apply(e *wal.Event) error {
	switch e.Kind {
	case wal.KindModifyPage:
		f, err := m.handle(e.File, true)
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(e.Redo[:], e.Page.ByteOffset()); err != nil {
			return fmt.Errorf("%w: write %s page %d: %w", ErrIOFailure, e.File, e.Page, err)
		}
		m.dirty[e.File] = struct{}{}
	case wal.KindCreateFile:
		f, err := m.handle(e.File, true)
		if err != nil {
			return err
		}
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrIOFailure, e.File, err)
		}
		m.dirty[e.File] = struct{}{}
	case wal.KindDeleteFile:
		if err := m.dropHandle(e.File); err != nil {
			return fmt.Errorf("%w: close %s: %w", ErrIOFailure, e.File, err)
		}
		if err := m.fs.Remove(m.path(e.File)); err != nil && !isNotExist(err) {
			return fmt.Errorf("%w: remove %s: %w", ErrIOFailure, e.File, err)
		}
		delete(m.dirty, e.File)
	case wal.KindExtendFile:
		f, err := m.handle(e.File, true)
		if err != nil {
			return err
		}
		size, err := conv.ByteSize(e.Extent, core.PageSize)
		if err != nil {
			return fmt.Errorf("%w: extent of %s: %w", ErrCorruptLog, e.File, err)
		}
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("%w: resize %s to %d pages: %w", ErrIOFailure, e.File, e.Extent, err)
		}
		m.dirty[e.File] = struct{}{}
	}
	return nil
}

// syncFiles fsyncs every dirty data file and the directory.
func (m *Manager) syncFiles() error {
	var g errgroup.Group
	g.SetLimit(m.syncConcurrency)
	for id := range m.dirty {
		f, ok := m.files[id]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := f.Sync(); err != nil {
				return fmt.Errorf("%w: sync %s: %w", ErrIOFailure, id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := fs.SyncDir(m.fs, m.dir); err != nil {
		return fmt.Errorf("%w: sync directory: %w", ErrIOFailure, err)
	}
	clear(m.dirty)
	return nil
}

func (m *Manager) truncateLog() error {
	synced := len(m.dirty)
	if err := m.syncFiles(); err != nil {
		return err
	}
	size := m.wal.Size()
	if err := m.wal.Truncate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	m.logger.Debug("log truncated", "bytes", size, "synced_files", synced)
	return nil
}
