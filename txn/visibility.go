package txn

import (
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/internal/conv"
	"github.com/hupe1980/pagestore/wal"
)

// sees reports whether events written by owner are visible to t: its own
// events, and those of transactions that committed before t began.
func (m *Manager) sees(t *transaction, owner core.TransactionID) bool {
	if owner == t.id {
		return true
	}
	u, ok := m.transactions[owner]
	if !ok {
		return false
	}
	return u.committed && u.commitSeq < t.beginSeq
}

// fileState resolves whether file exists for t and how many pages it has.
func (m *Manager) fileState(t *transaction, file core.FileID) (bool, uint64, error) {
	events := m.fileEvents[file]
	for i := len(events) - 1; i >= 0; i-- {
		if !m.sees(t, events[i].Txn) {
			continue
		}
		r, ok := m.record(events[i].Offset)
		if !ok {
			return false, 0, fmt.Errorf("%w: file event at %d is not indexed", ErrCorruptLog, events[i].Offset)
		}
		switch r.kind {
		case wal.KindDeleteFile:
			return false, 0, nil
		case wal.KindCreateFile:
			return true, 0, nil
		default:
			return true, r.extent, nil
		}
	}
	return m.diskState(file)
}

func (m *Manager) diskState(file core.FileID) (bool, uint64, error) {
	info, err := m.fs.Stat(m.path(file))
	if err != nil {
		if isNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: stat %s: %w", ErrIOFailure, file, err)
	}
	size, err := conv.Int64ToUint64(info.Size())
	if err != nil {
		return false, 0, fmt.Errorf("%w: size of %s: %w", ErrIOFailure, file, err)
	}
	return true, size / core.PageSize, nil
}

// resolvePage checks that page is addressable for t.
func (m *Manager) resolvePage(t *transaction, file core.FileID, page core.PageID) error {
	exists, extent, err := m.fileState(t, file)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrInvalidFile, file)
	}
	if uint64(page) >= extent {
		return fmt.Errorf("%w: page %d of file %s (extent %d)", ErrInvalidAddress, page, file, extent)
	}
	return nil
}

// readPage returns the image of page as t sees it.
func (m *Manager) readPage(t *transaction, file core.FileID, page core.PageID) (*core.Page, error) {
	if err := m.resolvePage(t, file, page); err != nil {
		return nil, err
	}

	cut, truncated, err := m.truncatedAt(t, file, page)
	if err != nil {
		return nil, err
	}

	events := m.pageEvents[core.PageOffset{File: file, Page: page}]
	for i := len(events) - 1; i >= 0; i-- {
		if truncated && events[i].Offset < cut {
			break
		}
		if !m.sees(t, events[i].Txn) {
			continue
		}
		e, err := m.readEntry(events[i].Offset)
		if err != nil {
			return nil, err
		}
		return e.Redo, nil
	}
	if truncated {
		return new(core.Page), nil
	}
	return m.readDisk(file, page)
}

// truncatedAt returns the offset of the newest pending file event visible to
// t that dropped page from the file: a CreateFile, or an ExtendFile to an
// extent of at most page. Page images logged before it, and the bytes still in
// the data file, no longer describe the page.
func (m *Manager) truncatedAt(t *transaction, file core.FileID, page core.PageID) (core.WalOffset, bool, error) {
	events := m.fileEvents[file]
	for i := len(events) - 1; i >= 0; i-- {
		if !m.sees(t, events[i].Txn) {
			continue
		}
		r, ok := m.record(events[i].Offset)
		if !ok {
			return 0, false, fmt.Errorf("%w: file event at %d is not indexed", ErrCorruptLog, events[i].Offset)
		}
		switch r.kind {
		case wal.KindCreateFile, wal.KindDeleteFile:
			return events[i].Offset, true, nil
		case wal.KindExtendFile:
			if r.extent <= uint64(page) {
				return events[i].Offset, true, nil
			}
		}
	}
	return 0, false, nil
}

func (m *Manager) readEntry(off core.WalOffset) (*wal.Event, error) {
	e, err := m.wal.ReadEntry(off)
	if err != nil {
		if errors.Is(err, wal.ErrCorruptRecord) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: record at %d: %v", ErrCorruptLog, off, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return e, nil
}

// readDisk reads a checkpointed page. Bytes past the physical end of the
// file, or of a file that is not on disk yet, read as zero.
func (m *Manager) readDisk(file core.FileID, page core.PageID) (*core.Page, error) {
	buf := new(core.Page)
	f, err := m.handle(file, false)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return buf, nil
	}
	if _, err := f.ReadAt(buf[:], page.ByteOffset()); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %s page %d: %w", ErrIOFailure, file, page, err)
	}
	return buf, nil
}
