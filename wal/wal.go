// Package wal provides the write-ahead log of the page store.
//
// The WAL is the single durable record of every mutating intent. Each append
// encodes one event into a CRC-framed record, writes it at the end of the log
// and fsyncs before the offset is handed back, so an offset is never returned
// for bytes that are not durable.
//
// Records are never modified. A WalOffset names a record until Truncate drops
// the whole log. A record that fails to decode is expected only at the
// physical end of the log (a torn append); scanners treat it as end-of-log.
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/internal/conv"
	"github.com/hupe1980/pagestore/internal/fs"
)

// ErrClosed is returned by operations on a closed WAL.
var ErrClosed = errors.New("wal is closed")

// WAL manages the write-ahead log file.
type WAL struct {
	mu     sync.Mutex
	fs     fs.FileSystem
	file   fs.File
	path   string
	opts   Options
	end    int64
	closed bool
}

// Open opens or creates the log at path. The append position is the physical
// end of the file, including any torn tail; crash recovery is expected to
// scan and truncate the log before new records are appended.
func Open(fsys fs.FileSystem, path string, opts Options) (*WAL, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat WAL: %w", err)
	}
	return &WAL{
		fs:   fsys,
		file: f,
		path: path,
		opts: opts,
		end:  st.Size(),
	}, nil
}

// Path returns the location of the log file.
func (w *WAL) Path() string { return w.path }

// Size returns the current append position in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.end
}

// ModifyPage logs the replacement of one page.
func (w *WAL) ModifyPage(txn core.TransactionID, file core.FileID, page core.PageID, undo, redo *core.Page) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindModifyPage, Txn: txn, File: file, Page: page, Undo: undo, Redo: redo})
}

// CommitTransaction logs that txn committed.
func (w *WAL) CommitTransaction(txn core.TransactionID) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindCommitTransaction, Txn: txn})
}

// AbortTransaction logs that txn rolled back.
func (w *WAL) AbortTransaction(txn core.TransactionID) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindAbortTransaction, Txn: txn})
}

// CreateFile logs the creation of a data file.
func (w *WAL) CreateFile(txn core.TransactionID, file core.FileID) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindCreateFile, Txn: txn, File: file})
}

// DeleteFile logs the removal of a data file.
func (w *WAL) DeleteFile(txn core.TransactionID, file core.FileID) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindDeleteFile, Txn: txn, File: file})
}

// ExtendFile logs a size change of delta pages that leaves the file at extent pages.
func (w *WAL) ExtendFile(txn core.TransactionID, file core.FileID, delta int64, extent uint64) (core.WalOffset, error) {
	return w.Append(&Event{Kind: KindExtendFile, Txn: txn, File: file, Delta: delta, Extent: extent})
}

// Append encodes e at the end of the log and syncs it.
//
// If the write or the sync fails the log is cut back to its previous end, so
// a failed append never leaves a record that a later append would follow.
func (w *WAL) Append(e *Event) (core.WalOffset, error) {
	buf, err := encodeEvent(e, w.opts.Compression)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}

	offset := w.end
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek WAL: %w", err)
	}
	if _, err := w.file.Write(buf); err != nil {
		return 0, w.rollbackLocked(offset, fmt.Errorf("failed to write WAL record: %w", err))
	}
	if !w.opts.NoSync {
		if err := w.file.Sync(); err != nil {
			return 0, w.rollbackLocked(offset, fmt.Errorf("failed to sync WAL: %w", err))
		}
	}

	w.end = offset + int64(len(buf))
	return core.WalOffset(offset), nil //nolint:gosec // offsets are non-negative
}

func (w *WAL) rollbackLocked(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to cut WAL back to %d: %w", offset, err))
	}
	return cause
}

// ReadEntry decodes the record at offset without moving the append position.
// It returns io.EOF at the end of the log and ErrCorruptRecord for bytes that
// do not form a record.
func (w *WAL) ReadEntry(offset core.WalOffset) (*Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	off, err := conv.Uint64ToInt64(uint64(offset))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if off >= w.end {
		return nil, io.EOF
	}
	e, _, err := Decode(io.NewSectionReader(w.file, off, w.end-off))
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no record at offset %d", ErrCorruptRecord, off)
	}
	return e, err
}

// Truncate discards every record and syncs the empty log.
// Callers must have made every still-needed change durable elsewhere first.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync truncated WAL: %w", err)
	}
	w.end = 0
	return nil
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Reader returns a forward scanner over the records present when it is created.
func (w *WAL) Reader() (*Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	return &Reader{
		r:    bufio.NewReaderSize(io.NewSectionReader(w.file, 0, w.end), 64*1024),
		size: w.end,
	}, nil
}

// Reader iterates over WAL records from offset 0.
type Reader struct {
	r      *bufio.Reader
	offset int64
	size   int64
}

// Next returns the next record and its offset. It returns io.EOF at the end
// of the log and ErrCorruptRecord at the first malformed record.
func (r *Reader) Next() (*Event, core.WalOffset, error) {
	start := r.offset
	e, n, err := Decode(r.r)
	if err != nil {
		return nil, core.WalOffset(start), err //nolint:gosec // non-negative
	}
	r.offset += n
	return e, core.WalOffset(start), nil //nolint:gosec // non-negative
}

// Offset returns the length of the valid prefix read so far.
func (r *Reader) Offset() int64 { return r.offset }

// Size returns the physical log size the reader was created with.
func (r *Reader) Size() int64 { return r.size }

// ReplayResult summarizes a forward scan.
type ReplayResult struct {
	// Records is the number of records decoded.
	Records int
	// ValidSize is the byte length of the decodable prefix.
	ValidSize int64
	// TornTail is set when bytes after the valid prefix were discarded.
	TornTail bool
}

// Replay calls fn for every record of the decodable prefix of the log, in
// order. Scanning stops silently at the first malformed record. An error from
// fn stops the scan and is returned.
func (w *WAL) Replay(fn func(offset core.WalOffset, e *Event) error) (ReplayResult, error) {
	rd, err := w.Reader()
	if err != nil {
		return ReplayResult{}, err
	}

	var res ReplayResult
	for {
		e, off, err := rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrCorruptRecord) {
				break
			}
			return res, fmt.Errorf("failed to read WAL at %d: %w", off, err)
		}
		res.Records++
		if err := fn(off, e); err != nil {
			return res, err
		}
	}
	res.ValidSize = rd.Offset()
	res.TornTail = res.ValidSize < rd.Size()
	return res, nil
}
