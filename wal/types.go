package wal

import (
	"fmt"

	"github.com/hupe1980/pagestore/core"
)

// EventKind identifies the type of a WAL record.
type EventKind uint8

const (
	// KindModifyPage replaces one page. It carries the undo and redo images.
	KindModifyPage EventKind = iota + 1
	// KindCommitTransaction marks every earlier record of the transaction as committed.
	KindCommitTransaction
	// KindCreateFile creates an empty data file.
	KindCreateFile
	// KindDeleteFile removes a data file.
	KindDeleteFile
	// KindExtendFile grows or shrinks a data file by a signed page count.
	KindExtendFile
	// KindAbortTransaction marks the transaction as rolled back.
	KindAbortTransaction
)

func (k EventKind) valid() bool {
	return k >= KindModifyPage && k <= KindAbortTransaction
}

func (k EventKind) String() string {
	switch k {
	case KindModifyPage:
		return "ModifyPage"
	case KindCommitTransaction:
		return "CommitTransaction"
	case KindCreateFile:
		return "CreateFile"
	case KindDeleteFile:
		return "DeleteFile"
	case KindExtendFile:
		return "ExtendFile"
	case KindAbortTransaction:
		return "AbortTransaction"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// IsFileEvent reports whether the kind changes a file's existence or extent.
func (k EventKind) IsFileEvent() bool {
	return k == KindCreateFile || k == KindDeleteFile || k == KindExtendFile
}

// Event is one decoded WAL record.
//
// Which fields are meaningful depends on Kind:
//
//	ModifyPage:        Txn, File, Page, Undo, Redo
//	CommitTransaction: Txn
//	AbortTransaction:  Txn
//	CreateFile:        Txn, File
//	DeleteFile:        Txn, File
//	ExtendFile:        Txn, File, Delta, Extent
type Event struct {
	Kind EventKind
	Txn  core.TransactionID
	File core.FileID
	Page core.PageID
	Undo *core.Page
	Redo *core.Page

	// Delta is the signed page-count change of an ExtendFile record.
	Delta int64
	// Extent is the page count of the file after an ExtendFile record.
	// Replay sets the file size from Extent, so applying a record twice is harmless.
	Extent uint64
}

// PageOffset returns the page slot a ModifyPage event targets.
func (e *Event) PageOffset() core.PageOffset {
	return core.PageOffset{File: e.File, Page: e.Page}
}

// Compression selects how page images are stored in ModifyPage records.
type Compression uint8

const (
	// CompressionNone stores images raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio, slower).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name accepted by String back to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

// Options contains configuration for the WAL.
type Options struct {
	// Compression applies to the undo and redo images of ModifyPage records.
	// Records written with different settings can live in the same log.
	Compression Compression

	// NoSync skips fsync after appends. Only tests that measure encoding
	// should set it; a write is not durable without the sync.
	NoSync bool
}

// DefaultOptions returns default WAL options.
func DefaultOptions() Options {
	return Options{Compression: CompressionNone}
}
