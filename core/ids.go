// Package core defines the identifiers shared by the WAL, the transaction
// manager and the staging proxy.
package core

import "fmt"

// PageSize is the fixed size of a page in bytes.
const PageSize = 4096

// PageShift is log2(PageSize). An address shifted right by PageShift is its page index.
const PageShift = 12

// PageMask selects the in-page offset of an address.
const PageMask = PageSize - 1

// Page is one page image.
type Page [PageSize]byte

// TransactionID identifies a transaction within one process lifetime.
// It is never persisted and restarts from zero after every restart.
type TransactionID uint64

// MaxTransactionID is the last id the allocator can hand out.
const MaxTransactionID = ^TransactionID(0)

// FileID identifies a data file. The file is named by the decimal value.
type FileID uint64

// String returns the data file name.
func (f FileID) String() string { return fmt.Sprintf("%d", uint64(f)) }

// PageID is a page index within a file.
type PageID uint64

// ByteOffset returns the byte position of the page inside its file.
func (p PageID) ByteOffset() int64 { return int64(p) * PageSize }

// WalOffset is the byte position of a record in the WAL.
type WalOffset uint64

// PageOffset addresses one page slot across all files.
type PageOffset struct {
	File FileID
	Page PageID
}

func (p PageOffset) String() string {
	return fmt.Sprintf("%d:%d", p.File, p.Page)
}

// TransactionWalOffset pairs a WAL record with the transaction that wrote it.
type TransactionWalOffset struct {
	Txn    TransactionID
	Offset WalOffset
}
