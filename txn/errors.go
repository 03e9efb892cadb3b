package txn

import "errors"

var (
	// ErrInvalidFile is returned when a file is not visible to the transaction.
	ErrInvalidFile = errors.New("invalid file")

	// ErrInvalidAddress is returned when a page lies at or beyond the visible extent,
	// or when an extent change would make the extent negative.
	ErrInvalidAddress = errors.New("invalid page address")

	// ErrIOFailure wraps errors from the file system.
	ErrIOFailure = errors.New("i/o failure")

	// ErrCorruptLog is returned when a WAL record the manager depends on cannot be decoded.
	ErrCorruptLog = errors.New("corrupt log")

	// ErrInvalidTransaction is returned for ids that do not name an open transaction.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrRecoveryRequired is returned until CrashRecover has run.
	ErrRecoveryRequired = errors.New("crash recovery has not run")

	// ErrTransactionsOpen is returned by CrashRecover while transactions are open.
	ErrTransactionsOpen = errors.New("transactions are open")

	// ErrTransactionIDExhausted is returned when the id counter would overflow.
	ErrTransactionIDExhausted = errors.New("transaction ids exhausted")

	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("manager closed")
)
