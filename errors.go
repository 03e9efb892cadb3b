package pagestore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagestore/txn"
	"github.com/hupe1980/pagestore/wal"
)

var (
	// ErrInvalidFile is returned when a file does not exist for the transaction.
	ErrInvalidFile = errors.New("invalid file")

	// ErrInvalidAddress is returned when a page lies beyond the file's extent.
	ErrInvalidAddress = errors.New("invalid page address")

	// ErrIOFailure is returned when the underlying file system fails.
	ErrIOFailure = errors.New("i/o failure")

	// ErrCorruptLog is returned when the WAL holds an undecodable record the store needs.
	ErrCorruptLog = errors.New("corrupt log")

	// ErrInvalidTransaction is returned for transaction ids that are not open.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrTransactionsOpen is returned by Recover while transactions are open.
	ErrTransactionsOpen = errors.New("transactions are open")

	// ErrTransactionIDExhausted is returned when no transaction id is left.
	ErrTransactionIDExhausted = errors.New("transaction ids exhausted")

	// ErrClosed is returned when the store is closed.
	ErrClosed = errors.New("store closed")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, txn.ErrInvalidFile):
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	case errors.Is(err, txn.ErrInvalidAddress):
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	case errors.Is(err, txn.ErrCorruptLog), errors.Is(err, wal.ErrCorruptRecord):
		return fmt.Errorf("%w: %w", ErrCorruptLog, err)
	case errors.Is(err, txn.ErrIOFailure):
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	case errors.Is(err, txn.ErrInvalidTransaction):
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	case errors.Is(err, txn.ErrTransactionsOpen):
		return fmt.Errorf("%w: %w", ErrTransactionsOpen, err)
	case errors.Is(err, txn.ErrTransactionIDExhausted):
		return fmt.Errorf("%w: %w", ErrTransactionIDExhausted, err)
	case errors.Is(err, txn.ErrClosed), errors.Is(err, wal.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
