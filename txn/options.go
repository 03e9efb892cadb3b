package txn

import (
	"log/slog"

	"github.com/hupe1980/pagestore/internal/fs"
	"github.com/hupe1980/pagestore/wal"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithFileSystem sets the file system used for the WAL and the data files.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.fs = fsys
		}
	}
}

// WithWALOptions sets the options the WAL is opened with.
func WithWALOptions(opts wal.Options) Option {
	return func(m *Manager) {
		m.walOpts = opts
	}
}

// WithSyncConcurrency bounds how many data files are fsynced in parallel
// before the WAL is truncated. Values below 1 are ignored.
func WithSyncConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.syncConcurrency = n
		}
	}
}
