package pagestore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prommetrics package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordRead is called after each page read.
	RecordRead(duration time.Duration, err error)

	// RecordWrite is called after each page write. duration includes the WAL sync.
	RecordWrite(duration time.Duration, err error)

	// RecordCommit is called after each commit.
	RecordCommit(duration time.Duration, err error)

	// RecordRollback is called after each rollback.
	RecordRollback(err error)

	// RecordCheckpointStep is called after each checkpoint step.
	RecordCheckpointStep(progressed bool, duration time.Duration, err error)

	// RecordRecovery is called after crash recovery.
	RecordRecovery(replayed, discarded int, duration time.Duration, err error)

	// RecordWALSize reports the WAL size after operations that change it.
	RecordWALSize(bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordWrite(time.Duration, error)                {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)               {}
func (NoopMetricsCollector) RecordRollback(error)                            {}
func (NoopMetricsCollector) RecordCheckpointStep(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordRecovery(int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordWALSize(int64)                             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount         atomic.Int64
	ReadErrors        atomic.Int64
	WriteCount        atomic.Int64
	WriteErrors       atomic.Int64
	WriteTotalNanos   atomic.Int64
	CommitCount       atomic.Int64
	CommitErrors      atomic.Int64
	RollbackCount     atomic.Int64
	RollbackErrors    atomic.Int64
	CheckpointSteps   atomic.Int64
	CheckpointIdle    atomic.Int64
	CheckpointErrors  atomic.Int64
	RecoveryReplayed  atomic.Int64
	RecoveryDiscarded atomic.Int64
	RecoveryErrors    atomic.Int64
	WALSizeBytes      atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(_ time.Duration, err error) {
	b.ReadCount.Add(1)
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(err error) {
	b.RollbackCount.Add(1)
	if err != nil {
		b.RollbackErrors.Add(1)
	}
}

// RecordCheckpointStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpointStep(progressed bool, _ time.Duration, err error) {
	switch {
	case err != nil:
		b.CheckpointErrors.Add(1)
	case progressed:
		b.CheckpointSteps.Add(1)
	default:
		b.CheckpointIdle.Add(1)
	}
}

// RecordRecovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecovery(replayed, discarded int, _ time.Duration, err error) {
	b.RecoveryReplayed.Add(int64(replayed))
	b.RecoveryDiscarded.Add(int64(discarded))
	if err != nil {
		b.RecoveryErrors.Add(1)
	}
}

// RecordWALSize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWALSize(bytes int64) {
	b.WALSizeBytes.Store(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:         b.ReadCount.Load(),
		ReadErrors:        b.ReadErrors.Load(),
		WriteCount:        b.WriteCount.Load(),
		WriteErrors:       b.WriteErrors.Load(),
		WriteAvgNanos:     b.getAvgWriteNanos(),
		CommitCount:       b.CommitCount.Load(),
		CommitErrors:      b.CommitErrors.Load(),
		RollbackCount:     b.RollbackCount.Load(),
		RollbackErrors:    b.RollbackErrors.Load(),
		CheckpointSteps:   b.CheckpointSteps.Load(),
		CheckpointIdle:    b.CheckpointIdle.Load(),
		CheckpointErrors:  b.CheckpointErrors.Load(),
		RecoveryReplayed:  b.RecoveryReplayed.Load(),
		RecoveryDiscarded: b.RecoveryDiscarded.Load(),
		RecoveryErrors:    b.RecoveryErrors.Load(),
		WALSizeBytes:      b.WALSizeBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgWriteNanos() int64 {
	count := b.WriteCount.Load()
	if count == 0 {
		return 0
	}
	return b.WriteTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount         int64
	ReadErrors        int64
	WriteCount        int64
	WriteErrors       int64
	WriteAvgNanos     int64
	CommitCount       int64
	CommitErrors      int64
	RollbackCount     int64
	RollbackErrors    int64
	CheckpointSteps   int64
	CheckpointIdle    int64
	CheckpointErrors  int64
	RecoveryReplayed  int64
	RecoveryDiscarded int64
	RecoveryErrors    int64
	WALSizeBytes      int64
}
