package pagestore

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/pagestore/internal/fs"
	"github.com/hupe1980/pagestore/wal"
)

type options struct {
	metricsCollector   MetricsCollector
	logger             *Logger
	walOptions         wal.Options
	fs                 fs.FileSystem
	syncConcurrency    int
	checkpointInterval time.Duration
	checkpointRate     rate.Limit
	checkpointBurst    int
}

// Option configures Open.
type Option func(*options)

// WithCompression selects how page images are compressed in the WAL.
// Records written with different settings can be mixed in one log.
func WithCompression(c wal.Compression) Option {
	return func(o *options) {
		o.walOptions.Compression = c
	}
}

// WithSyncConcurrency bounds how many data files are fsynced in parallel
// before the WAL is truncated.
func WithSyncConcurrency(n int) Option {
	return func(o *options) {
		o.syncConcurrency = n
	}
}

// WithCheckpointInterval starts a background checkpointer that drains the
// WAL and then sleeps for d before looking again. Zero disables it.
//
// Example:
//
//	st, _ := pagestore.Open("./data",
//	    pagestore.WithCheckpointInterval(time.Second),
//	    pagestore.WithCheckpointRate(500, 50),
//	)
func WithCheckpointInterval(d time.Duration) Option {
	return func(o *options) {
		o.checkpointInterval = d
	}
}

// WithCheckpointRate limits the background checkpointer to stepsPerSecond
// steps with the given burst. The default is unlimited.
func WithCheckpointRate(stepsPerSecond float64, burst int) Option {
	return func(o *options) {
		o.checkpointRate = rate.Limit(stepsPerSecond)
		if burst < 1 {
			burst = 1
		}
		o.checkpointBurst = burst
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagestore.BasicMetricsCollector{}
//	st, _ := pagestore.Open("./data", pagestore.WithMetricsCollector(metrics))
//	// ... use st ...
//	stats := metrics.GetStats()
//	fmt.Printf("Writes: %d, Avg latency: %dns\n", stats.WriteCount, stats.WriteAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := pagestore.NewJSONLogger(slog.LevelInfo)
//	st, _ := pagestore.Open("./data", pagestore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// withFileSystem swaps the file system; tests use it for fault injection.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		walOptions:       wal.DefaultOptions(),
		fs:               fs.Default,
		syncConcurrency:  4,
		checkpointRate:   rate.Inf,
		checkpointBurst:  1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
