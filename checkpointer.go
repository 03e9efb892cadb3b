package pagestore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// runCheckpointer drains the WAL in the background. It steps while steps make
// progress, throttled by the configured rate, and sleeps for the checkpoint
// interval once nothing is applicable.
func (s *Store) runCheckpointer(ctx context.Context) {
	defer s.wg.Done()

	limiter := rate.NewLimiter(s.opts.checkpointRate, s.opts.checkpointBurst)
	ticker := time.NewTicker(s.opts.checkpointInterval)
	defer ticker.Stop()

	for {
		steps, err := s.drain(ctx, limiter)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return
			}
			s.logger.WarnContext(ctx, "background checkpoint failed", "steps", steps, "error", err)
		} else if steps > 0 {
			s.logger.DebugContext(ctx, "background checkpoint", "steps", steps)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Store) drain(ctx context.Context, limiter *rate.Limiter) (int, error) {
	steps := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return steps, err
		}
		progressed, err := s.CheckpointStep()
		if err != nil || !progressed {
			return steps, err
		}
		steps++
	}
}
