package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job performs one unit of background work.
type Job func(ctx context.Context) error

// Runner schedules named periodic jobs until its context is cancelled.
type Runner struct {
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner builds a runner bound to the parent context.
func NewRunner(ctx context.Context, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Runner{logger: logger, ctx: runCtx, cancel: cancel}
}

// Every runs fn on a fixed interval. Failures are logged and the schedule
// keeps going; a single run's error never stops the ticker.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := fn(r.ctx); err != nil {
					r.logger.Warn("background job failed",
						zap.String("job", name),
						zap.Duration("elapsed", time.Since(start)),
						zap.Error(err))
					continue
				}
				r.logger.Debug("background job completed",
					zap.String("job", name),
					zap.Duration("elapsed", time.Since(start)))
			}
		}
	}()
}

// Stop cancels all schedules and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}
