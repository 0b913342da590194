package scheduler

import (
	"context"
	"errors"
	"github.com/webshopx/fulfillment/internal/metrics"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Job is one tick of a periodic sweep.
type Job func(ctx context.Context) error

// Locker guards a job across instances. TryAcquire returns an error when the
// lock is held elsewhere.
type Locker interface {
	TryAcquire(ctx context.Context) (func(context.Context) error, error)
}

type Config struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single tick; zero means Interval.
	Timeout time.Duration
	// RunOnStart fires one tick immediately instead of waiting an interval.
	RunOnStart bool
}

// Runner fires Job on a ticker. Ticks never overlap: if the previous tick is
// still running locally, or another instance holds the lock, the tick is skipped.
type Runner struct {
	cfg    Config
	job    Job
	lock   Locker
	logger *zap.Logger

	tick      sync.Mutex
	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a runner. lock may be nil for single-instance deployments.
func New(cfg Config, job Job, lock Locker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &Runner{cfg: cfg, job: job, lock: lock, logger: logger.With(zap.String("sweep", cfg.Name))}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("sweep scheduled", zap.Duration("interval", r.cfg.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight tick, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("sweep stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("sweep stop timed out")
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.RunOnStart {
		r.RunOnce(ctx)
	}
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes one tick unless another is in progress. It reports
// whether the job actually ran.
func (r *Runner) RunOnce(ctx context.Context) bool {
	if !r.tick.TryLock() {
		metrics.SweepRunsTotal.WithLabelValues(r.cfg.Name, "skipped").Inc()
		r.logger.Warn("previous tick still running, skipping")
		return false
	}
	defer r.tick.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if r.lock != nil {
		release, err := r.lock.TryAcquire(ctx)
		if err != nil {
			metrics.SweepRunsTotal.WithLabelValues(r.cfg.Name, "skipped").Inc()
			r.logger.Info("sweep lock not acquired, skipping", zap.Error(err))
			return false
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	if err := r.job(ctx); err != nil {
		metrics.SweepRunsTotal.WithLabelValues(r.cfg.Name, "error").Inc()
		r.logger.Error("sweep failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return true
	}
	metrics.SweepRunsTotal.WithLabelValues(r.cfg.Name, "ok").Inc()
	r.logger.Debug("sweep finished", zap.Duration("took", time.Since(start)))
	return true
}
