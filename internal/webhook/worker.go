package webhook

import (
	"context"
	"log/slog"
	"time"
)

// Purger drops expired idempotency keys
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Worker drives the runner from an in-process ticker. The HTTP trigger stays
// available alongside it.
type Worker struct {
	runner   *Runner
	purger   Purger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewWorker(runner *Runner, purger Purger, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Worker{
		runner:   runner,
		purger:   purger,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// Tick runs one sweep, one processing pass and one purge of expired keys
func (w *Worker) Tick(ctx context.Context) {
	if _, err := w.runner.Sweep(ctx); err != nil {
		w.logger.Error("failed to sweep stale claims", "error", err)
	}

	if _, err := w.runner.Process(ctx); err != nil {
		w.logger.Error("failed to process webhook queue", "error", err)
	}

	if w.purger == nil {
		return
	}
	n, err := w.purger.Purge(ctx)
	if err != nil {
		w.logger.Error("failed to purge idempotency keys", "error", err)
		return
	}
	if n > 0 {
		w.logger.Debug("purged expired idempotency keys", "count", n)
	}
}
