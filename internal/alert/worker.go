package alert

import (
	"context"
	"log/slog"
	"time"
)

// Watchdog periodically checks queue health rules and sends the resulting alerts
type Watchdog struct {
	engine   *Engine
	rules    []Rule
	fanout   *Fanout
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewWatchdog(engine *Engine, rules []Rule, fanout *Fanout, logger *slog.Logger, interval time.Duration) *Watchdog {
	if interval == 0 {
		interval = time.Minute
	}

	return &Watchdog{
		engine:   engine,
		rules:    rules,
		fanout:   fanout,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("alert watchdog started", "interval", w.interval, "rules", len(w.rules))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("alert watchdog stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check evaluates the rules once
func (w *Watchdog) Check(ctx context.Context) {
	alerts, err := w.engine.Evaluate(ctx, w.rules, w.now())
	if err != nil {
		w.logger.Error("failed to evaluate queue rules", "error", err)
		return
	}

	for _, a := range alerts {
		w.logger.Info("queue rule triggered",
			"rule", a.Metadata["rule"],
			"severity", a.Severity,
		)
		w.fanout.Send(ctx, a)
	}
}
