package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/audit"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/retry"
)

// Queue is the subset of the queue repository the runner mutates
type Queue interface {
	FetchDue(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	MarkProcessing(ctx context.Context, entryID uuid.UUID) (domain.Claim, bool, error)
	MarkCompleted(ctx context.Context, claim domain.Claim) error
	MarkRetry(ctx context.Context, claim domain.Claim, errMsg string, nextRetryAt time.Time, newRetryCount int) error
	MarkFailedTerminal(ctx context.Context, claim domain.Claim, errMsg string) (int, error)
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.WebhookEvent) dispatch.Result
}

// Alerter is notified once per entry that exhausts its retries. Implementations
// must not block on or report delivery failures.
type Alerter interface {
	TerminalFailure(ctx context.Context, event *domain.WebhookEvent, retryCount int, errMsg string)
}

type Broadcaster interface {
	Broadcast(eventType string, data any)
}

const (
	EventRunCompleted  = "run.completed"
	EventEntryResult   = "entry.processed"
	EventClaimsSwept   = "claims.reclaimed"
	defaultBatchSize   = 10
	defaultConcurrency = 1

	// settleTimeout bounds the queue write that records a dispatch outcome.
	// It runs detached from the caller's cancellation so a shutdown during
	// dispatch does not strand the entry in processing.
	settleTimeout = 5 * time.Second
)

// RunnerConfig tunes a Runner. A zero Policy behaves like retry.DefaultPolicy.
type RunnerConfig struct {
	BatchSize    int
	Concurrency  int
	ClaimTimeout time.Duration
	Policy       retry.Policy
}

// Runner executes one processing pass over the due queue entries per call.
// It holds no state between invocations.
type Runner struct {
	queue      Queue
	dispatcher Dispatcher
	alerter    Alerter
	audit      audit.Logger
	events     Broadcaster
	logger     *slog.Logger
	cfg        RunnerConfig

	// Now is the clock used for retry scheduling and stale-claim cutoffs
	Now func() time.Time
}

func NewRunner(queue Queue, dispatcher Dispatcher, alerter Alerter, auditLogger audit.Logger, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}

	return &Runner{
		queue:      queue,
		dispatcher: dispatcher,
		alerter:    alerter,
		audit:      auditLogger,
		logger:     logger.With("component", "runner"),
		cfg:        cfg,
		Now:        time.Now,
	}
}

// WithBroadcaster publishes run and entry outcomes to a live feed
func (r *Runner) WithBroadcaster(b Broadcaster) *Runner {
	r.events = b
	return r
}

type outcome struct {
	result  EntryResult
	claimed bool
}

// Process fetches up to BatchSize due entries and drives each one through
// processing to completed, pending (retry) or failed. Dispatch failures never
// surface as errors; any queue error aborts the invocation.
func (r *Runner) Process(ctx context.Context) (Summary, error) {
	entries, err := r.queue.FetchDue(ctx, r.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch due entries: %w", err)
	}
	if len(entries) == 0 {
		return Summary{Results: []EntryResult{}}, nil
	}

	outcomes := make([]outcome, len(entries))

	if r.cfg.Concurrency == 1 {
		for i := range entries {
			o, err := r.processEntry(ctx, &entries[i])
			if err != nil {
				return Summary{}, err
			}
			outcomes[i] = o
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for i := range entries {
			g.Go(func() error {
				o, err := r.processEntry(gctx, &entries[i])
				if err != nil {
					return err
				}
				outcomes[i] = o
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Summary{}, err
		}
	}

	summary := Summary{Results: make([]EntryResult, 0, len(entries))}
	for _, o := range outcomes {
		if o.claimed {
			summary.Results = append(summary.Results, o.result)
		}
	}
	summary.Processed = len(summary.Results)

	counts := summary.Counts()
	r.logger.Info("processing run finished",
		"fetched", len(entries),
		"processed", summary.Processed,
		"completed", counts[domain.StatusCompleted],
		"retrying", counts[domain.StatusPending],
		"failed", counts[domain.StatusFailed],
	)
	r.broadcast(EventRunCompleted, summary)

	return summary, nil
}

func (r *Runner) processEntry(ctx context.Context, entry *domain.QueueEntry) (outcome, error) {
	// Stop claiming once the caller is shutting down; unclaimed entries stay pending.
	if ctx.Err() != nil {
		return outcome{}, nil
	}

	claim, claimed, err := r.queue.MarkProcessing(ctx, entry.ID)
	if err != nil {
		return outcome{}, fmt.Errorf("claim entry %s: %w", entry.EventID, err)
	}
	if !claimed {
		r.logger.Debug("entry claimed by another runner", "event_id", entry.EventID)
		r.record(ctx, audit.ActionClaimLost, entry, entry.RetryCount, true, "")
		return outcome{}, nil
	}
	if claim.EventID == "" {
		claim.EventID = entry.EventID
	}

	event := entry.Event
	if event == nil {
		return outcome{}, fmt.Errorf("entry %s: %w", entry.EventID, domain.ErrEventNotFound)
	}
	event.RetryCount = entry.RetryCount

	res := r.dispatcher.Dispatch(ctx, event)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if res.Success {
		if err := r.queue.MarkCompleted(settleCtx, claim); err != nil {
			return r.settleFailed(settleCtx, entry, "complete", err)
		}
		if res.Unrouted {
			r.logger.Info("no handler for source, marked completed",
				"event_id", entry.EventID,
				"source", event.Source,
			)
		}
		r.record(settleCtx, audit.ActionCompleted, entry, entry.RetryCount, true, "")
		return r.finish(EntryResult{
			EventID: entry.EventID,
			Source:  event.Source,
			Status:  domain.StatusCompleted,
		}), nil
	}

	errMsg := "dispatch failed"
	if res.Error != nil {
		errMsg = res.Error.Error()
	}

	decision := r.cfg.Policy.Decide(entry.RetryCount, r.Now())
	if res.Permanent {
		decision.Terminal = true
	}
	if decision.Terminal {
		count, err := r.queue.MarkFailedTerminal(settleCtx, claim, errMsg)
		if err != nil {
			return r.settleFailed(settleCtx, entry, "fail", err)
		}

		r.logger.Error("webhook permanently failed",
			"event_id", entry.EventID,
			"source", event.Source,
			"event_type", event.EventType,
			"retry_count", count,
			"permanent", res.Permanent,
			"error", errMsg,
		)
		if r.alerter != nil {
			r.alerter.TerminalFailure(settleCtx, event, count, errMsg)
		}
		r.record(settleCtx, audit.ActionFailed, entry, count, false, errMsg)

		return r.finish(EntryResult{
			EventID:    entry.EventID,
			Source:     event.Source,
			Status:     domain.StatusFailed,
			RetryCount: &count,
			Error:      errMsg,
		}), nil
	}

	if err := r.queue.MarkRetry(settleCtx, claim, errMsg, decision.NextRetryAt, decision.RetryCount); err != nil {
		return r.settleFailed(settleCtx, entry, "schedule retry", err)
	}

	r.logger.Warn("dispatch failed, retry scheduled",
		"event_id", entry.EventID,
		"source", event.Source,
		"retry_count", decision.RetryCount,
		"delay", decision.Delay,
		"error", errMsg,
	)
	r.record(settleCtx, audit.ActionRetryScheduled, entry, decision.RetryCount, false, errMsg)

	next := decision.NextRetryAt
	count := decision.RetryCount
	return r.finish(EntryResult{
		EventID:    entry.EventID,
		Source:     event.Source,
		Status:     domain.StatusPending,
		RetryCount: &count,
		NextRetry:  &next,
		Error:      errMsg,
	}), nil
}

// settleFailed handles a queue write that could not record a dispatch outcome.
// A lost claim means another runner owns the entry now, so the outcome is
// dropped and the run continues; anything else aborts the run.
func (r *Runner) settleFailed(ctx context.Context, entry *domain.QueueEntry, op string, err error) (outcome, error) {
	if errors.Is(err, domain.ErrClaimLost) {
		r.logger.Warn("claim lost before outcome was recorded",
			"event_id", entry.EventID,
			"op", op,
			"error", err,
		)
		r.record(ctx, audit.ActionClaimLost, entry, entry.RetryCount, false, err.Error())
		return outcome{}, nil
	}
	return outcome{}, fmt.Errorf("%s entry %s: %w", op, entry.EventID, err)
}

func (r *Runner) finish(result EntryResult) outcome {
	r.broadcast(EventEntryResult, result)
	return outcome{result: result, claimed: true}
}

// Sweep returns entries stuck in processing longer than ClaimTimeout to pending.
// It is a no-op when ClaimTimeout is zero.
func (r *Runner) Sweep(ctx context.Context) (int64, error) {
	if r.cfg.ClaimTimeout <= 0 {
		return 0, nil
	}

	cutoff := r.Now().Add(-r.cfg.ClaimTimeout)
	n, err := r.queue.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}

	if n > 0 {
		r.logger.Warn("reclaimed stale claims", "count", n, "claimed_before", cutoff)
		_ = r.audit.Log(ctx, audit.Event{
			Action:   audit.ActionReclaimed,
			Success:  true,
			Metadata: map[string]string{"count": fmt.Sprint(n)},
		})
		r.broadcast(EventClaimsSwept, map[string]int64{"reclaimed": n})
	}
	return n, nil
}

func (r *Runner) record(ctx context.Context, action audit.Action, entry *domain.QueueEntry, retryCount int, success bool, errMsg string) {
	ev := audit.Event{
		Action:     action,
		EventID:    entry.EventID,
		RetryCount: retryCount,
		Success:    success,
		Error:      errMsg,
	}
	if entry.Event != nil {
		ev.Source = string(entry.Event.Source)
		ev.EventType = entry.Event.EventType
	}
	if err := r.audit.Log(ctx, ev); err != nil {
		r.logger.Warn("failed to write audit event", "action", action, "error", err)
	}
}

func (r *Runner) broadcast(eventType string, data any) {
	if r.events != nil {
		r.events.Broadcast(eventType, data)
	}
}
