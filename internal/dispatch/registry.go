// Package dispatch routes stored webhook events to the handler registered for their source.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

var (
	ErrDispatchTimeout = errors.New("dispatch timed out")
	ErrHandlerPanic    = errors.New("handler panicked")
	// ErrPermanent marks a handler failure that no retry can fix
	ErrPermanent = errors.New("permanent dispatch failure")
)

// cancelGrace is how long a cancelled dispatch waits for a handler that is
// about to return before reporting the cancellation.
const cancelGrace = 50 * time.Millisecond

// Permanent wraps err so the runner fails the entry without further retries
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler executes the side effects of one event for a single source.
// Events of a type the handler does not care about must return nil.
type Handler interface {
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, event *domain.WebhookEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	return f(ctx, event)
}

// Guard remembers successfully dispatched keys
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// Result is the outcome of a dispatch. Error is set only when Success is false.
type Result struct {
	Success   bool
	Error     error
	Unrouted  bool // no handler registered for the source
	Duplicate bool // acknowledged by the guard without invoking the handler
	Permanent bool // failure wraps ErrPermanent and must not be retried
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Source]Handler
	timeout  time.Duration
	guard    Guard
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. A zero timeout leaves dispatch bounded
// only by the caller's context.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[domain.Source]Handler),
		timeout:  timeout,
		logger:   logger.With("component", "dispatch"),
	}
}

// WithGuard enables idempotent dispatch through g
func (r *Registry) WithGuard(g Guard) *Registry {
	r.guard = g
	return r
}

// Register binds a handler to a source, replacing any previous binding
func (r *Registry) Register(source domain.Source, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[source] = h
}

// Sources lists the registered sources in lexical order
func (r *Registry) Sources() []domain.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]domain.Source, 0, len(r.handlers))
	for s := range r.handlers {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

// Dispatch never returns an error: handler failures, panics and timeouts
// are reported through Result.
func (r *Registry) Dispatch(ctx context.Context, event *domain.WebhookEvent) Result {
	r.mu.RLock()
	h, ok := r.handlers[event.Source]
	r.mu.RUnlock()

	if !ok {
		r.logger.InfoContext(ctx, "no handler for source, acknowledging",
			"event_id", event.EventID,
			"source", event.Source,
			"event_type", event.EventType,
		)
		return Result{Success: true, Unrouted: true}
	}

	key := GuardKey(event)
	if r.guard != nil {
		seen, err := r.guard.Seen(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "idempotency lookup failed", "event_id", event.EventID, "error", err)
		} else if seen {
			r.logger.InfoContext(ctx, "event already dispatched, skipping handler",
				"event_id", event.EventID,
				"source", event.Source,
			)
			return Result{Success: true, Duplicate: true}
		}
	}

	if err := r.invoke(ctx, h, event); err != nil {
		return Result{Success: false, Error: err, Permanent: errors.Is(err, ErrPermanent)}
	}

	// The side effect happened; record it even if the caller is shutting down.
	if r.guard != nil {
		if err := r.guard.Remember(context.WithoutCancel(ctx), key); err != nil {
			r.logger.WarnContext(ctx, "idempotency store failed", "event_id", event.EventID, "error", err)
		}
	}

	return Result{Success: true}
}

func (r *Registry) invoke(ctx context.Context, h Handler, event *domain.WebhookEvent) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
			}
		}()
		done <- h.Handle(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// A handler that finished alongside the cancellation still counts
	select {
	case err := <-done:
		if err == nil {
			return nil
		}
	case <-time.After(cancelGrace):
	}

	if r.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrDispatchTimeout, r.timeout)
	}
	return ctx.Err()
}

// GuardKey is the idempotency key of an event
func GuardKey(event *domain.WebhookEvent) string {
	return string(event.Source) + ":" + event.EventID
}
