package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

type QueueReader interface {
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error)
	GetByEventID(ctx context.Context, eventID string) (*domain.QueueEntry, error)
}

// DispatchLookup reports when a guard key was last dispatched successfully
type DispatchLookup interface {
	DispatchedAt(ctx context.Context, key string) (time.Time, bool, error)
}

type QueueHandler struct {
	queue  QueueReader
	guard  DispatchLookup
	logger *slog.Logger
}

// NewQueueHandler creates the operator read endpoints. guard may be nil.
func NewQueueHandler(queue QueueReader, guard DispatchLookup, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		guard:  guard,
		logger: logger,
	}
}

type StatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

type EventResponse struct {
	Entry        *domain.QueueEntry `json:"entry"`
	DispatchedAt *time.Time         `json:"dispatched_at,omitempty"`
}

func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.queue.CountByStatus(c.UserContext())
	if err != nil {
		return domain.ErrQueueUnavailable.WithError(err)
	}

	resp := StatsResponse{
		Pending:    counts[domain.StatusPending],
		Processing: counts[domain.StatusProcessing],
		Completed:  counts[domain.StatusCompleted],
		Failed:     counts[domain.StatusFailed],
	}
	resp.Total = resp.Pending + resp.Processing + resp.Completed + resp.Failed

	return c.JSON(resp)
}

// GetEvent returns the event and its queue state
func (h *QueueHandler) GetEvent(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return domain.ErrBadRequest
	}

	entry, err := h.queue.GetByEventID(c.UserContext(), eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return domain.ErrWebhookNotFound
		}
		return domain.ErrQueueUnavailable.WithError(err)
	}

	resp := EventResponse{Entry: entry}

	if h.guard != nil && entry.Event != nil {
		at, ok, err := h.guard.DispatchedAt(c.UserContext(), dispatch.GuardKey(entry.Event))
		if err != nil {
			h.logger.Warn("failed to read dispatch marker", "event_id", eventID, "error", err)
		} else if ok {
			resp.DispatchedAt = &at
		}
	}

	return c.JSON(resp)
}
