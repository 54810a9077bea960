package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

const idleMessage = "No pending webhooks to process"

// Runner is the processing pass triggered over HTTP
type Runner interface {
	Process(ctx context.Context) (webhook.Summary, error)
	Sweep(ctx context.Context) (int64, error)
}

type ProcessHandler struct {
	runner Runner
	logger *slog.Logger
}

func NewProcessHandler(runner Runner, logger *slog.Logger) *ProcessHandler {
	return &ProcessHandler{
		runner: runner,
		logger: logger,
	}
}

type ProcessResponse struct {
	Success   bool                  `json:"success"`
	Processed int                   `json:"processed"`
	Results   []webhook.EntryResult `json:"results"`
}

type IdleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SweepResponse struct {
	Success   bool  `json:"success"`
	Reclaimed int64 `json:"reclaimed"`
}

// Process runs one processing pass. It takes no request body.
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	summary, err := h.runner.Process(c.UserContext())
	if err != nil {
		return domain.ErrQueueUnavailable.WithError(err)
	}

	if summary.Processed == 0 {
		return c.JSON(IdleResponse{
			Success: true,
			Message: idleMessage,
		})
	}

	return c.JSON(ProcessResponse{
		Success:   true,
		Processed: summary.Processed,
		Results:   summary.Results,
	})
}

// Sweep resets stale processing claims
func (h *ProcessHandler) Sweep(c *fiber.Ctx) error {
	n, err := h.runner.Sweep(c.UserContext())
	if err != nil {
		return domain.ErrQueueUnavailable.WithError(err)
	}

	return c.JSON(SweepResponse{
		Success:   true,
		Reclaimed: n,
	})
}
