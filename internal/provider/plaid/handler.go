package plaid

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/alert"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
)

const (
	TypeTransactions = "TRANSACTIONS"
	TypeItem         = "ITEM"
)

// itemAlertCodes are ITEM webhook codes that need the owner to act
var itemAlertCodes = map[string]alert.Severity{
	"ERROR":                   alert.SeverityCritical,
	"PENDING_EXPIRATION":      alert.SeverityWarning,
	"USER_PERMISSION_REVOKED": alert.SeverityWarning,
}

type payload struct {
	WebhookType         string   `json:"webhook_type"`
	WebhookCode         string   `json:"webhook_code"`
	ItemID              string   `json:"item_id"`
	NewTransactions     int      `json:"new_transactions"`
	RemovedTransactions []string `json:"removed_transactions"`
	Error               *struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

type Handler struct {
	finance provider.FinanceSync
	alerts  provider.Alerter
	logger  *slog.Logger
}

func New(finance provider.FinanceSync, alerts provider.Alerter, logger *slog.Logger) *Handler {
	return &Handler{
		finance: finance,
		alerts:  alerts,
		logger:  logger.With("provider", "plaid"),
	}
}

func (h *Handler) Handle(ctx context.Context, ev *domain.WebhookEvent) error {
	switch ev.EventType {
	case TypeTransactions:
		var p payload
		if err := provider.DecodePayload("plaid", ev.Payload, &p); err != nil {
			return err
		}

		err := h.finance.SyncTransactions(ctx, provider.TransactionsUpdate{
			EventID:             ev.EventID,
			ItemID:              p.ItemID,
			WebhookCode:         p.WebhookCode,
			NewTransactions:     p.NewTransactions,
			RemovedTransactions: p.RemovedTransactions,
		})
		if err != nil {
			return fmt.Errorf("plaid transactions sync: %w", err)
		}
		return nil

	case TypeItem:
		var p payload
		if err := provider.DecodePayload("plaid", ev.Payload, &p); err != nil {
			return err
		}
		h.alertItem(ctx, ev, p)
		return nil

	default:
		h.logger.DebugContext(ctx, "ignoring plaid webhook type", "event_id", ev.EventID, "event_type", ev.EventType)
		return nil
	}
}

func (h *Handler) alertItem(ctx context.Context, ev *domain.WebhookEvent, p payload) {
	severity, ok := itemAlertCodes[p.WebhookCode]
	if !ok {
		return
	}

	msg := fmt.Sprintf("Bank connection %s reported %s", p.ItemID, p.WebhookCode)
	metadata := map[string]string{
		"item_id":      p.ItemID,
		"webhook_code": p.WebhookCode,
	}
	if p.Error != nil {
		msg += ": " + p.Error.ErrorMessage
		metadata["error_code"] = p.Error.ErrorCode
	}

	a := alert.New(severity, "Bank connection needs attention", msg)
	a.Source = string(domain.SourcePlaid)
	a.EventID = ev.EventID
	a.EventType = ev.EventType
	a.Metadata = metadata
	h.alerts.Send(ctx, a)
}
