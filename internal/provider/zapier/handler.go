package zapier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
)

// SupportedObjects are the CRM objects Zaps may report on
var SupportedObjects = map[string]bool{
	"contact": true,
	"company": true,
	"deal":    true,
	"lead":    true,
}

type payload struct {
	ID       string          `json:"id"`
	RecordID string          `json:"record_id"`
	Data     json.RawMessage `json:"data"`
}

type Handler struct {
	crm    provider.CRMSync
	logger *slog.Logger
}

func New(crm provider.CRMSync, logger *slog.Logger) *Handler {
	return &Handler{
		crm:    crm,
		logger: logger.With("provider", "zapier"),
	}
}

// Handle relays <object>.<action> events, for example contact.created
func (h *Handler) Handle(ctx context.Context, ev *domain.WebhookEvent) error {
	object, action, ok := splitType(ev.EventType)
	if !ok || !SupportedObjects[object] {
		h.logger.DebugContext(ctx, "ignoring zapier event type", "event_id", ev.EventID, "event_type", ev.EventType)
		return nil
	}

	var p payload
	if err := provider.DecodePayload("zapier", ev.Payload, &p); err != nil {
		return err
	}

	update := provider.CRMUpdate{
		EventID:  ev.EventID,
		Object:   object,
		Action:   action,
		RecordID: p.RecordID,
		Data:     p.Data,
	}
	if update.RecordID == "" {
		update.RecordID = p.ID
	}
	if len(update.Data) == 0 {
		update.Data = ev.Payload
	}

	if err := h.crm.SyncCRM(ctx, update); err != nil {
		return fmt.Errorf("zapier %s: %w", ev.EventType, err)
	}
	return nil
}

func splitType(eventType string) (object, action string, ok bool) {
	object, action, ok = strings.Cut(strings.ToLower(strings.TrimSpace(eventType)), ".")
	if !ok || object == "" || action == "" {
		return "", "", false
	}
	return object, action, true
}
