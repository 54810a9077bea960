package quickbooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
)

// EventDataChange is the only notification kind QuickBooks Online sends
const EventDataChange = "dataChangeEvent"

// SupportedEntities are the entity kinds relayed to the finance system
var SupportedEntities = map[string]bool{
	"Invoice":  true,
	"Payment":  true,
	"Customer": true,
	"Bill":     true,
	"Vendor":   true,
	"Account":  true,
	"Estimate": true,
}

type notificationPayload struct {
	EventNotifications []struct {
		RealmID         string `json:"realmId"`
		DataChangeEvent struct {
			Entities []struct {
				Name        string `json:"name"`
				ID          string `json:"id"`
				Operation   string `json:"operation"`
				LastUpdated string `json:"lastUpdated"`
			} `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

type Handler struct {
	finance provider.FinanceSync
	logger  *slog.Logger
}

func New(finance provider.FinanceSync, logger *slog.Logger) *Handler {
	return &Handler{
		finance: finance,
		logger:  logger.With("provider", "quickbooks"),
	}
}

func (h *Handler) Handle(ctx context.Context, ev *domain.WebhookEvent) error {
	if ev.EventType != EventDataChange {
		h.logger.DebugContext(ctx, "ignoring quickbooks event type", "event_id", ev.EventID, "event_type", ev.EventType)
		return nil
	}

	var payload notificationPayload
	if err := provider.DecodePayload("quickbooks", ev.Payload, &payload); err != nil {
		return err
	}

	synced := 0
	for _, n := range payload.EventNotifications {
		for _, e := range n.DataChangeEvent.Entities {
			if !SupportedEntities[e.Name] {
				h.logger.DebugContext(ctx, "skipping unsupported entity", "event_id", ev.EventID, "entity", e.Name)
				continue
			}

			err := h.finance.SyncEntity(ctx, provider.FinanceEntity{
				EventID:     ev.EventID,
				RealmID:     n.RealmID,
				Entity:      e.Name,
				EntityID:    e.ID,
				Operation:   e.Operation,
				LastUpdated: e.LastUpdated,
			})
			if err != nil {
				return fmt.Errorf("quickbooks %s %s: %w", e.Name, e.ID, err)
			}
			synced++
		}
	}

	h.logger.DebugContext(ctx, "quickbooks entities synced", "event_id", ev.EventID, "count", synced)
	return nil
}
