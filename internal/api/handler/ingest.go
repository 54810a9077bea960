package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/audit"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/ws"
)

const (
	HeaderEventID    = "X-Webhook-Event-Id"
	HeaderEventType  = "X-Webhook-Event-Type"
	HeaderDeliveryID = "X-Webhook-Delivery-Id"

	quickBooksDataChange = "dataChangeEvent"
	derivedIDLength      = 32

	// DerivedIDWindow groups id-less deliveries of the same body. Redeliveries
	// inside one window collapse; a repeat in a later window is a new event.
	DerivedIDWindow = 5 * time.Minute
)

type Enqueuer interface {
	Enqueue(ctx context.Context, event *domain.WebhookEvent) (bool, error)
}

// SecretFunc returns the signing secret of a source; empty disables verification
type SecretFunc func(source string) string

type Broadcaster interface {
	Broadcast(eventType string, data any)
}

type IngestHandler struct {
	queue   Enqueuer
	secrets SecretFunc
	audit   audit.Logger
	events  Broadcaster
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngestHandler(queue Enqueuer, secrets SecretFunc, auditLogger audit.Logger, events Broadcaster, logger *slog.Logger) *IngestHandler {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &IngestHandler{
		queue:   queue,
		secrets: secrets,
		audit:   auditLogger,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

type IngestResponse struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
}

// envelope holds the identity fields providers put in their bodies
type envelope struct {
	ID                 string          `json:"id"`
	EventID            string          `json:"event_id"`
	Type               string          `json:"type"`
	EventType          string          `json:"event_type"`
	WebhookType        string          `json:"webhook_type"`
	EventNotifications json.RawMessage `json:"eventNotifications"`
}

// Ingest verifies, identifies and enqueues one provider delivery.
// A redelivery of a stored event id answers 200 with duplicate=true.
func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	source := domain.NormalizeSource(c.Params("source"))
	if !source.IsIngestible() {
		return domain.ErrUnknownSource
	}

	body := c.Body()
	if len(body) == 0 || !json.Valid(body) {
		return domain.ErrInvalidPayload
	}

	if secret := h.secrets(string(source)); secret != "" {
		if !webhook.Verify(secret, body, c.Get(webhook.SignatureHeader)) {
			h.logger.Warn("rejected webhook with bad signature",
				"source", source,
				"ip", c.IP(),
			)
			return domain.ErrInvalidSignature
		}
	}

	eventID, eventType, err := extractIdentity(source, deliveryMeta{
		EventID:    c.Get(HeaderEventID),
		EventType:  c.Get(HeaderEventType),
		DeliveryID: c.Get(HeaderDeliveryID),
		ReceivedAt: h.now(),
	}, body)
	if err != nil {
		return err
	}

	// fasthttp reuses the body buffer after the handler returns
	payload := make(json.RawMessage, len(body))
	copy(payload, body)

	event := domain.NewWebhookEvent(eventID, source, eventType, payload)
	created, err := h.queue.Enqueue(c.UserContext(), event)
	if err != nil {
		return domain.ErrQueueUnavailable.WithError(err)
	}

	action := audit.ActionIngested
	if !created {
		action = audit.ActionDuplicate
	}
	_ = h.audit.Log(c.UserContext(), audit.Event{
		Action:    action,
		EventID:   event.EventID,
		Source:    string(source),
		EventType: event.EventType,
		Success:   true,
		RemoteIP:  c.IP(),
	})

	resp := IngestResponse{
		Success:   true,
		EventID:   event.EventID,
		EventType: event.EventType,
		Duplicate: !created,
	}

	if !created {
		h.logger.Info("duplicate webhook delivery", "source", source, "event_id", event.EventID)
		return c.JSON(resp)
	}

	if h.events != nil {
		h.events.Broadcast(ws.EventIngested, resp)
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// deliveryMeta is what the transport tells us about one delivery
type deliveryMeta struct {
	EventID    string
	EventType  string
	DeliveryID string
	ReceivedAt time.Time
}

// extractIdentity resolves the event id and type from headers first, then the body.
// Bodies without an id get one derived from the source, the delivery id (or the
// DerivedIDWindow the delivery arrived in) and the body.
func extractIdentity(source domain.Source, meta deliveryMeta, body []byte) (string, string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", domain.ErrInvalidPayload.WithError(err)
	}

	eventID := firstNonEmpty(meta.EventID, env.ID, env.EventID)
	if eventID == "" {
		eventID = derivedEventID(source, meta, body)
	}

	eventType := firstNonEmpty(meta.EventType, env.Type, env.EventType, env.WebhookType)
	if eventType == "" && source == domain.SourceQuickBooks && len(env.EventNotifications) > 0 {
		eventType = quickBooksDataChange
	}
	if eventType == "" {
		return "", "", domain.ErrMissingEventType
	}

	return eventID, eventType, nil
}

func derivedEventID(source domain.Source, meta deliveryMeta, body []byte) string {
	scope := strings.TrimSpace(meta.DeliveryID)
	if scope == "" {
		scope = meta.ReceivedAt.UTC().Truncate(DerivedIDWindow).Format(time.RFC3339)
	}

	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{'\n'})
	h.Write(body)
	return string(source) + "_" + hex.EncodeToString(h.Sum(nil))[:derivedIDLength]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
