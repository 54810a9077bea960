package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

const EventAlertTriggered = "alert.triggered"

// Notifier delivers an alert to one channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Fanout sends every alert to all channels. Channel failures are logged and
// never reach the caller.
type Fanout struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{
		notifiers: notifiers,
		logger:    logger.With("component", "alert"),
	}
}

func (f *Fanout) Send(ctx context.Context, a Alert) {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			f.logger.ErrorContext(ctx, "failed to send alert",
				"channel", n.Name(),
				"alert_id", a.ID,
				"event_id", a.EventID,
				"error", err,
			)
		}
	}
}

// TerminalFailure raises the critical alert for an event that exhausted its retries
func (f *Fanout) TerminalFailure(ctx context.Context, event *domain.WebhookEvent, retryCount int, errMsg string) {
	a := New(SeverityCritical,
		"Webhook permanently failed",
		fmt.Sprintf("%s event %s (%s) failed after %d attempts: %s",
			event.Source, event.EventID, event.EventType, retryCount, errMsg),
	)
	a.Source = string(event.Source)
	a.EventID = event.EventID
	a.EventType = event.EventType
	a.Metadata = map[string]string{
		"retry_count": strconv.Itoa(retryCount),
		"last_error":  errMsg,
	}

	f.Send(ctx, a)
}

// WebhookNotifier posts alerts to the owner's alert endpoint
type WebhookNotifier struct {
	sender *webhook.Sender
	url    string
}

func NewWebhookNotifier(sender *webhook.Sender, url string) *WebhookNotifier {
	return &WebhookNotifier{sender: sender, url: url}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	err := n.sender.Send(ctx, n.url, webhook.EventPayload{
		Type:      EventAlertTriggered,
		Data:      a,
		Timestamp: a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("send alert webhook: %w", err)
	}
	return nil
}

// Broadcaster is satisfied by the websocket hub
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// HubNotifier pushes alerts to connected operator consoles
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Name() string { return "websocket" }

func (n *HubNotifier) Notify(_ context.Context, a Alert) error {
	n.hub.Broadcast(EventAlertTriggered, a)
	return nil
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	level := slog.LevelInfo
	switch a.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	n.logger.Log(ctx, level, "alert triggered",
		"alert_id", a.ID,
		"severity", a.Severity,
		"title", a.Title,
		"message", a.Message,
		"source", a.Source,
		"event_id", a.EventID,
	)
	return nil
}
