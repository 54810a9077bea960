package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of queue activity being recorded
type Action string

const (
	ActionIngested       Action = "WEBHOOK_INGESTED"
	ActionDuplicate      Action = "WEBHOOK_DUPLICATE"
	ActionCompleted      Action = "WEBHOOK_COMPLETED"
	ActionRetryScheduled Action = "WEBHOOK_RETRY_SCHEDULED"
	ActionFailed         Action = "WEBHOOK_FAILED"
	ActionClaimLost      Action = "WEBHOOK_CLAIM_LOST"
	ActionReclaimed      Action = "WEBHOOK_CLAIMS_RECLAIMED"
)

// Event is one audit record of the webhook pipeline
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     Action            `json:"action"`
	EventID    string            `json:"event_id,omitempty"`
	Source     string            `json:"source,omitempty"`
	EventType  string            `json:"event_type,omitempty"`
	RetryCount int               `json:"retry_count"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RemoteIP   string            `json:"remote_ip,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("action", string(event.Action)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("audit_id", event.ID.String()),
		slog.String("action", string(event.Action)),
		slog.String("event_id", event.EventID),
		slog.String("source", event.Source),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
