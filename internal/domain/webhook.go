package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies the provider that emitted a webhook
type Source string

const (
	SourceStripe     Source = "stripe"
	SourceQuickBooks Source = "quickbooks"
	SourcePlaid      Source = "plaid"
	SourceZapier     Source = "zapier"
	SourceOther      Source = "other"
)

// KnownSources lists the sources with a dedicated handler
var KnownSources = []Source{SourceStripe, SourceQuickBooks, SourcePlaid, SourceZapier}

// NormalizeSource lowercases and trims a raw source value. Unknown values are kept
// verbatim so the dispatcher can apply the unknown-source policy to them.
func NormalizeSource(raw string) Source {
	return Source(strings.ToLower(strings.TrimSpace(raw)))
}

// IsIngestible reports whether deliveries for s are accepted. "other" has no
// handler and is acknowledged by the dispatcher without side effects.
func (s Source) IsIngestible() bool {
	return s == SourceOther || s.IsKnown()
}

func (s Source) IsKnown() bool {
	for _, known := range KnownSources {
		if s == known {
			return true
		}
	}
	return false
}

// WebhookEvent is the durable record of one inbound webhook.
// RetryCount mirrors the owning queue entry and is written in the same transaction.
type WebhookEvent struct {
	EventID     string          `json:"event_id"`
	Source      Source          `json:"source"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	RetryCount  int             `json:"retry_count"`
	LastError   *string         `json:"last_error,omitempty"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// QueueStatus is the scheduling state of a queue entry
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

var allowedTransitions = map[QueueStatus][]QueueStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal queue transition.
func (s QueueStatus) CanTransitionTo(next QueueStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic processing happens from s
func (s QueueStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s QueueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ValidateTransition returns ErrInvalidTransition wrapped with both states when the move is illegal
func ValidateTransition(from, to QueueStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// QueueEntry is the scheduling record of a webhook event.
// It is the single source of truth for RetryCount.
type QueueEntry struct {
	ID           uuid.UUID     `json:"id"`
	EventID      string        `json:"event_id"`
	Status       QueueStatus   `json:"status"`
	RetryCount   int           `json:"retry_count"`
	NextRetryAt  time.Time     `json:"next_retry_at"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	ClaimedAt    *time.Time    `json:"claimed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Event        *WebhookEvent `json:"event,omitempty"`
}

// Claim identifies one processing claim on a queue entry. Writes that settle
// the entry only apply while ClaimedAt still matches the stored claim.
type Claim struct {
	EntryID   uuid.UUID
	EventID   string
	ClaimedAt time.Time
}

// NewWebhookEvent builds an event ready to be enqueued
func NewWebhookEvent(eventID string, source Source, eventType string, payload json.RawMessage) *WebhookEvent {
	return &WebhookEvent{
		EventID:    strings.TrimSpace(eventID),
		Source:     source,
		EventType:  strings.TrimSpace(eventType),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}

// Validate checks the fields required for enqueueing
func (e *WebhookEvent) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if e.Source == "" {
		return ErrBadRequest
	}
	if len(e.Payload) == 0 || !json.Valid(e.Payload) {
		return ErrInvalidPayload
	}
	return nil
}
