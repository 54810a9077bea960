// Package provider holds the contracts shared by the per-source webhook handlers.
// Handlers translate provider payloads into sync requests for downstream systems;
// what those systems do with them is outside this service.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/alert"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/dispatch"
)

// BillingUpdate carries a Stripe billing change to the billing system
type BillingUpdate struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Kind           string `json:"kind"`
	ObjectID       string `json:"object_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Status         string `json:"status,omitempty"`
	AmountCents    int64  `json:"amount_cents,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// FinanceEntity is one changed accounting entity
type FinanceEntity struct {
	EventID     string `json:"event_id"`
	RealmID     string `json:"realm_id"`
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	Operation   string `json:"operation"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// TransactionsUpdate asks the finance system to pull new bank transactions
type TransactionsUpdate struct {
	EventID             string   `json:"event_id"`
	ItemID              string   `json:"item_id"`
	WebhookCode         string   `json:"webhook_code"`
	NewTransactions     int      `json:"new_transactions"`
	RemovedTransactions []string `json:"removed_transactions,omitempty"`
}

// CRMUpdate is a CRM record change relayed from Zapier
type CRMUpdate struct {
	EventID  string          `json:"event_id"`
	Object   string          `json:"object"`
	Action   string          `json:"action"`
	RecordID string          `json:"record_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type BillingSync interface {
	SyncBilling(ctx context.Context, update BillingUpdate) error
}

type FinanceSync interface {
	SyncEntity(ctx context.Context, entity FinanceEntity) error
	SyncTransactions(ctx context.Context, update TransactionsUpdate) error
}

type CRMSync interface {
	SyncCRM(ctx context.Context, update CRMUpdate) error
}

// Alerter sends owner alerts without reporting delivery errors
type Alerter interface {
	Send(ctx context.Context, a alert.Alert)
}

// DecodePayload unmarshals a stored payload, naming the source on failure.
// The payload never changes, so a decode failure is permanent.
func DecodePayload(source string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return dispatch.Permanent(fmt.Errorf("decode %s payload: %w", source, err))
	}
	return nil
}
