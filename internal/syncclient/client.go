// Package syncclient relays provider updates to the downstream billing, finance
// and CRM services as signed JSON posts.
package syncclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

const (
	EventBillingSync      = "billing.sync"
	EventFinanceEntity    = "finance.entity.sync"
	EventFinanceTransacts = "finance.transactions.sync"
	EventCRMSync          = "crm.sync"
)

// Endpoints lists the downstream URLs. An empty URL turns that sync into a logged no-op.
type Endpoints struct {
	BillingURL string
	FinanceURL string
	CRMURL     string
}

type Client struct {
	sender    *webhook.Sender
	endpoints Endpoints
	logger    *slog.Logger
}

var (
	_ provider.BillingSync = (*Client)(nil)
	_ provider.FinanceSync = (*Client)(nil)
	_ provider.CRMSync     = (*Client)(nil)
)

func New(sender *webhook.Sender, endpoints Endpoints, logger *slog.Logger) *Client {
	return &Client{
		sender:    sender,
		endpoints: endpoints,
		logger:    logger.With("component", "syncclient"),
	}
}

func (c *Client) SyncBilling(ctx context.Context, u provider.BillingUpdate) error {
	return c.post(ctx, c.endpoints.BillingURL, EventBillingSync, u.EventID, u)
}

func (c *Client) SyncEntity(ctx context.Context, e provider.FinanceEntity) error {
	return c.post(ctx, c.endpoints.FinanceURL, EventFinanceEntity, e.EventID, e)
}

func (c *Client) SyncTransactions(ctx context.Context, u provider.TransactionsUpdate) error {
	return c.post(ctx, c.endpoints.FinanceURL, EventFinanceTransacts, u.EventID, u)
}

func (c *Client) SyncCRM(ctx context.Context, u provider.CRMUpdate) error {
	return c.post(ctx, c.endpoints.CRMURL, EventCRMSync, u.EventID, u)
}

func (c *Client) post(ctx context.Context, url, eventType, eventID string, data any) error {
	if url == "" {
		c.logger.InfoContext(ctx, "no endpoint configured, skipping sync",
			"sync", eventType,
			"event_id", eventID,
		)
		return nil
	}

	if err := c.sender.Send(ctx, url, webhook.EventPayload{Type: eventType, Data: data}); err != nil {
		return fmt.Errorf("%s: %w", eventType, err)
	}

	c.logger.DebugContext(ctx, "sync delivered", "sync", eventType, "event_id", eventID)
	return nil
}
