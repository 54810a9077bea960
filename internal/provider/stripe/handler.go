package stripe

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/alert"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
)

const (
	CheckoutSessionCompleted = "checkout.session.completed"
	SubscriptionCreated      = "customer.subscription.created"
	SubscriptionUpdated      = "customer.subscription.updated"
	SubscriptionDeleted      = "customer.subscription.deleted"
	InvoicePaid              = "invoice.paid"
	InvoicePaymentSucceeded  = "invoice.payment_succeeded"
	InvoicePaymentFailed     = "invoice.payment_failed"
)

const (
	kindCheckout     = "checkout"
	kindSubscription = "subscription"
	kindInvoice      = "invoice"
)

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object object `json:"object"`
	} `json:"data"`
}

type object struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Status       string `json:"status"`
	AmountTotal  int64  `json:"amount_total"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
}

type Handler struct {
	billing provider.BillingSync
	alerts  provider.Alerter
	logger  *slog.Logger
}

func New(billing provider.BillingSync, alerts provider.Alerter, logger *slog.Logger) *Handler {
	return &Handler{
		billing: billing,
		alerts:  alerts,
		logger:  logger.With("provider", "stripe"),
	}
}

func (h *Handler) Handle(ctx context.Context, ev *domain.WebhookEvent) error {
	kind, ok := kindOf(ev.EventType)
	if !ok {
		h.logger.DebugContext(ctx, "ignoring stripe event type", "event_id", ev.EventID, "event_type", ev.EventType)
		return nil
	}

	var payload event
	if err := provider.DecodePayload("stripe", ev.Payload, &payload); err != nil {
		return err
	}
	obj := payload.Data.Object

	update := provider.BillingUpdate{
		EventID:        ev.EventID,
		EventType:      ev.EventType,
		Kind:           kind,
		ObjectID:       obj.ID,
		CustomerID:     obj.Customer,
		SubscriptionID: obj.Subscription,
		Status:         obj.Status,
		AmountCents:    amountOf(ev.EventType, obj),
		Currency:       strings.ToUpper(obj.Currency),
	}
	if kind == kindSubscription {
		update.SubscriptionID = obj.ID
	}

	if err := h.billing.SyncBilling(ctx, update); err != nil {
		return fmt.Errorf("stripe %s: %w", ev.EventType, err)
	}

	if ev.EventType == InvoicePaymentFailed {
		h.alertPaymentFailed(ctx, ev, update)
	}

	return nil
}

func (h *Handler) alertPaymentFailed(ctx context.Context, ev *domain.WebhookEvent, u provider.BillingUpdate) {
	a := alert.New(alert.SeverityWarning,
		"Invoice payment failed",
		fmt.Sprintf("Payment for invoice %s of customer %s failed (%d %s)", u.ObjectID, u.CustomerID, u.AmountCents, u.Currency),
	)
	a.Source = string(domain.SourceStripe)
	a.EventID = ev.EventID
	a.EventType = ev.EventType
	a.Metadata = map[string]string{
		"invoice_id":   u.ObjectID,
		"customer_id":  u.CustomerID,
		"amount_cents": strconv.FormatInt(u.AmountCents, 10),
	}
	h.alerts.Send(ctx, a)
}

func kindOf(eventType string) (string, bool) {
	switch eventType {
	case CheckoutSessionCompleted:
		return kindCheckout, true
	case SubscriptionCreated, SubscriptionUpdated, SubscriptionDeleted:
		return kindSubscription, true
	case InvoicePaid, InvoicePaymentSucceeded, InvoicePaymentFailed:
		return kindInvoice, true
	default:
		return "", false
	}
}

func amountOf(eventType string, obj object) int64 {
	switch eventType {
	case CheckoutSessionCompleted:
		return obj.AmountTotal
	case InvoicePaid, InvoicePaymentSucceeded:
		return obj.AmountPaid
	case InvoicePaymentFailed:
		return obj.AmountDue
	default:
		return 0
	}
}
