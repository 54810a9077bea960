package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

type captured struct {
	path      string
	eventType string
	signature string
	body      []byte
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()

	var mu sync.Mutex
	var calls []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, captured{
			path:      r.URL.Path,
			eventType: r.Header.Get(webhook.EventHeader),
			signature: r.Header.Get(webhook.SignatureHeader),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), calls...)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_RoutesToEndpoints(t *testing.T) {
	server, calls := newCaptureServer(t, http.StatusOK)

	client := New(webhook.NewSender("sync-secret", time.Second), Endpoints{
		BillingURL: server.URL + "/billing",
		FinanceURL: server.URL + "/finance",
		CRMURL:     server.URL + "/crm",
	}, discardLogger())
	ctx := context.Background()

	require.NoError(t, client.SyncBilling(ctx, provider.BillingUpdate{EventID: "evt_1", Kind: "invoice"}))
	require.NoError(t, client.SyncEntity(ctx, provider.FinanceEntity{EventID: "qb_1", Entity: "Invoice"}))
	require.NoError(t, client.SyncTransactions(ctx, provider.TransactionsUpdate{EventID: "plaid_1", ItemID: "item_1"}))
	require.NoError(t, client.SyncCRM(ctx, provider.CRMUpdate{EventID: "zap_1", Object: "contact"}))

	got := calls()
	require.Len(t, got, 4)

	assert.Equal(t, "/billing", got[0].path)
	assert.Equal(t, EventBillingSync, got[0].eventType)
	assert.Equal(t, "/finance", got[1].path)
	assert.Equal(t, EventFinanceEntity, got[1].eventType)
	assert.Equal(t, "/finance", got[2].path)
	assert.Equal(t, EventFinanceTransacts, got[2].eventType)
	assert.Equal(t, "/crm", got[3].path)
	assert.Equal(t, EventCRMSync, got[3].eventType)

	for _, c := range got {
		assert.True(t, webhook.Verify("sync-secret", c.body, c.signature), "every sync is signed")
	}

	var envelope struct {
		Data provider.TransactionsUpdate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got[2].body, &envelope))
	assert.Equal(t, "item_1", envelope.Data.ItemID)
}

func TestClient_DownstreamErrorIsReturned(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusBadGateway)

	client := New(webhook.NewSender("", time.Second), Endpoints{FinanceURL: server.URL}, discardLogger())

	err := client.SyncTransactions(context.Background(), provider.TransactionsUpdate{EventID: "plaid_1"})
	require.Error(t, err)

	var statusErr *webhook.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Contains(t, err.Error(), EventFinanceTransacts)
}

func TestClient_UnconfiguredEndpointIsNoOp(t *testing.T) {
	client := New(webhook.NewSender("", time.Second), Endpoints{}, discardLogger())

	assert.NoError(t, client.SyncBilling(context.Background(), provider.BillingUpdate{EventID: "evt_1"}))
	assert.NoError(t, client.SyncCRM(context.Background(), provider.CRMUpdate{EventID: "zap_1"}))
}
