package zapier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider"
)

type fakeCRM struct {
	updates []provider.CRMUpdate
	err     error
}

func (f *fakeCRM) SyncCRM(_ context.Context, u provider.CRMUpdate) error {
	f.updates = append(f.updates, u)
	return f.err
}

func newHandler(crm *fakeCRM) *Handler {
	return New(crm, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		eventType  string
		body       string
		wantSynced bool
		wantObject string
		wantAction string
		wantRecord string
		wantData   string
	}{
		{
			name:       "contact created with record id",
			eventType:  "contact.created",
			body:       `{"record_id":"c_1","data":{"email":"a@b.co"}}`,
			wantSynced: true,
			wantObject: "contact",
			wantAction: "created",
			wantRecord: "c_1",
			wantData:   `{"email":"a@b.co"}`,
		},
		{
			name:       "deal updated falls back to id and whole payload",
			eventType:  "Deal.Updated",
			body:       `{"id":"d_9","stage":"won"}`,
			wantSynced: true,
			wantObject: "deal",
			wantAction: "updated",
			wantRecord: "d_9",
			wantData:   `{"id":"d_9","stage":"won"}`,
		},
		{
			name:      "unsupported object",
			eventType: "ticket.created",
			body:      `{}`,
		},
		{
			name:      "type without action",
			eventType: "contact",
			body:      `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := &fakeCRM{}
			ev := domain.NewWebhookEvent("zap_1", domain.SourceZapier, tt.eventType, json.RawMessage(tt.body))

			require.NoError(t, newHandler(crm).Handle(context.Background(), ev))

			if !tt.wantSynced {
				assert.Empty(t, crm.updates)
				return
			}
			require.Len(t, crm.updates, 1)
			u := crm.updates[0]
			assert.Equal(t, "zap_1", u.EventID)
			assert.Equal(t, tt.wantObject, u.Object)
			assert.Equal(t, tt.wantAction, u.Action)
			assert.Equal(t, tt.wantRecord, u.RecordID)
			assert.JSONEq(t, tt.wantData, string(u.Data))
		})
	}
}

func TestHandler_SyncFailure(t *testing.T) {
	crm := &fakeCRM{err: errors.New("crm rate limited")}
	ev := domain.NewWebhookEvent("zap_2", domain.SourceZapier, "lead.created", json.RawMessage(`{"id":"l_1"}`))

	err := newHandler(crm).Handle(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, crm.err)
}
