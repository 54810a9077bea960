package handler

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

func newQueueApp(queue *MockQueue, guard DispatchLookup) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(discardLogger())})
	h := NewQueueHandler(queue, guard, discardLogger())
	app.Get("/v1/webhooks/queue/stats", h.Stats)
	app.Get("/v1/webhooks/events/:event_id", h.GetEvent)
	return app
}

func TestQueueHandler_Stats(t *testing.T) {
	queue := new(MockQueue)
	queue.On("CountByStatus", mock.Anything).Return(map[domain.QueueStatus]int64{
		domain.StatusPending:    4,
		domain.StatusProcessing: 1,
		domain.StatusCompleted:  20,
		domain.StatusFailed:     2,
	}, nil)

	resp, err := newQueueApp(queue, nil).Test(httptest.NewRequest("GET", "/v1/webhooks/queue/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var got StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, StatsResponse{Pending: 4, Processing: 1, Completed: 20, Failed: 2, Total: 27}, got)
}

func TestQueueHandler_StatsError(t *testing.T) {
	queue := new(MockQueue)
	queue.On("CountByStatus", mock.Anything).Return(nil, errors.New("db down"))

	resp, err := newQueueApp(queue, nil).Test(httptest.NewRequest("GET", "/v1/webhooks/queue/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestQueueHandler_GetEvent(t *testing.T) {
	dispatchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &domain.QueueEntry{
		ID:      uuid.New(),
		EventID: "evt_1",
		Status:  domain.StatusCompleted,
		Event: &domain.WebhookEvent{
			EventID:   "evt_1",
			Source:    domain.SourceStripe,
			EventType: "invoice.paid",
			Payload:   json.RawMessage(`{"id":"evt_1"}`),
			Processed: true,
		},
	}

	t.Run("found with dispatch marker", func(t *testing.T) {
		queue := new(MockQueue)
		queue.On("GetByEventID", mock.Anything, "evt_1").Return(entry, nil)
		guard := new(MockGuard)
		guard.On("DispatchedAt", mock.Anything, "stripe:evt_1").Return(dispatchedAt, true, nil)

		resp, err := newQueueApp(queue, guard).Test(httptest.NewRequest("GET", "/v1/webhooks/events/evt_1", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var got EventResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.NotNil(t, got.Entry)
		assert.Equal(t, domain.StatusCompleted, got.Entry.Status)
		assert.True(t, got.Entry.Event.Processed)
		require.NotNil(t, got.DispatchedAt)
		assert.True(t, dispatchedAt.Equal(*got.DispatchedAt))

		guard.AssertExpectations(t)
	})

	t.Run("guard errors do not fail the lookup", func(t *testing.T) {
		queue := new(MockQueue)
		queue.On("GetByEventID", mock.Anything, "evt_1").Return(entry, nil)
		guard := new(MockGuard)
		guard.On("DispatchedAt", mock.Anything, "stripe:evt_1").Return(time.Time{}, false, errors.New("cache down"))

		resp, err := newQueueApp(queue, guard).Test(httptest.NewRequest("GET", "/v1/webhooks/events/evt_1", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		queue := new(MockQueue)
		queue.On("GetByEventID", mock.Anything, "missing").Return(nil, domain.ErrEventNotFound)

		resp, err := newQueueApp(queue, nil).Test(httptest.NewRequest("GET", "/v1/webhooks/events/missing", nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
	})
}
