package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
)

func newProcessApp(runner *MockRunner) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(discardLogger())})
	h := NewProcessHandler(runner, discardLogger())
	app.Post("/v1/webhooks/process", h.Process)
	app.Get("/v1/webhooks/process", h.Process)
	app.Post("/v1/webhooks/sweep", h.Sweep)
	return app
}

func TestProcessHandler_Process(t *testing.T) {
	t.Run("returns per entry results", func(t *testing.T) {
		retries := 1
		next := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

		runner := new(MockRunner)
		runner.On("Process", mock.Anything).Return(webhook.Summary{
			Processed: 2,
			Results: []webhook.EntryResult{
				{EventID: "evt_1", Status: domain.StatusCompleted},
				{EventID: "plaid_1", Status: domain.StatusPending, RetryCount: &retries, NextRetry: &next, Error: "timeout"},
			},
		}, nil)

		resp, err := newProcessApp(runner).Test(httptest.NewRequest("POST", "/v1/webhooks/process", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		var got map[string]any
		require.NoError(t, json.Unmarshal(body, &got))

		assert.Equal(t, true, got["success"])
		assert.Equal(t, float64(2), got["processed"])

		results := got["results"].([]any)
		require.Len(t, results, 2)

		first := results[0].(map[string]any)
		assert.Equal(t, "completed", first["status"])
		assert.NotContains(t, first, "retry_count")
		assert.NotContains(t, first, "error")

		second := results[1].(map[string]any)
		assert.Equal(t, "pending", second["status"])
		assert.Equal(t, float64(1), second["retry_count"])
		assert.Equal(t, "2026-03-01T12:00:01Z", second["next_retry"])
		assert.Equal(t, "timeout", second["error"])

		runner.AssertExpectations(t)
	})

	t.Run("idle run", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Process", mock.Anything).Return(webhook.Summary{Results: []webhook.EntryResult{}}, nil)

		resp, err := newProcessApp(runner).Test(httptest.NewRequest("GET", "/v1/webhooks/process", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var got IdleResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.True(t, got.Success)
		assert.Equal(t, "No pending webhooks to process", got.Message)
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Process", mock.Anything).Return(webhook.Summary{}, errors.New("fetch due entries: connection refused"))

		resp, err := newProcessApp(runner).Test(httptest.NewRequest("POST", "/v1/webhooks/process", nil))
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "QUEUE_UNAVAILABLE")
		assert.NotContains(t, string(body), "connection refused")
	})
}

func TestProcessHandler_Sweep(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Sweep", mock.Anything).Return(int64(3), nil)

	resp, err := newProcessApp(runner).Test(httptest.NewRequest("POST", "/v1/webhooks/sweep", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var got SweepResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Success)
	assert.Equal(t, int64(3), got.Reclaimed)
}
