//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/database"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

func setupIntegrationTest(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "webhooks_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/webhooks_test?sslmode=disable", host, port.Port())

	sqlDB, err := database.OpenSQL(ctx, connStr)
	require.NoError(t, err)
	_, err = database.ApplyAll(sqlDB, "webhooks_test")
	require.NoError(t, err)
	_ = sqlDB.Close()

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(connStr))
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestQueueRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewQueueRepository(pool)

	t.Run("duplicate ingestion creates one entry", func(t *testing.T) {
		event := domain.NewWebhookEvent("evt_dup", domain.SourceStripe, "invoice.paid", json.RawMessage(`{"id":"evt_dup"}`))

		created, err := repo.Enqueue(ctx, event)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.Enqueue(ctx, event)
		require.NoError(t, err)
		assert.False(t, created)

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[domain.StatusPending])
	})

	t.Run("concurrent claims have exactly one winner", func(t *testing.T) {
		event := domain.NewWebhookEvent("evt_race", domain.SourcePlaid, "TRANSACTIONS", json.RawMessage(`{}`))
		_, err := repo.Enqueue(ctx, event)
		require.NoError(t, err)

		entry, err := repo.GetByEventID(ctx, "evt_race")
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.MarkProcessing(ctx, entry.ID)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("full lifecycle keeps event and queue in sync", func(t *testing.T) {
		event := domain.NewWebhookEvent("evt_life", domain.SourceZapier, "contact.created", json.RawMessage(`{}`))
		_, err := repo.Enqueue(ctx, event)
		require.NoError(t, err)

		entry, err := repo.GetByEventID(ctx, "evt_life")
		require.NoError(t, err)

		claim, ok, err := repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "evt_life", claim.EventID)

		require.NoError(t, repo.MarkRetry(ctx, claim, "crm down", time.Now().Add(-time.Second), 1))

		due, err := repo.FetchDue(ctx, 10)
		require.NoError(t, err)
		var found bool
		for _, d := range due {
			if d.EventID == "evt_life" {
				found = true
				assert.Equal(t, 1, d.RetryCount)
				assert.Equal(t, 1, d.Event.RetryCount)
			}
		}
		assert.True(t, found)

		claim, ok, err = repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.MarkCompleted(ctx, claim))

		got, err := repo.GetByEventID(ctx, "evt_life")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.True(t, got.Event.Processed)
		assert.Equal(t, 1, got.Event.RetryCount)
		assert.Nil(t, got.ErrorMessage)

		_, ok, err = repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		assert.False(t, ok, "completed entries cannot be reclaimed")

		err = repo.MarkCompleted(ctx, claim)
		assert.ErrorIs(t, err, domain.ErrClaimLost)
	})

	t.Run("terminal failure increments count", func(t *testing.T) {
		event := domain.NewWebhookEvent("evt_fail", domain.SourcePlaid, "TRANSACTIONS", json.RawMessage(`{}`))
		_, err := repo.Enqueue(ctx, event)
		require.NoError(t, err)

		entry, err := repo.GetByEventID(ctx, "evt_fail")
		require.NoError(t, err)

		claim, ok, err := repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.MarkRetry(ctx, claim, "e", time.Now().Add(-time.Second), 5))

		claim, ok, err = repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)

		count, err := repo.MarkFailedTerminal(ctx, claim, "final")
		require.NoError(t, err)
		assert.Equal(t, 6, count)

		got, err := repo.GetByEventID(ctx, "evt_fail")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, 6, got.Event.RetryCount)
		require.NotNil(t, got.Event.LastError)
		assert.Equal(t, "final", *got.Event.LastError)
	})

	t.Run("stale claims are reclaimed", func(t *testing.T) {
		event := domain.NewWebhookEvent("evt_stale", domain.SourceStripe, "invoice.paid", json.RawMessage(`{}`))
		_, err := repo.Enqueue(ctx, event)
		require.NoError(t, err)

		entry, err := repo.GetByEventID(ctx, "evt_stale")
		require.NoError(t, err)

		stale, ok, err := repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)

		n, err := repo.ReclaimStale(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		got, err := repo.GetByEventID(ctx, "evt_stale")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Nil(t, got.ClaimedAt)

		// the new holder settles the entry; the swept holder cannot
		fresh, ok, err := repo.MarkProcessing(ctx, entry.ID)
		require.NoError(t, err)
		require.True(t, ok)

		err = repo.MarkCompleted(ctx, stale)
		assert.ErrorIs(t, err, domain.ErrClaimLost)
		require.NoError(t, repo.MarkCompleted(ctx, fresh))
	})
}
