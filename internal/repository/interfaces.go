package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it in tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// QueueRepositoryInterface defines the event store and delivery queue operations
type QueueRepositoryInterface interface {
	Enqueue(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	FetchDue(ctx context.Context, limit int) ([]domain.QueueEntry, error)
	MarkProcessing(ctx context.Context, entryID uuid.UUID) (domain.Claim, bool, error)
	MarkCompleted(ctx context.Context, claim domain.Claim) error
	MarkRetry(ctx context.Context, claim domain.Claim, errMsg string, nextRetryAt time.Time, newRetryCount int) error
	MarkFailedTerminal(ctx context.Context, claim domain.Claim, errMsg string) (int, error)
	ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error)
	GetByEventID(ctx context.Context, eventID string) (*domain.QueueEntry, error)
}

var _ QueueRepositoryInterface = (*QueueRepository)(nil)
