package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// DefaultFetchLimit bounds FetchDue when the caller passes a non-positive limit
const DefaultFetchLimit = 10

const entrySelect = `
	SELECT q.id, q.event_id, q.status, q.retry_count, q.next_retry_at, q.error_message,
	       q.claimed_at, q.created_at, q.updated_at,
	       e.source, e.event_type, e.payload, e.retry_count, e.last_error,
	       e.processed, e.processed_at, e.received_at
	FROM webhook_queue q
	INNER JOIN webhook_events e ON e.event_id = q.event_id
`

// QueueRepository owns the webhook_events and webhook_queue tables.
// Every status change is guarded by a WHERE status = ... clause so concurrent
// invocations cannot move an entry along an illegal edge.
type QueueRepository struct {
	pool PgxPool
}

func NewQueueRepository(pool PgxPool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// Enqueue stores the event and its pending queue entry in one transaction.
// It returns false without error when the event id was already stored.
func (r *QueueRepository) Enqueue(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO webhook_events (event_id, source, event_type, payload, retry_count, processed, received_at)
		VALUES ($1, $2, $3, $4, 0, FALSE, NOW())
		RETURNING received_at
	`, event.EventID, string(event.Source), event.EventType, []byte(event.Payload)).Scan(&event.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert webhook event: %w", err)
	}

	entryID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO webhook_queue (id, event_id, status, retry_count, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, NOW(), NOW(), NOW())
	`, entryID, event.EventID)
	if err != nil {
		return false, fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit enqueue: %w", err)
	}

	return true, nil
}

// FetchDue returns pending entries whose next_retry_at has passed, oldest first
func (r *QueueRepository) FetchDue(ctx context.Context, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	query := entrySelect + `
		WHERE q.status = 'pending' AND q.next_retry_at <= NOW()
		ORDER BY q.next_retry_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.QueueEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}

	return entries, nil
}

// MarkProcessing claims a pending entry. It reports false when another
// invocation already claimed it or the entry is no longer pending. The returned
// claim must be passed to the call that settles the entry.
func (r *QueueRepository) MarkProcessing(ctx context.Context, entryID uuid.UUID) (domain.Claim, bool, error) {
	claim := domain.Claim{EntryID: entryID}
	err := r.pool.QueryRow(ctx, `
		UPDATE webhook_queue
		SET status = 'processing', claimed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING event_id, claimed_at
	`, entryID).Scan(&claim.EventID, &claim.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, false, nil
	}
	if err != nil {
		return domain.Claim{}, false, fmt.Errorf("claim queue entry: %w", err)
	}

	return claim, true, nil
}

func (r *QueueRepository) MarkCompleted(ctx context.Context, claim domain.Claim) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback(ctx)

	var retryCount int
	err = tx.QueryRow(ctx, `
		UPDATE webhook_queue
		SET status = 'completed', error_message = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
		RETURNING retry_count
	`, claim.EntryID, claim.ClaimedAt).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return claimError(ctx, tx, claim)
	}
	if err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE webhook_events
		SET processed = TRUE, processed_at = NOW(), retry_count = $2, last_error = NULL
		WHERE event_id = $1
	`, claim.EventID, retryCount)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}

	return nil
}

// MarkRetry returns a claimed entry to pending with its next attempt time
func (r *QueueRepository) MarkRetry(ctx context.Context, claim domain.Claim, errMsg string, nextRetryAt time.Time, newRetryCount int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin retry: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE webhook_queue
		SET status = 'pending', retry_count = $3, next_retry_at = $4, error_message = $5,
		    claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
	`, claim.EntryID, claim.ClaimedAt, newRetryCount, nextRetryAt, errMsg)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return claimError(ctx, tx, claim)
	}

	if err := syncEventFailure(ctx, tx, claim.EventID, newRetryCount, errMsg); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit retry: %w", err)
	}

	return nil
}

// MarkFailedTerminal moves a claimed entry to failed, counting the final attempt.
// It returns the stored retry count.
func (r *QueueRepository) MarkFailedTerminal(ctx context.Context, claim domain.Claim, errMsg string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin fail: %w", err)
	}
	defer tx.Rollback(ctx)

	var retryCount int
	err = tx.QueryRow(ctx, `
		UPDATE webhook_queue
		SET status = 'failed', retry_count = retry_count + 1, error_message = $3,
		    claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND claimed_at = $2
		RETURNING retry_count
	`, claim.EntryID, claim.ClaimedAt, errMsg).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, claimError(ctx, tx, claim)
	}
	if err != nil {
		return 0, fmt.Errorf("fail queue entry: %w", err)
	}

	if err := syncEventFailure(ctx, tx, claim.EventID, retryCount, errMsg); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit fail: %w", err)
	}

	return retryCount, nil
}

// ReclaimStale returns processing entries claimed before the cutoff to pending.
// The retry count is left untouched since no attempt outcome was recorded.
func (r *QueueRepository) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_queue
		SET status = 'pending', claimed_at = NULL, next_retry_at = NOW(), updated_at = NOW()
		WHERE status = 'processing' AND claimed_at < $1
	`, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *QueueRepository) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM webhook_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}
	defer rows.Close()

	counts := map[domain.QueueStatus]int64{
		domain.StatusPending:    0,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.QueueStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func (r *QueueRepository) GetByEventID(ctx context.Context, eventID string) (*domain.QueueEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, entrySelect+`WHERE q.event_id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry by event id: %w", err)
	}

	return entry, nil
}

func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var (
		entry       domain.QueueEntry
		event       domain.WebhookEvent
		status      string
		source      string
		payload     []byte
		processedAt *time.Time
	)

	err := row.Scan(
		&entry.ID,
		&entry.EventID,
		&status,
		&entry.RetryCount,
		&entry.NextRetryAt,
		&entry.ErrorMessage,
		&entry.ClaimedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&source,
		&event.EventType,
		&payload,
		&event.RetryCount,
		&event.LastError,
		&event.Processed,
		&processedAt,
		&event.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = domain.QueueStatus(status)
	event.EventID = entry.EventID
	event.Source = domain.Source(source)
	event.Payload = payload
	event.ProcessedAt = processedAt
	entry.Event = &event

	return &entry, nil
}

func syncEventFailure(ctx context.Context, tx pgx.Tx, eventID string, retryCount int, errMsg string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE webhook_events
		SET retry_count = $2, last_error = $3
		WHERE event_id = $1
	`, eventID, retryCount, errMsg)
	if err != nil {
		return fmt.Errorf("sync event retry state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// claimError explains why a claim-guarded update matched no row
func claimError(ctx context.Context, tx pgx.Tx, claim domain.Claim) error {
	var current string
	err := tx.QueryRow(ctx, `SELECT status FROM webhook_queue WHERE id = $1`, claim.EntryID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("read queue status: %w", err)
	}

	return fmt.Errorf("%w: entry %s is %s", domain.ErrClaimLost, claim.EventID, current)
}
