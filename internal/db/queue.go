package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Queue entry lifecycle. An entry stays pending until a worker claims
// it, stays in the table while processing, and is deleted only on ack.
const (
	queueStatusPending    = "pending"
	queueStatusProcessing = "processing"
	queueStatusDead       = "dead"
)

// QueueClaim is a leased queue entry. The underlying row survives the
// claim, so a failed or crashed attempt can be redelivered.
type QueueClaim struct {
	ID       string
	ItemID   string
	Attempts int
}

// Enqueue pushes an item id onto a named work queue.
func (db *DB) Enqueue(ctx context.Context, queue, itemID string) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO work_queue (queue, item_id) VALUES ($1, $2)
	`, queue, toUUID(itemID)); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}

	return nil
}

// ClaimQueueItem leases the oldest available entry of a queue: the row
// flips to processing and its attempt counter is bumped, but it is not
// removed until the consumer acks it. FOR UPDATE SKIP LOCKED keeps
// concurrent workers off the same row. Returns nil when the queue is
// empty.
func (db *DB) ClaimQueueItem(ctx context.Context, queue string) (*QueueClaim, error) {
	var (
		id       pgtype.UUID
		itemID   pgtype.UUID
		attempts int
	)

	err := db.Pool.QueryRow(ctx, `
		WITH picked AS (
			SELECT id
			FROM work_queue
			WHERE queue = $1 AND status = $2 AND available_at <= now()
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE work_queue wq
		SET status = $3, attempt_count = wq.attempt_count + 1, claimed_at = now()
		FROM picked
		WHERE wq.id = picked.id
		RETURNING wq.id, wq.item_id, wq.attempt_count
	`, queue, queueStatusPending, queueStatusProcessing).Scan(&id, &itemID, &attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // empty queue is not an error
		}

		return nil, fmt.Errorf("claim %s: %w", queue, err)
	}

	return &QueueClaim{ID: fromUUID(id), ItemID: fromUUID(itemID), Attempts: attempts}, nil
}

// AckQueueItem removes a claimed entry once its item has been fully
// handled or deliberately dropped.
func (db *DB) AckQueueItem(ctx context.Context, claimID string) error {
	if _, err := db.Pool.Exec(ctx, `
		DELETE FROM work_queue WHERE id = $1
	`, toUUID(claimID)); err != nil {
		return fmt.Errorf("ack queue item: %w", err)
	}

	return nil
}

// RequeueClaim returns a claimed entry to the pending state so the item
// is redelivered, not before retryAt.
func (db *DB) RequeueClaim(ctx context.Context, claimID string, retryAt time.Time) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE work_queue
		SET status = $2, available_at = $3, claimed_at = NULL
		WHERE id = $1
	`, toUUID(claimID), queueStatusPending, retryAt); err != nil {
		return fmt.Errorf("requeue claim: %w", err)
	}

	return nil
}

// MarkClaimDead parks an entry whose attempt budget is spent. The row
// stays in the table for inspection but is never claimed again.
func (db *DB) MarkClaimDead(ctx context.Context, claimID string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE work_queue SET status = $2 WHERE id = $1
	`, toUUID(claimID), queueStatusDead); err != nil {
		return fmt.Errorf("mark claim dead: %w", err)
	}

	return nil
}

// ReclaimStaleClaims returns entries held by workers that died mid-claim
// to the pending state. Reports how many entries were recovered.
func (db *DB) ReclaimStaleClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE work_queue
		SET status = $1, claimed_at = NULL
		WHERE status = $2 AND claimed_at < now() - $3
	`, queueStatusPending, queueStatusProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale claims: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// QueueLength reports the number of pending entries on a queue.
func (db *DB) QueueLength(ctx context.Context, queue string) (int, error) {
	var n int

	err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM work_queue WHERE queue = $1 AND status = $2
	`, queue, queueStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue length %s: %w", queue, err)
	}

	return n, nil
}

// SchedulePost defers an item to a future publish time.
func (db *DB) SchedulePost(ctx context.Context, processedItemID string, publishAt time.Time) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO scheduled_posts (processed_item_id, publish_at) VALUES ($1, $2)
	`, toUUID(processedItemID), publishAt); err != nil {
		return fmt.Errorf("schedule post: %w", err)
	}

	return nil
}

// SweepDueScheduled moves every scheduled post whose publish time has
// passed into the publish queue. The move is a single statement, so a
// row is removed from the delayed set atomically with its admission to
// the queue and concurrent sweeps cannot double-enqueue.
func (db *DB) SweepDueScheduled(ctx context.Context) (int, error) {
	tag, err := db.Pool.Exec(ctx, `
		WITH due AS (
			SELECT id, processed_item_id
			FROM scheduled_posts
			WHERE publish_at <= now()
			FOR UPDATE SKIP LOCKED
		),
		moved AS (
			INSERT INTO work_queue (queue, item_id)
			SELECT $1, processed_item_id FROM due
		)
		DELETE FROM scheduled_posts sp
		USING due
		WHERE sp.id = due.id
	`, QueuePublish)
	if err != nil {
		return 0, fmt.Errorf("sweep scheduled posts: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
