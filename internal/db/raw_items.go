package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RawItem is an unprocessed post collected by an ingestion adapter.
type RawItem struct {
	ID          string
	Source      string
	ExternalID  string
	Text        string
	Language    string
	CollectedAt time.Time
	Consumed    bool
}

// SaveRawItem inserts a raw item, ignoring duplicates of the same
// (source, external_id) pair. Returns the stored id, which for a
// duplicate is the id of the existing row.
func (db *DB) SaveRawItem(ctx context.Context, item *RawItem) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO raw_items (source, external_id, text, language, collected_at)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5::timestamptz, '0001-01-01'::timestamptz), now()))
		ON CONFLICT (source, external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id
	`, item.Source, item.ExternalID, SanitizeUTF8(item.Text), item.Language, item.CollectedAt).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("save raw item: %w", err)
	}

	return nil
}

// GetRawItem loads a raw item by id. Returns nil without error when the
// item does not exist.
func (db *DB) GetRawItem(ctx context.Context, id string) (*RawItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, source, external_id, text, language, collected_at, consumed
		FROM raw_items
		WHERE id = $1
	`, toUUID(id))

	var (
		uid       pgtype.UUID
		item      RawItem
		language  pgtype.Text
		collected pgtype.Timestamptz
	)

	if err := row.Scan(&uid, &item.Source, &item.ExternalID, &item.Text, &language, &collected, &item.Consumed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: not found is not an error
		}

		return nil, fmt.Errorf("get raw item: %w", err)
	}

	item.ID = fromUUID(uid)
	item.Language = fromText(language)
	item.CollectedAt = fromTimestamptz(collected)

	return &item, nil
}

// ConsumeRawItem flips the consumed flag with a compare-and-set. Returns
// false when the item was already consumed by another worker; in that
// case the caller lost the race and must abort silently.
func (db *DB) ConsumeRawItem(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE raw_items SET consumed = TRUE
		WHERE id = $1 AND consumed = FALSE
	`, toUUID(id))
	if err != nil {
		return false, fmt.Errorf("consume raw item: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
