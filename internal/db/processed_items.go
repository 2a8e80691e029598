package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ProcessedItem holds the outputs of every pipeline stage for one raw item.
type ProcessedItem struct {
	ID         string
	RawItemID  string
	Summary    string
	KeyPoints  []string
	RiskTags   []string
	RiskLevel  string
	Priority   string
	ContentType string

	SourceLanguage     string
	TranslatedText     string
	TranslationSummary string
	Glossary           []string

	RewrittenText string
	HeadlineShort string
	HeadlineLong  string
	AuthorNote    string
	Tags          []string

	SimilarityScore float32
	SimilarItemIDs  []string

	Status      string
	Hold        bool
	HoldReasons []string
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveProcessedItem upserts on raw_item_id so that queue redelivery of an
// item whose processing crashed between persist and consume produces a
// single record rather than a second one.
func (db *DB) SaveProcessedItem(ctx context.Context, item *ProcessedItem) error {
	metadata := item.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO processed_items (
			raw_item_id, summary, key_points, risk_tags, risk_level, priority, content_type,
			source_language, translated_text, translation_summary, glossary,
			rewritten_text, headline_short, headline_long, author_note, tags,
			similarity_score, similar_item_ids, status, hold, hold_reasons, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (raw_item_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			key_points = EXCLUDED.key_points,
			risk_tags = EXCLUDED.risk_tags,
			risk_level = EXCLUDED.risk_level,
			priority = EXCLUDED.priority,
			content_type = EXCLUDED.content_type,
			source_language = EXCLUDED.source_language,
			translated_text = EXCLUDED.translated_text,
			translation_summary = EXCLUDED.translation_summary,
			glossary = EXCLUDED.glossary,
			rewritten_text = EXCLUDED.rewritten_text,
			headline_short = EXCLUDED.headline_short,
			headline_long = EXCLUDED.headline_long,
			author_note = EXCLUDED.author_note,
			tags = EXCLUDED.tags,
			similarity_score = EXCLUDED.similarity_score,
			similar_item_ids = EXCLUDED.similar_item_ids,
			status = EXCLUDED.status,
			hold = EXCLUDED.hold,
			hold_reasons = EXCLUDED.hold_reasons,
			metadata = EXCLUDED.metadata,
			updated_at = now()
		RETURNING id
	`,
		toUUID(item.RawItemID),
		SanitizeUTF8(item.Summary),
		item.KeyPoints,
		item.RiskTags,
		item.RiskLevel,
		item.Priority,
		item.ContentType,
		item.SourceLanguage,
		SanitizeUTF8(item.TranslatedText),
		SanitizeUTF8(item.TranslationSummary),
		item.Glossary,
		SanitizeUTF8(item.RewrittenText),
		SanitizeUTF8(item.HeadlineShort),
		SanitizeUTF8(item.HeadlineLong),
		SanitizeUTF8(item.AuthorNote),
		item.Tags,
		item.SimilarityScore,
		item.SimilarItemIDs,
		item.Status,
		item.Hold,
		item.HoldReasons,
		metadata,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("save processed item: %w", err)
	}

	return nil
}

// GetProcessedItem loads a processed item by id. Returns nil without
// error when the item does not exist.
func (db *DB) GetProcessedItem(ctx context.Context, id string) (*ProcessedItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, raw_item_id, summary, key_points, risk_tags, risk_level, priority, content_type,
		       source_language, translated_text, translation_summary, glossary,
		       rewritten_text, headline_short, headline_long, author_note, tags,
		       similarity_score, similar_item_ids, status, hold, hold_reasons, metadata,
		       created_at, updated_at
		FROM processed_items
		WHERE id = $1
	`, toUUID(id))

	return scanProcessedItem(row)
}

// GetProcessedItemByRawID loads the processed item created for a raw item,
// or nil when processing has not produced one yet.
func (db *DB) GetProcessedItemByRawID(ctx context.Context, rawItemID string) (*ProcessedItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, raw_item_id, summary, key_points, risk_tags, risk_level, priority, content_type,
		       source_language, translated_text, translation_summary, glossary,
		       rewritten_text, headline_short, headline_long, author_note, tags,
		       similarity_score, similar_item_ids, status, hold, hold_reasons, metadata,
		       created_at, updated_at
		FROM processed_items
		WHERE raw_item_id = $1
	`, toUUID(rawItemID))

	return scanProcessedItem(row)
}

// ListHeldItems returns items waiting for manual review, oldest first.
func (db *DB) ListHeldItems(ctx context.Context, limit int) ([]ProcessedItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, raw_item_id, summary, key_points, risk_tags, risk_level, priority, content_type,
		       source_language, translated_text, translation_summary, glossary,
		       rewritten_text, headline_short, headline_long, author_note, tags,
		       similarity_score, similar_item_ids, status, hold, hold_reasons, metadata,
		       created_at, updated_at
		FROM processed_items
		WHERE hold AND status = $1
		ORDER BY created_at
		LIMIT $2
	`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list held items: %w", err)
	}
	defer rows.Close()

	var items []ProcessedItem

	for rows.Next() {
		item, err := scanProcessedItem(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, *item)
	}

	return items, rows.Err()
}

// ApproveItem clears the hold flag and marks the item ready for
// publishing. Returns false when the item is absent or already terminal,
// making repeated approvals a no-op.
func (db *DB) ApproveItem(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE processed_items
		SET hold = FALSE, status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ($3, $4, $5)
	`, toUUID(id), StatusReady, StatusPublished, StatusRejected, StatusArchived)
	if err != nil {
		return false, fmt.Errorf("approve item: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RejectItem moves the item to the terminal rejected status. Returns
// false when the item is absent or already terminal.
func (db *DB) RejectItem(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE processed_items
		SET hold = FALSE, status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ($2, $3, $4)
	`, toUUID(id), StatusRejected, StatusPublished, StatusArchived)
	if err != nil {
		return false, fmt.Errorf("reject item: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkItemPublished flips the status after a successful send.
func (db *DB) MarkItemPublished(ctx context.Context, id string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE processed_items SET status = $2, updated_at = now() WHERE id = $1
	`, toUUID(id), StatusPublished); err != nil {
		return fmt.Errorf("mark item published: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessedItem(row rowScanner) (*ProcessedItem, error) {
	var (
		item             ProcessedItem
		id, rawID        pgtype.UUID
		created, updated pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &rawID, &item.Summary, &item.KeyPoints, &item.RiskTags, &item.RiskLevel, &item.Priority, &item.ContentType,
		&item.SourceLanguage, &item.TranslatedText, &item.TranslationSummary, &item.Glossary,
		&item.RewrittenText, &item.HeadlineShort, &item.HeadlineLong, &item.AuthorNote, &item.Tags,
		&item.SimilarityScore, &item.SimilarItemIDs, &item.Status, &item.Hold, &item.HoldReasons, &item.Metadata,
		&created, &updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: not found is not an error
		}

		return nil, fmt.Errorf("scan processed item: %w", err)
	}

	item.ID = fromUUID(id)
	item.RawItemID = fromUUID(rawID)
	item.CreatedAt = fromTimestamptz(created)
	item.UpdatedAt = fromTimestamptz(updated)

	return &item, nil
}
