package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// ArchiveEntry is a published item's text and embedding, kept as the
// similarity-search corpus for later deduplication.
type ArchiveEntry struct {
	ID              string
	ProcessedItemID string
	Title           string
	Text            string
	Embedding       []float32
	Entities        []string
	Topics          []string
	EngagementScore float32
	PublishedAt     time.Time
}

// SimilarEntry is one nearest-neighbor match from the archive.
type SimilarEntry struct {
	ProcessedItemID string
	Title           string
	Similarity      float32
	PublishedAt     time.Time
}

// AddArchiveEntry appends a published item to the similarity corpus.
func (db *DB) AddArchiveEntry(ctx context.Context, entry *ArchiveEntry) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO archive_entries (processed_item_id, title, text, embedding, entities, topics, engagement_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		toUUID(entry.ProcessedItemID),
		SanitizeUTF8(entry.Title),
		SanitizeUTF8(entry.Text),
		pgvector.NewVector(entry.Embedding),
		entry.Entities,
		entry.Topics,
		entry.EngagementScore,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("add archive entry: %w", err)
	}

	return nil
}

// FindSimilarEntries returns up to limit archive entries whose cosine
// similarity to the embedding exceeds minSimilarity, most similar first.
// The `<=>` operator is cosine distance, so similarity = 1 - distance.
func (db *DB) FindSimilarEntries(ctx context.Context, embedding []float32, minSimilarity float32, limit int) ([]SimilarEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT processed_item_id, title, 1 - (embedding <=> $1::vector) AS similarity, published_at
		FROM archive_entries
		WHERE embedding IS NOT NULL
		  AND (embedding <=> $1::vector) < $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, pgvector.NewVector(embedding), float64(1.0-minSimilarity), limit)
	if err != nil {
		return nil, fmt.Errorf("find similar entries: %w", err)
	}
	defer rows.Close()

	var entries []SimilarEntry

	for rows.Next() {
		var (
			entry     SimilarEntry
			itemID    pgtype.UUID
			title     pgtype.Text
			sim       float64
			published pgtype.Timestamptz
		)

		if err := rows.Scan(&itemID, &title, &sim, &published); err != nil {
			return nil, fmt.Errorf("scan similar entry: %w", err)
		}

		entry.ProcessedItemID = fromUUID(itemID)
		entry.Title = fromText(title)
		entry.Similarity = float32(sim)
		entry.PublishedAt = fromTimestamptz(published)

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// UpdateEngagementScore refreshes the engagement score of the archive
// entry backing a processed item.
func (db *DB) UpdateEngagementScore(ctx context.Context, processedItemID string, score float32) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE archive_entries SET engagement_score = $2 WHERE processed_item_id = $1
	`, toUUID(processedItemID), score); err != nil {
		return fmt.Errorf("update engagement score: %w", err)
	}

	return nil
}
