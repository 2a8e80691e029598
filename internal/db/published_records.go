package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// PublishedRecord is the result of a successful send, one-to-one with a
// processed item in terminal published state.
type PublishedRecord struct {
	ID                string
	ProcessedItemID   string
	Platform          string
	MessageID         string
	FinalText         string
	HeadlineUsed      string
	ImageURL          string
	ContainsAffiliate bool
	AffiliateName     string
	PublishedAt       time.Time
}

// SavePublishedRecord inserts the record for a send. The unique
// constraint on processed_item_id makes a concurrent double publish a
// conflict; the losing writer gets false and must treat the item as
// already handled.
func (db *DB) SavePublishedRecord(ctx context.Context, rec *PublishedRecord) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO published_records (
			processed_item_id, platform, message_id, final_text, headline_used,
			image_url, contains_affiliate, affiliate_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (processed_item_id) DO NOTHING
	`,
		toUUID(rec.ProcessedItemID),
		rec.Platform,
		rec.MessageID,
		SanitizeUTF8(rec.FinalText),
		SanitizeUTF8(rec.HeadlineUsed),
		rec.ImageURL,
		rec.ContainsAffiliate,
		rec.AffiliateName,
	)
	if err != nil {
		return false, fmt.Errorf("save published record: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// HasPublishedRecord reports whether a send already happened for the item.
func (db *DB) HasPublishedRecord(ctx context.Context, processedItemID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM published_records WHERE processed_item_id = $1)
	`, toUUID(processedItemID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check published record: %w", err)
	}

	return exists, nil
}

// RecentPublishedRecords returns the trailing window of sends, newest
// first, used by the affiliate-insertion policy.
func (db *DB) RecentPublishedRecords(ctx context.Context, limit int) ([]PublishedRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, processed_item_id, platform, message_id, final_text, headline_used,
		       image_url, contains_affiliate, affiliate_name, published_at
		FROM published_records
		ORDER BY published_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent published records: %w", err)
	}
	defer rows.Close()

	var records []PublishedRecord

	for rows.Next() {
		var (
			rec       PublishedRecord
			id, item  pgtype.UUID
			published pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &item, &rec.Platform, &rec.MessageID, &rec.FinalText, &rec.HeadlineUsed,
			&rec.ImageURL, &rec.ContainsAffiliate, &rec.AffiliateName, &published); err != nil {
			return nil, fmt.Errorf("scan published record: %w", err)
		}

		rec.ID = fromUUID(id)
		rec.ProcessedItemID = fromUUID(item)
		rec.PublishedAt = fromTimestamptz(published)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpdatePublishedMetrics stores refreshed interaction counters for the
// record backing a processed item.
func (db *DB) UpdatePublishedMetrics(ctx context.Context, processedItemID string, likes, shares, comments, views int64) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE published_records
		SET likes_count = $2, shares_count = $3, comments_count = $4, views_count = $5
		WHERE processed_item_id = $1
	`, toUUID(processedItemID), likes, shares, comments, views); err != nil {
		return fmt.Errorf("update published metrics: %w", err)
	}

	return nil
}
