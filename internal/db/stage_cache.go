package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrStageCacheMiss is returned when no live cache entry exists for a
// fingerprint.
var ErrStageCacheMiss = errors.New("stage cache miss")

// GetStageCache returns the cached payload for a fingerprint, or
// ErrStageCacheMiss when the entry is absent or expired. The cache is a
// cost optimization only and is never authoritative.
func (db *DB) GetStageCache(ctx context.Context, fingerprint string) ([]byte, error) {
	var payload []byte

	err := db.Pool.QueryRow(ctx, `
		SELECT payload FROM stage_cache
		WHERE fingerprint = $1 AND expires_at > now()
	`, fingerprint).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStageCacheMiss
		}

		return nil, fmt.Errorf("get stage cache: %w", err)
	}

	return payload, nil
}

// PutStageCache writes through a stage output with a TTL.
func (db *DB) PutStageCache(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO stage_cache (fingerprint, payload, expires_at)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at
	`, fingerprint, payload, ttl); err != nil {
		return fmt.Errorf("put stage cache: %w", err)
	}

	return nil
}

// PurgeExpiredStageCache removes dead entries; run periodically.
func (db *DB) PurgeExpiredStageCache(ctx context.Context) (int, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM stage_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge stage cache: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
