package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

// Cache stores serialized stage outputs keyed by input fingerprint. It is
// shared across workers without locking; a stale or missing entry only costs
// an extra collaborator call.
type Cache interface {
	GetStageCache(ctx context.Context, fingerprint string) ([]byte, error)
	PutStageCache(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error
}

// cacheLookup fills out from the cache and reports whether it hit. Cache
// errors other than a miss are logged and treated as a miss.
func cacheLookup[T any](ctx context.Context, cache Cache, logger zerolog.Logger, fingerprint string, out *T) bool {
	payload, err := cache.GetStageCache(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, db.ErrStageCacheMiss) {
			logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("stage cache lookup failed")
		}

		return false
	}

	if err = json.Unmarshal(payload, out); err != nil {
		logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("corrupt stage cache entry")

		return false
	}

	return true
}

// cacheStore writes through a stage output. Failures are logged only; the
// result is already in hand.
func cacheStore(ctx context.Context, cache Cache, logger zerolog.Logger, fingerprint string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("marshal stage cache entry")

		return
	}

	if err = cache.PutStageCache(ctx, fingerprint, payload, ttl); err != nil {
		logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("stage cache write failed")
	}
}
