package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/llm"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/platform/worker"
)

// RewriteResult is the editorial output: an article distinct from the
// source, two headline variants, an author remark and topical tags.
type RewriteResult struct {
	HeadlineShort string   `json:"headline_short"`
	HeadlineLong  string   `json:"headline_long"`
	Body          string   `json:"body"`
	AuthorNote    string   `json:"author_note"`
	Tags          []string `json:"tags"`
}

// Degraded reports whether this is the fallback output (translated text
// verbatim, no headline, no tags). The gate treats degraded output as
// low quality and holds it for review.
func (r RewriteResult) Degraded() bool {
	return r.HeadlineShort == "" && r.HeadlineLong == ""
}

var rewriteRequiredFields = []string{"headline_short", "headline_long", "body"}

type rewriter struct {
	llm                 llm.Client
	cache               Cache
	similarityThreshold float32
	timeout             time.Duration
	logger              zerolog.Logger
}

func newRewriter(client llm.Client, cache Cache, similarityThreshold float32, timeout time.Duration, logger zerolog.Logger) *rewriter {
	return &rewriter{
		llm:                 client,
		cache:               cache,
		similarityThreshold: similarityThreshold,
		timeout:             timeout,
		logger:              logger,
	}
}

// Run produces the rewritten article. If the collaborator is unavailable
// the translated text is passed through verbatim with no headline or
// tags, which the gate later flags as low quality.
func (r *rewriter) Run(ctx context.Context, translated, summary string, similarity float32) RewriteResult {
	fingerprint := Fingerprint(stageRewrite, translated, summary, fmt.Sprintf("%.2f", similarity))

	var result RewriteResult
	if cacheLookup(ctx, r.cache, r.logger, fingerprint, &result) {
		observability.StageCacheHits.WithLabelValues(stageRewrite).Inc()

		return result
	}

	err := withRetries(ctx, func(ctx context.Context) error {
		return worker.RunWithTimeout(ctx, r.timeout, func(ctx context.Context) error {
			prompt := rewriteSystemPrompt(r.similarityThreshold)

			response, err := r.llm.CompleteSmart(ctx, prompt, rewriteUserPrompt(translated, summary, similarity), rewriteTemperature)
			if err != nil {
				return err
			}

			if decodeErr := decodeStageJSON(response, rewriteRequiredFields, &result); decodeErr != nil {
				if errors.Is(decodeErr, errMissingField) {
					return decodeErr
				}

				// A plain-text response is accepted as a body-only rewrite;
				// the missing headline routes it to review.
				result = RewriteResult{Body: stripCodeFences(response)}
			}

			return nil
		})
	})
	if err != nil {
		r.logger.Warn().Err(err).Str(logFieldStage, stageRewrite).Msg("stage failed, passing translated text through")
		observability.StageFailures.WithLabelValues(stageRewrite).Inc()

		return RewriteResult{Body: translated, Tags: []string{}}
	}

	if result.Tags == nil {
		result.Tags = []string{}
	}

	// Body-only output is not cached so a redelivery can retry for the
	// full structured result.
	if !result.Degraded() {
		cacheStore(ctx, r.cache, r.logger, fingerprint, result, rewriteCacheTTL)
	}

	return result
}
