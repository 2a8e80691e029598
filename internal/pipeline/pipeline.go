// Package pipeline implements the content-processing engine: analysis,
// translation, deduplication and rewrite stages, the review gate, and
// the queue-driven orchestrator that runs them per item.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
	"github.com/lueurxax/crypto-autopost/internal/dedup"
	"github.com/lueurxax/crypto-autopost/internal/llm"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/platform/worker"
	"github.com/lueurxax/crypto-autopost/internal/translate"
)

const (
	queueDepthInterval   = 30 * time.Second
	cachePurgeInterval   = 10 * time.Minute
	staleReclaimInterval = time.Minute
)

// Repository is the persistence surface the orchestrator needs. *db.DB
// satisfies it; tests substitute an in-memory fake.
type Repository interface {
	GetRawItem(ctx context.Context, id string) (*db.RawItem, error)
	ConsumeRawItem(ctx context.Context, id string) (bool, error)
	SaveProcessedItem(ctx context.Context, item *db.ProcessedItem) error
	Enqueue(ctx context.Context, queue, itemID string) error
	ClaimQueueItem(ctx context.Context, queue string) (*db.QueueClaim, error)
	AckQueueItem(ctx context.Context, claimID string) error
	RequeueClaim(ctx context.Context, claimID string, retryAt time.Time) error
	MarkClaimDead(ctx context.Context, claimID string) error
	ReclaimStaleClaims(ctx context.Context, olderThan time.Duration) (int, error)
	QueueLength(ctx context.Context, queue string) (int, error)
	PurgeExpiredStageCache(ctx context.Context) (int, error)
	Cache
}

// DupChecker is the deduplication collaborator; it never fails outward.
type DupChecker interface {
	Check(ctx context.Context, text string) dedup.Result
}

// Config carries the tunables for a pipeline instance.
type Config struct {
	TargetLanguage      string
	SimilarityThreshold float32
	MinRewriteLength    int
	StageTimeout        time.Duration
	PollInterval        time.Duration
}

// Pipeline drains the process queue and runs each item through the four
// stages and the gate.
type Pipeline struct {
	repo         Repository
	analyzer     *analyzer
	translator   *translator
	rewriter     *rewriter
	dup          DupChecker
	gateCfg      GateConfig
	pollInterval time.Duration
	logger       zerolog.Logger
}

func New(repo Repository, client llm.Client, machine translate.Translator, dup DupChecker, cfg Config, logger *zerolog.Logger) *Pipeline {
	stageLogger := logger.With().Str("component", "pipeline").Logger()

	return &Pipeline{
		repo:       repo,
		analyzer:   newAnalyzer(client, repo, cfg.StageTimeout, stageLogger),
		translator: newTranslator(machine, client, repo, cfg.TargetLanguage, cfg.StageTimeout, stageLogger),
		rewriter:   newRewriter(client, repo, cfg.SimilarityThreshold, cfg.StageTimeout, stageLogger),
		dup:        dup,
		gateCfg: GateConfig{
			DuplicateThreshold: cfg.SimilarityThreshold,
			MinRewriteLength:   cfg.MinRewriteLength,
		},
		pollInterval: cfg.PollInterval,
		logger:       stageLogger,
	}
}

// Submit enqueues a raw item id for processing.
func (p *Pipeline) Submit(ctx context.Context, rawItemID string) error {
	return p.repo.Enqueue(ctx, db.QueueProcess, rawItemID)
}

// Run consumes the process queue until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "pipeline",
		PollInterval: p.pollInterval,
		Process:      p.step,
		PeriodicTasks: []worker.PeriodicTask{
			{Name: "queue depth", Interval: queueDepthInterval, Run: p.reportQueueDepth},
			{Name: "cache purge", Interval: cachePurgeInterval, Run: p.purgeCache},
			{Name: "stale claims", Interval: staleReclaimInterval, Run: p.reclaimStale},
		},
		Logger: &p.logger,
	})
}

// step claims one queue entry and acks it only after the item completed
// or was deliberately dropped. A processing failure releases the claim
// for redelivery instead, so the item is never lost.
func (p *Pipeline) step(ctx context.Context) error {
	claim, err := p.repo.ClaimQueueItem(ctx, db.QueueProcess)
	if err != nil {
		return fmt.Errorf("claim queue item: %w", err)
	}

	if claim == nil {
		return nil
	}

	if err = p.processItem(ctx, claim.ItemID); err != nil {
		p.releaseClaim(ctx, claim, err)

		return err
	}

	if err = p.repo.AckQueueItem(ctx, claim.ID); err != nil {
		return fmt.Errorf("ack queue item: %w", err)
	}

	return nil
}

// releaseClaim puts a failed claim back for a delayed retry, or parks it
// once the attempt budget is spent. Runs detached from ctx cancellation
// so a shutdown mid-item still releases the entry; if the write fails
// anyway, the stale-claim reclaim recovers it later.
func (p *Pipeline) releaseClaim(ctx context.Context, claim *db.QueueClaim, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With().Str(logFieldItemID, claim.ItemID).Int("attempts", claim.Attempts).Logger()

	if claim.Attempts >= maxQueueAttempts {
		logger.Error().Err(cause).Msg("attempt budget exhausted, parking queue entry")

		if err := p.repo.MarkClaimDead(ctx, claim.ID); err != nil {
			logger.Warn().Err(err).Msg("parking queue entry failed")
		}

		return
	}

	logger.Warn().Err(cause).Msg("processing failed, requeueing for redelivery")

	if err := p.repo.RequeueClaim(ctx, claim.ID, time.Now().Add(requeueDelay)); err != nil {
		logger.Warn().Err(err).Msg("requeue failed")
	}
}

func (p *Pipeline) reclaimStale(ctx context.Context) {
	reclaimed, err := p.repo.ReclaimStaleClaims(ctx, staleClaimAge)
	if err != nil {
		p.logger.Warn().Err(err).Msg("stale claim reclaim failed")

		return
	}

	if reclaimed > 0 {
		p.logger.Warn().Int("reclaimed", reclaimed).Msg("stale queue claims returned for redelivery")
	}
}

// processItem runs one raw item through the stages and the gate. Stage
// failures degrade to defaults; only persistence failures return an
// error, leaving the item uncommitted so queue redelivery can retry it.
func (p *Pipeline) processItem(ctx context.Context, rawItemID string) error {
	logger := p.logger.With().Str(logFieldItemID, rawItemID).Logger()

	raw, err := p.repo.GetRawItem(ctx, rawItemID)
	if err != nil {
		return fmt.Errorf("load raw item: %w", err)
	}

	if raw == nil || raw.Consumed {
		logger.Debug().Msg("raw item missing or already consumed, dropping")
		observability.ItemsProcessed.WithLabelValues("dropped").Inc()

		return nil
	}

	analysis, _ := p.analyzer.Run(ctx, raw.Source, raw.Language, raw.Text)

	sourceLang := analysis.Language
	if sourceLang == "" {
		sourceLang = raw.Language
	}

	translation := p.translator.Run(ctx, raw.Text, sourceLang, analysis.Summary)
	dupResult := p.checkDuplicate(ctx, translation.Text)
	rewrite := p.rewriter.Run(ctx, translation.Text, translation.Summary, dupResult.SimilarityScore)

	riskLevel := RiskLevelFromTags(analysis.RiskTags)
	decision := EvaluateGate(GateInput{
		RiskLevel:       riskLevel,
		SimilarityScore: dupResult.SimilarityScore,
		RewrittenText:   rewrite.Body,
		HasHeadline:     !rewrite.Degraded(),
	}, p.gateCfg)

	item := buildProcessedItem(raw, analysis, translation, dupResult, rewrite, riskLevel, decision)

	if err = p.repo.SaveProcessedItem(ctx, item); err != nil {
		return fmt.Errorf("persist processed item: %w", err)
	}

	if decision.Publish {
		if err = p.repo.Enqueue(ctx, db.QueuePublish, item.ID); err != nil {
			return fmt.Errorf("enqueue for publishing: %w", err)
		}

		observability.GateDecisions.WithLabelValues(GateVerdictPublish).Inc()
		observability.ItemsProcessed.WithLabelValues("ready").Inc()
	} else {
		for _, reason := range decision.Reasons {
			observability.GateDecisions.WithLabelValues(reason).Inc()
		}

		observability.ItemsProcessed.WithLabelValues("held").Inc()
		logger.Info().Strs("reasons", decision.Reasons).Msg("item held for review")
	}

	consumed, err := p.repo.ConsumeRawItem(ctx, rawItemID)
	if err != nil {
		return fmt.Errorf("mark raw item consumed: %w", err)
	}

	if !consumed {
		logger.Debug().Msg("lost consumption race, another worker finished first")
	}

	logger.Info().Bool("publish", decision.Publish).Str("risk", riskLevel).Msg("item processed")

	return nil
}

// checkDuplicate runs the deduplication stage behind the fingerprint
// cache. The verdict uses a shorter TTL than the text stages because the
// archive keeps growing and a stale "not similar" answer should expire.
func (p *Pipeline) checkDuplicate(ctx context.Context, text string) dedup.Result {
	fingerprint := Fingerprint(stageDedup, text)

	var result dedup.Result
	if cacheLookup(ctx, p.repo, p.logger, fingerprint, &result) {
		observability.StageCacheHits.WithLabelValues(stageDedup).Inc()

		return result
	}

	result = p.dup.Check(ctx, text)
	cacheStore(ctx, p.repo, p.logger, fingerprint, result, dedupCacheTTL)

	return result
}

func buildProcessedItem(
	raw *db.RawItem,
	analysis AnalysisResult,
	translation TranslationResult,
	dupResult dedup.Result,
	rewrite RewriteResult,
	riskLevel string,
	decision GateDecision,
) *db.ProcessedItem {
	item := &db.ProcessedItem{
		RawItemID:   raw.ID,
		Summary:     analysis.Summary,
		KeyPoints:   analysis.KeyPoints,
		RiskTags:    analysis.RiskTags,
		RiskLevel:   riskLevel,
		Priority:    analysis.Priority,
		ContentType: classifyContent(analysis.RiskTags, raw.Text),

		SourceLanguage:     translation.SourceLanguage,
		TranslatedText:     translation.Text,
		TranslationSummary: translation.Summary,
		Glossary:           translation.Glossary,

		RewrittenText: rewrite.Body,
		HeadlineShort: rewrite.HeadlineShort,
		HeadlineLong:  rewrite.HeadlineLong,
		AuthorNote:    rewrite.AuthorNote,
		Tags:          rewrite.Tags,

		SimilarityScore: dupResult.SimilarityScore,
		SimilarItemIDs:  dupResult.SimilarItemIDs,
	}

	if decision.Publish {
		item.Status = db.StatusReady
	} else {
		item.Status = db.StatusPending
		item.Hold = true
		item.HoldReasons = decision.Reasons
	}

	item.Metadata = stageMetadata(analysis, translation, dupResult)

	return item
}

// stageMetadata keeps the raw stage outputs alongside the item for audit
// and review display.
func stageMetadata(analysis AnalysisResult, translation TranslationResult, dupResult dedup.Result) []byte {
	payload, err := json.Marshal(map[string]any{
		"analysis":     analysis,
		"translation":  translation,
		"dedup":        dupResult,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil
	}

	return payload
}

func (p *Pipeline) reportQueueDepth(ctx context.Context) {
	for _, queue := range []string{db.QueueProcess, db.QueuePublish} {
		depth, err := p.repo.QueueLength(ctx, queue)
		if err != nil {
			p.logger.Warn().Err(err).Str("queue", queue).Msg("queue length query failed")

			continue
		}

		observability.QueueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}

func (p *Pipeline) purgeCache(ctx context.Context) {
	purged, err := p.repo.PurgeExpiredStageCache(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("stage cache purge failed")

		return
	}

	if purged > 0 {
		p.logger.Debug().Int("purged", purged).Msg("expired stage cache entries removed")
	}
}

// classifyContent buckets an item by its risk tags, falling back to a
// keyword scan of the source text.
func classifyContent(riskTags []string, text string) string {
	for _, tag := range riskTags {
		switch tag {
		case "hack":
			return "hack"
		case "regulation":
			return "regulatory"
		case "rumor":
			return "leak"
		}
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "analysis", "technical", "whitepaper"):
		return "technical"
	case containsAny(lower, "price", "market", "trading"):
		return "analysis"
	default:
		return "news"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}

	return false
}
