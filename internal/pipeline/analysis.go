package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/llm"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/platform/worker"
)

// AnalysisResult is the structured first-pass readout of a raw item.
type AnalysisResult struct {
	Summary   string   `json:"summary_2"`
	KeyPoints []string `json:"key_points"`
	RiskTags  []string `json:"risk_tags"`
	Priority  string   `json:"priority"`
	Language  string   `json:"language"`
}

var analysisRequiredFields = []string{"summary_2", "key_points", "risk_tags", "priority", "language"}

type analyzer struct {
	llm     llm.Client
	cache   Cache
	timeout time.Duration
	logger  zerolog.Logger
}

func newAnalyzer(client llm.Client, cache Cache, timeout time.Duration, logger zerolog.Logger) *analyzer {
	return &analyzer{llm: client, cache: cache, timeout: timeout, logger: logger}
}

// Run analyzes raw text. On collaborator failure it returns the
// conservative default (medium priority, no tags, the item's own language
// hint) and ok=false; the pipeline always proceeds to the next stage.
func (a *analyzer) Run(ctx context.Context, source, languageHint, text string) (AnalysisResult, bool) {
	fingerprint := Fingerprint(stageAnalysis, source, text)

	var result AnalysisResult
	if cacheLookup(ctx, a.cache, a.logger, fingerprint, &result) {
		observability.StageCacheHits.WithLabelValues(stageAnalysis).Inc()

		return result, true
	}

	err := withRetries(ctx, func(ctx context.Context) error {
		return worker.RunWithTimeout(ctx, a.timeout, func(ctx context.Context) error {
			response, err := a.llm.Complete(ctx, analysisSystemPrompt, analysisUserPrompt(source, languageHint, text), analysisTemperature)
			if err != nil {
				return err
			}

			return decodeStageJSON(response, analysisRequiredFields, &result)
		})
	})
	if err != nil {
		a.logger.Warn().Err(err).Str(logFieldStage, stageAnalysis).Msg("stage failed, using default")
		observability.StageFailures.WithLabelValues(stageAnalysis).Inc()

		return defaultAnalysis(languageHint), false
	}

	cacheStore(ctx, a.cache, a.logger, fingerprint, result, analysisCacheTTL)

	return result, true
}

func defaultAnalysis(languageHint string) AnalysisResult {
	return AnalysisResult{
		Priority:  PriorityMedium,
		KeyPoints: []string{},
		RiskTags:  []string{},
		Language:  languageHint,
	}
}

// RiskLevelFromTags maps the analysis risk tags onto a single level.
func RiskLevelFromTags(tags []string) string {
	level := RiskLow

	for _, tag := range tags {
		switch tag {
		case "hack", "scam", "exploit":
			return RiskHigh
		case "rumor", "regulation":
			level = RiskMedium
		}
	}

	return level
}
