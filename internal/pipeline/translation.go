package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/llm"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/platform/worker"
	"github.com/lueurxax/crypto-autopost/internal/translate"
)

// TranslationResult carries the refined rendering plus the reader aids
// produced by the enhancement pass.
type TranslationResult struct {
	SourceLanguage string   `json:"original_language"`
	Text           string   `json:"human_translation"`
	Summary        string   `json:"summary"`
	Glossary       []string `json:"glossary"`
}

var enhanceRequiredFields = []string{"human_translation"}

type translator struct {
	machine    translate.Translator
	llm        llm.Client
	cache      Cache
	targetLang string
	timeout    time.Duration
	logger     zerolog.Logger
}

func newTranslator(machine translate.Translator, client llm.Client, cache Cache, targetLang string, timeout time.Duration, logger zerolog.Logger) *translator {
	return &translator{
		machine:    machine,
		llm:        client,
		cache:      cache,
		targetLang: targetLang,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run translates text into the target publication language. Text already
// in the target language short-circuits to an identity transform with no
// external call. Otherwise a mechanical rendering is obtained first and an
// LLM enhancement pass refines it; enhancement failure leaves the
// mechanical rendering in place rather than blocking the item.
func (t *translator) Run(ctx context.Context, text, sourceLang, summary string) TranslationResult {
	if sameLanguage(sourceLang, t.targetLang) {
		return TranslationResult{
			SourceLanguage: sourceLang,
			Text:           text,
			Summary:        summary,
			Glossary:       []string{},
		}
	}

	fingerprint := Fingerprint(stageTranslation, text, sourceLang, t.targetLang)

	var cached TranslationResult
	if cacheLookup(ctx, t.cache, t.logger, fingerprint, &cached) {
		observability.StageCacheHits.WithLabelValues(stageTranslation).Inc()

		return cached
	}

	machine := t.machineTranslate(ctx, text, sourceLang)
	result, enhanced := t.enhance(ctx, text, machine, sourceLang)
	result.SourceLanguage = sourceLang

	// Degraded output is not cached; a later redelivery should retry the
	// enhancement instead of serving the fallback for a day.
	if enhanced {
		cacheStore(ctx, t.cache, t.logger, fingerprint, result, translationCacheTTL)
	}

	return result
}

func (t *translator) machineTranslate(ctx context.Context, text, sourceLang string) string {
	var machine string

	err := withRetries(ctx, func(ctx context.Context) error {
		return worker.RunWithTimeout(ctx, t.timeout, func(ctx context.Context) error {
			translated, err := t.machine.Translate(ctx, text, sourceLang, t.targetLang)
			if err != nil {
				return err
			}

			machine = translated

			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, translate.ErrNotConfigured) {
			t.logger.Warn().Err(err).Str(logFieldStage, stageTranslation).Msg("machine translation failed, passing source text through")
			observability.StageFailures.WithLabelValues(stageTranslation).Inc()
		}

		return text
	}

	return machine
}

func (t *translator) enhance(ctx context.Context, original, machine, sourceLang string) (TranslationResult, bool) {
	var result TranslationResult

	err := withRetries(ctx, func(ctx context.Context) error {
		return worker.RunWithTimeout(ctx, t.timeout, func(ctx context.Context) error {
			prompt := enhanceSystemPrompt(sourceLang)

			response, err := t.llm.Complete(ctx, prompt, enhanceUserPrompt(sourceLang, original, machine), enhanceTemperature)
			if err != nil {
				return err
			}

			return decodeStageJSON(response, enhanceRequiredFields, &result)
		})
	})
	if err != nil {
		t.logger.Warn().Err(err).Str(logFieldStage, stageTranslation).Msg("enhancement failed, keeping machine rendering")
		observability.StageFailures.WithLabelValues(stageTranslation).Inc()

		return TranslationResult{Text: machine, Glossary: []string{}}, false
	}

	if result.Text == "" {
		result.Text = machine
	}

	if result.Glossary == nil {
		result.Glossary = []string{}
	}

	return result, true
}

func sameLanguage(a, b string) bool {
	norm := func(lang string) string {
		switch lang {
		case "russian":
			return "ru"
		case "english":
			return "en"
		default:
			return lang
		}
	}

	return norm(a) == norm(b)
}
