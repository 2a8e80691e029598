// Package app wires the application together and exposes the runnable
// modes: the processing worker pool, the publisher pool, and a combined
// mode running both.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/crypto-autopost/internal/admin"
	"github.com/lueurxax/crypto-autopost/internal/config"
	"github.com/lueurxax/crypto-autopost/internal/db"
	"github.com/lueurxax/crypto-autopost/internal/dedup"
	"github.com/lueurxax/crypto-autopost/internal/images"
	"github.com/lueurxax/crypto-autopost/internal/llm"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/pipeline"
	"github.com/lueurxax/crypto-autopost/internal/publisher"
	"github.com/lueurxax/crypto-autopost/internal/telegram"
	"github.com/lueurxax/crypto-autopost/internal/translate"
)

// App holds the shared dependencies and builds the mode runners.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunWorker runs the processing worker pool until ctx is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Int("workers", a.cfg.WorkerCount).Msg("Starting worker mode")

	p := a.newPipeline()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < a.cfg.WorkerCount; i++ {
		group.Go(func() error { return p.Run(ctx) })
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	return nil
}

// RunPublisher runs the publishing worker pool until ctx is canceled.
func (a *App) RunPublisher(ctx context.Context) error {
	a.logger.Info().Int("workers", a.cfg.PublisherWorkerCount).Msg("Starting publisher mode")

	pub, err := a.newPublisher()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < a.cfg.PublisherWorkerCount; i++ {
		group.Go(func() error { return pub.Run(ctx) })
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("publisher pool: %w", err)
	}

	return nil
}

// RunAll runs both pools in one process.
func (a *App) RunAll(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.RunWorker(ctx) })
	group.Go(func() error { return a.RunPublisher(ctx) })

	return group.Wait()
}

// Admin returns the review service used by the operator commands.
func (a *App) Admin() *admin.Service {
	return admin.New(a.database, a.logger)
}

// SubmitRaw stores a raw item and enqueues it for processing. Used by
// the submit command and by ingestion collaborators.
func (a *App) SubmitRaw(ctx context.Context, source, externalID, text, language string) (string, error) {
	item := &db.RawItem{
		Source:      source,
		ExternalID:  externalID,
		Text:        text,
		Language:    language,
		CollectedAt: time.Now().UTC(),
	}

	if err := a.database.SaveRawItem(ctx, item); err != nil {
		return "", fmt.Errorf("save raw item: %w", err)
	}

	// A duplicate (source, external_id) resolves to the existing row; if
	// that row already went through the pipeline, re-enqueueing it would
	// only produce a dropped item.
	processed, err := a.database.GetProcessedItemByRawID(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("check processed state: %w", err)
	}

	if processed != nil {
		a.logger.Info().Str("raw_item_id", item.ID).Msg("item already processed, skipping enqueue")

		return item.ID, nil
	}

	if err := a.newPipeline().Submit(ctx, item.ID); err != nil {
		return "", fmt.Errorf("submit raw item: %w", err)
	}

	return item.ID, nil
}

func (a *App) newPipeline() *pipeline.Pipeline {
	llmClient := llm.New(a.cfg, a.logger)
	checker := dedup.NewChecker(llmClient, a.database, a.cfg.SimilarityThreshold, a.logger)

	machine := translate.NewDeepL(translate.DeepLConfig{
		APIKey:  a.cfg.DeepLAPIKey,
		BaseURL: a.cfg.DeepLAPIURL,
		Timeout: a.cfg.StageTimeout,
	})

	return pipeline.New(a.database, llmClient, machine, checker, pipeline.Config{
		TargetLanguage:      a.cfg.TargetLanguage,
		SimilarityThreshold: a.cfg.SimilarityThreshold,
		MinRewriteLength:    a.cfg.MinRewriteLength,
		StageTimeout:        a.cfg.StageTimeout,
		PollInterval:        a.cfg.WorkerPollInterval,
	}, a.logger)
}

func (a *App) newPublisher() (*publisher.Publisher, error) {
	sender, err := telegram.NewSender(a.cfg.BotToken, a.logger)
	if err != nil {
		return nil, fmt.Errorf("telegram sender init: %w", err)
	}

	links, err := publisher.ParseAffiliateLinks(a.cfg.AffiliateLinksJSON)
	if err != nil {
		return nil, err
	}

	imageGen := images.NewStability(images.StabilityConfig{
		APIKey:  a.cfg.StabilityAPIKey,
		BaseURL: a.cfg.StabilityAPIURL,
		Timeout: a.cfg.StageTimeout,
	})

	llmClient := llm.New(a.cfg, a.logger)

	return publisher.New(a.database, sender, imageGen, llmClient, publisher.Config{
		ChatID:             a.cfg.TargetChatID,
		AffiliateFrequency: a.cfg.AffiliateFrequency,
		AffiliateLinks:     links,
		PollInterval:       a.cfg.WorkerPollInterval,
		SweepPeriod:        a.cfg.ScheduleSweepPeriod,
		StageTimeout:       a.cfg.StageTimeout,
	}, a.logger), nil
}
