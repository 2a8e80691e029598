package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/app"
	"github.com/lueurxax/crypto-autopost/internal/config"
	"github.com/lueurxax/crypto-autopost/internal/db"
)

func main() {
	mode := flag.String("mode", "", "Service mode (worker, publisher, all, submit, review)")
	action := flag.String("action", "list", "Review action (list, approve, reject, schedule, engagement)")
	itemID := flag.String("item", "", "Processed item id for review actions")
	publishAt := flag.String("at", "", "RFC3339 time for schedule action")
	likes := flag.Int64("likes", 0, "Like count for engagement action")
	shares := flag.Int64("shares", 0, "Share count for engagement action")
	comments := flag.Int64("comments", 0, "Comment count for engagement action")
	views := flag.Int64("views", 0, "View count for engagement action")
	source := flag.String("source", "", "Source name for submit")
	externalID := flag.String("external-id", "", "External id for submit")
	text := flag.String("text", "", "Raw text for submit")
	language := flag.String("lang", "", "Language hint for submit")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if *mode == "worker" || *mode == "publisher" || *mode == "all" {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	if err := runMode(ctx, application, &logger, modeArgs{
		mode:       *mode,
		action:     *action,
		itemID:     *itemID,
		publishAt:  *publishAt,
		source:     *source,
		externalID: *externalID,
		text:       *text,
		language:   *language,
		likes:      *likes,
		shares:     *shares,
		comments:   *comments,
		views:      *views,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

type modeArgs struct {
	mode       string
	action     string
	itemID     string
	publishAt  string
	source     string
	externalID string
	text       string
	language   string
	likes      int64
	shares     int64
	comments   int64
	views      int64
}

func runMode(ctx context.Context, application *app.App, logger *zerolog.Logger, args modeArgs) error {
	switch args.mode {
	case "worker":
		return application.RunWorker(ctx)
	case "publisher":
		return application.RunPublisher(ctx)
	case "all":
		return application.RunAll(ctx)
	case "submit":
		id, err := application.SubmitRaw(ctx, args.source, args.externalID, args.text, args.language)
		if err != nil {
			return err
		}

		logger.Info().Str("item_id", id).Msg("raw item submitted")

		return nil
	case "review":
		return runReview(ctx, application, logger, args)
	default:
		log.Fatalf("Usage: %s --mode=[worker|publisher|all|submit|review]", os.Args[0])

		return nil
	}
}

func runReview(ctx context.Context, application *app.App, logger *zerolog.Logger, args modeArgs) error {
	service := application.Admin()

	switch args.action {
	case "list":
		items, err := service.HeldItems(ctx, 50)
		if err != nil {
			return err
		}

		for _, item := range items {
			logger.Info().
				Str("item_id", item.ID).
				Str("risk", item.RiskLevel).
				Strs("reasons", item.HoldReasons).
				Str("headline", item.HeadlineShort).
				Msg("held item")
		}

		return nil
	case "approve":
		return service.Approve(ctx, args.itemID)
	case "reject":
		return service.Reject(ctx, args.itemID)
	case "schedule":
		at, err := time.Parse(time.RFC3339, args.publishAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}

		return service.Schedule(ctx, args.itemID, at)
	case "engagement":
		return service.RecordEngagement(ctx, args.itemID, args.likes, args.shares, args.comments, args.views)
	default:
		return fmt.Errorf("unknown review action %q", args.action)
	}
}
