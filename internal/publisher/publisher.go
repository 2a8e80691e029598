// Package publisher drains the publish queue: it assembles final posts,
// applies the affiliate policy, resolves a cover image, sends to the
// channel and records the publication in the archive.
package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
	"github.com/lueurxax/crypto-autopost/internal/images"
	"github.com/lueurxax/crypto-autopost/internal/observability"
	"github.com/lueurxax/crypto-autopost/internal/pipeline"
	"github.com/lueurxax/crypto-autopost/internal/platform/worker"
	"github.com/lueurxax/crypto-autopost/internal/telegram"
)

const (
	platformTelegram = "telegram"

	maxQueueAttempts     = 5
	requeueDelay         = time.Minute
	staleClaimAge        = 10 * time.Minute
	staleReclaimInterval = time.Minute

	imageCacheTTL   = 24 * time.Hour
	imagePromptTpl  = "Magazine-style crypto cover, background: subtle candlestick chart, foreground: anonymous trader silhouette checking phone, no real logos, mood: urgent-analytic, style: photorealistic + cinematic lighting, add headline overlay: '%s', format: 1200x675, aspect:16:9. Avoid: copyrighted logos, real faces."
	imageStageLabel = "image"
)

// Repository is the persistence surface the publisher needs. *db.DB
// satisfies it.
type Repository interface {
	GetProcessedItem(ctx context.Context, id string) (*db.ProcessedItem, error)
	MarkItemPublished(ctx context.Context, id string) error
	HasPublishedRecord(ctx context.Context, processedItemID string) (bool, error)
	SavePublishedRecord(ctx context.Context, rec *db.PublishedRecord) (bool, error)
	RecentPublishedRecords(ctx context.Context, limit int) ([]db.PublishedRecord, error)
	AddArchiveEntry(ctx context.Context, entry *db.ArchiveEntry) error
	ClaimQueueItem(ctx context.Context, queue string) (*db.QueueClaim, error)
	AckQueueItem(ctx context.Context, claimID string) error
	RequeueClaim(ctx context.Context, claimID string, retryAt time.Time) error
	MarkClaimDead(ctx context.Context, claimID string) error
	ReclaimStaleClaims(ctx context.Context, olderThan time.Duration) (int, error)
	SweepDueScheduled(ctx context.Context) (int, error)
	GetStageCache(ctx context.Context, fingerprint string) ([]byte, error)
	PutStageCache(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error
}

// Embedder computes the vector stored with each archive entry.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Config carries the publisher tunables.
type Config struct {
	ChatID             int64
	AffiliateFrequency int
	AffiliateLinks     []AffiliateLink
	PollInterval       time.Duration
	SweepPeriod        time.Duration
	StageTimeout       time.Duration
}

// Publisher consumes the publish queue and owns the scheduled-post sweep.
type Publisher struct {
	repo     Repository
	sender   telegram.Sender
	images   images.Generator
	embedder Embedder
	cfg      Config
	rng      *rand.Rand
	logger   zerolog.Logger
}

func New(repo Repository, sender telegram.Sender, imageGen images.Generator, embedder Embedder, cfg Config, logger *zerolog.Logger) *Publisher {
	return &Publisher{
		repo:     repo,
		sender:   sender,
		images:   imageGen,
		embedder: embedder,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // weighted choice, not crypto
		logger:   logger.With().Str("component", "publisher").Logger(),
	}
}

// Run consumes the publish queue until ctx is canceled, sweeping due
// scheduled posts periodically.
func (p *Publisher) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "publisher",
		PollInterval: p.cfg.PollInterval,
		Process:      p.step,
		PeriodicTasks: []worker.PeriodicTask{
			{Name: "scheduled sweep", Interval: p.cfg.SweepPeriod, Run: p.sweepScheduled},
			{Name: "stale claims", Interval: staleReclaimInterval, Run: p.reclaimStale},
		},
		Logger: &p.logger,
	})
}

// step claims one publish queue entry and acks it only after the item
// was sent or deliberately dropped. A failure releases the claim for
// redelivery, so a send or persistence error never loses the item.
func (p *Publisher) step(ctx context.Context) error {
	claim, err := p.repo.ClaimQueueItem(ctx, db.QueuePublish)
	if err != nil {
		return fmt.Errorf("claim queue item: %w", err)
	}

	if claim == nil {
		return nil
	}

	if err = p.publishItem(ctx, claim.ItemID); err != nil {
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
// so a shutdown mid-item still releases the entry.
func (p *Publisher) releaseClaim(ctx context.Context, claim *db.QueueClaim, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With().Str("item_id", claim.ItemID).Int("attempts", claim.Attempts).Logger()

	if claim.Attempts >= maxQueueAttempts {
		logger.Error().Err(cause).Msg("attempt budget exhausted, parking queue entry")

		if err := p.repo.MarkClaimDead(ctx, claim.ID); err != nil {
			logger.Warn().Err(err).Msg("parking queue entry failed")
		}

		return
	}

	logger.Warn().Err(cause).Msg("publish failed, requeueing for redelivery")

	if err := p.repo.RequeueClaim(ctx, claim.ID, time.Now().Add(requeueDelay)); err != nil {
		logger.Warn().Err(err).Msg("requeue failed")
	}
}

func (p *Publisher) reclaimStale(ctx context.Context) {
	reclaimed, err := p.repo.ReclaimStaleClaims(ctx, staleClaimAge)
	if err != nil {
		p.logger.Warn().Err(err).Msg("stale claim reclaim failed")

		return
	}

	if reclaimed > 0 {
		p.logger.Warn().Int("reclaimed", reclaimed).Msg("stale queue claims returned for redelivery")
	}
}

// publishItem sends one ready item. Returned errors leave the item
// uncommitted for queue redelivery; everything short of a send or
// persistence failure is a normal skip.
func (p *Publisher) publishItem(ctx context.Context, itemID string) error {
	logger := p.logger.With().Str("item_id", itemID).Logger()

	item, err := p.repo.GetProcessedItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load processed item: %w", err)
	}

	if item == nil {
		logger.Warn().Msg("processed item not found, dropping")
		observability.Publishes.WithLabelValues("skipped").Inc()

		return nil
	}

	if item.Status != db.StatusReady {
		logger.Debug().Str("status", item.Status).Msg("item not ready, dropping")
		observability.Publishes.WithLabelValues("skipped").Inc()

		return nil
	}

	published, err := p.repo.HasPublishedRecord(ctx, itemID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}

	if published {
		logger.Debug().Msg("already published, dropping redelivery")
		observability.Publishes.WithLabelValues("skipped").Inc()

		return nil
	}

	affiliate, err := p.chooseAffiliate(ctx)
	if err != nil {
		return err
	}

	post := AssemblePost(item, affiliate)
	imageData, imageURI := p.resolveImage(ctx, item)

	messageID, imageUsed := p.send(logger, post.Text, imageData)
	if messageID == 0 {
		observability.Publishes.WithLabelValues("failed").Inc()

		return fmt.Errorf("send failed for item %s", itemID)
	}

	record := &db.PublishedRecord{
		ProcessedItemID:   itemID,
		Platform:          platformTelegram,
		MessageID:         fmt.Sprintf("%d", messageID),
		FinalText:         post.Text,
		HeadlineUsed:      post.HeadlineUsed,
		ContainsAffiliate: post.ContainsAffiliate,
		AffiliateName:     post.AffiliateName,
	}
	if imageUsed {
		record.ImageURL = imageURI
	}

	saved, err := p.repo.SavePublishedRecord(ctx, record)
	if err != nil {
		return fmt.Errorf("save published record: %w", err)
	}

	if !saved {
		// A concurrent worker won the publish race after our check.
		logger.Warn().Msg("published record already exists, duplicate send")
		observability.Publishes.WithLabelValues("skipped").Inc()

		return nil
	}

	if err = p.repo.MarkItemPublished(ctx, itemID); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	p.archive(ctx, item, post)
	observability.Publishes.WithLabelValues("published").Inc()
	logger.Info().Int("message_id", messageID).Bool("affiliate", post.ContainsAffiliate).Msg("item published")

	return nil
}

// chooseAffiliate inspects the trailing window of already-published
// posts. The post being assembled is itself part of the cadence window,
// so only the previous frequency-1 records are loaded; querying a full
// frequency would stretch the cadence to one in frequency+1.
func (p *Publisher) chooseAffiliate(ctx context.Context) (*AffiliateLink, error) {
	window, err := p.repo.RecentPublishedRecords(ctx, p.cfg.AffiliateFrequency-1)
	if err != nil {
		return nil, fmt.Errorf("load recent posts: %w", err)
	}

	if !ShouldInsertAffiliate(window, p.cfg.AffiliateFrequency) {
		return nil, nil //nolint:nilnil // no affiliate this time is a valid outcome
	}

	return PickAffiliate(p.rng, p.cfg.AffiliateLinks), nil
}

// send tries the photo path first and falls back to text-only; both are
// normal outcomes. Returns the message id, zero when both paths failed.
func (p *Publisher) send(logger zerolog.Logger, text string, imageData []byte) (messageID int, imageUsed bool) {
	if len(imageData) > 0 {
		id, err := p.sender.SendPhoto(p.cfg.ChatID, text, imageData)
		if err == nil {
			return id, true
		}

		logger.Warn().Err(err).Msg("photo send failed, falling back to text")
	}

	id, err := p.sender.SendText(p.cfg.ChatID, text)
	if err != nil {
		logger.Error().Err(err).Msg("text send failed")

		return 0, false
	}

	return id, false
}

// resolveImage returns cover image bytes for the item along with the
// data URI they came from, reusing a previously generated image when one
// is cached. A missing image is not fatal.
func (p *Publisher) resolveImage(ctx context.Context, item *db.ProcessedItem) ([]byte, string) {
	headline := item.HeadlineShort
	if headline == "" {
		headline = item.HeadlineLong
	}

	if headline == "" {
		return nil, ""
	}

	fingerprint := pipeline.Fingerprint(imageStageLabel, item.ID)

	uri := p.cachedImage(ctx, fingerprint)
	if uri == "" {
		generated, err := p.generateImage(ctx, headline)
		if err != nil {
			if !errors.Is(err, images.ErrNotConfigured) {
				p.logger.Warn().Err(err).Msg("image generation failed, sending text only")
			}

			return nil, ""
		}

		uri = generated

		if payload, err := json.Marshal(uri); err == nil {
			if err = p.repo.PutStageCache(ctx, fingerprint, payload, imageCacheTTL); err != nil {
				p.logger.Warn().Err(err).Msg("image cache write failed")
			}
		}
	}

	return decodeDataURI(uri), uri
}

func (p *Publisher) cachedImage(ctx context.Context, fingerprint string) string {
	payload, err := p.repo.GetStageCache(ctx, fingerprint)
	if err != nil {
		return ""
	}

	var uri string
	if err = json.Unmarshal(payload, &uri); err != nil {
		return ""
	}

	return uri
}

func (p *Publisher) generateImage(ctx context.Context, headline string) (string, error) {
	var uri string

	err := worker.RunWithTimeout(ctx, p.cfg.StageTimeout, func(ctx context.Context) error {
		generated, err := p.images.Generate(ctx, fmt.Sprintf(imagePromptTpl, headline))
		if err != nil {
			return err
		}

		uri = generated

		return nil
	})

	return uri, err
}

// archive appends the final text and its embedding to the similarity
// index so later deduplication sees this publication. Embedding failure
// skips the append with a warning; the item is already published.
func (p *Publisher) archive(ctx context.Context, item *db.ProcessedItem, post Post) {
	text := item.RewrittenText
	if text == "" {
		text = item.TranslatedText
	}

	embedding, err := p.embedder.GetEmbedding(ctx, text)
	if err != nil {
		p.logger.Warn().Err(err).Str("item_id", item.ID).Msg("embedding failed, skipping archive append")

		return
	}

	entry := &db.ArchiveEntry{
		ProcessedItemID: item.ID,
		Title:           post.HeadlineUsed,
		Text:            text,
		Embedding:       embedding,
		Entities:        ExtractEntities(text),
		Topics:          ExtractTopics(text),
	}

	if err = p.repo.AddArchiveEntry(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Str("item_id", item.ID).Msg("archive append failed")
	}
}

func (p *Publisher) sweepScheduled(ctx context.Context) {
	moved, err := p.repo.SweepDueScheduled(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("scheduled sweep failed")

		return
	}

	if moved > 0 {
		observability.ScheduledReleases.Add(float64(moved))
		p.logger.Info().Int("moved", moved).Msg("scheduled posts released to publish queue")
	}
}

func decodeDataURI(uri string) []byte {
	_, encoded, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}

	return data
}
