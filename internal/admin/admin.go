// Package admin is the review surface for held items: listing, approval,
// rejection and deferred scheduling. Approval re-enqueues the item to the
// publisher directly, bypassing re-analysis.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
	"github.com/lueurxax/crypto-autopost/internal/publisher"
)

// ErrAlreadyFinal is returned when an item is past the point where a
// review decision can change it.
var ErrAlreadyFinal = errors.New("item already in a final state")

type Repository interface {
	GetProcessedItem(ctx context.Context, id string) (*db.ProcessedItem, error)
	ListHeldItems(ctx context.Context, limit int) ([]db.ProcessedItem, error)
	ApproveItem(ctx context.Context, id string) (bool, error)
	RejectItem(ctx context.Context, id string) (bool, error)
	Enqueue(ctx context.Context, queue, itemID string) error
	SchedulePost(ctx context.Context, processedItemID string, publishAt time.Time) error
	UpdatePublishedMetrics(ctx context.Context, processedItemID string, likes, shares, comments, views int64) error
	UpdateEngagementScore(ctx context.Context, processedItemID string, score float32) error
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func New(repo Repository, logger *zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

// Item returns one processed item with its hold reasons, or nil when it
// does not exist.
func (s *Service) Item(ctx context.Context, id string) (*db.ProcessedItem, error) {
	return s.repo.GetProcessedItem(ctx, id)
}

// HeldItems lists items waiting for review, oldest first.
func (s *Service) HeldItems(ctx context.Context, limit int) ([]db.ProcessedItem, error) {
	return s.repo.ListHeldItems(ctx, limit)
}

// Approve clears the hold and hands the item straight to the publisher.
// Approving an already-approved item is a no-op re-enqueue; the
// publisher's idempotency check absorbs duplicates.
func (s *Service) Approve(ctx context.Context, id string) error {
	approved, err := s.repo.ApproveItem(ctx, id)
	if err != nil {
		return fmt.Errorf("approve item: %w", err)
	}

	if !approved {
		return ErrAlreadyFinal
	}

	if err = s.repo.Enqueue(ctx, db.QueuePublish, id); err != nil {
		return fmt.Errorf("enqueue approved item: %w", err)
	}

	s.logger.Info().Str("item_id", id).Msg("item approved")

	return nil
}

// Reject marks the item rejected; it will never publish.
func (s *Service) Reject(ctx context.Context, id string) error {
	rejected, err := s.repo.RejectItem(ctx, id)
	if err != nil {
		return fmt.Errorf("reject item: %w", err)
	}

	if !rejected {
		return ErrAlreadyFinal
	}

	s.logger.Info().Str("item_id", id).Msg("item rejected")

	return nil
}

// Schedule approves the item and defers its send to a future time via
// the delayed queue.
func (s *Service) Schedule(ctx context.Context, id string, publishAt time.Time) error {
	approved, err := s.repo.ApproveItem(ctx, id)
	if err != nil {
		return fmt.Errorf("approve item: %w", err)
	}

	if !approved {
		return ErrAlreadyFinal
	}

	if err = s.repo.SchedulePost(ctx, id, publishAt); err != nil {
		return fmt.Errorf("schedule item: %w", err)
	}

	s.logger.Info().Str("item_id", id).Time("publish_at", publishAt).Msg("item scheduled")

	return nil
}

// RecordEngagement stores refreshed interaction counters for a published
// item and recomputes the engagement score on its archive entry.
func (s *Service) RecordEngagement(ctx context.Context, id string, likes, shares, comments, views int64) error {
	if err := s.repo.UpdatePublishedMetrics(ctx, id, likes, shares, comments, views); err != nil {
		return fmt.Errorf("update published metrics: %w", err)
	}

	score := publisher.EngagementScore(views, likes, shares, comments)
	if err := s.repo.UpdateEngagementScore(ctx, id, score); err != nil {
		return fmt.Errorf("update engagement score: %w", err)
	}

	s.logger.Info().Str("item_id", id).Float32("score", score).Msg("engagement recorded")

	return nil
}
