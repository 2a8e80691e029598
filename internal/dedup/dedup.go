// Package dedup detects near-duplicate content against the archive of
// previously published items.
package dedup

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

const (
	// candidateThreshold is the low admission bar for nearest-neighbor
	// candidates; it bounds comparison cost, not the duplicate verdict.
	candidateThreshold = 0.3

	// maxCandidates caps the ranked similar-item list kept for review.
	maxCandidates = 10
)

type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Repository interface {
	FindSimilarEntries(ctx context.Context, embedding []float32, minSimilarity float32, limit int) ([]db.SimilarEntry, error)
}

// Candidate is one ranked archive match, kept for audit and review display.
type Candidate struct {
	ItemID      string  `json:"item_id"`
	Title       string  `json:"title"`
	Similarity  float32 `json:"similarity"`
	PublishedAt string  `json:"published_at"`
}

// Result is the deduplication verdict for a candidate text.
type Result struct {
	SimilarityScore float32     `json:"similarity_score"`
	SimilarItemIDs  []string    `json:"similar_item_ids"`
	Candidates      []Candidate `json:"candidates"`
	IsDuplicate     bool        `json:"is_duplicate"`
}

// Checker computes similarity verdicts against the archive.
type Checker struct {
	embedder  Embedder
	database  Repository
	threshold float32
	logger    *zerolog.Logger
}

func NewChecker(embedder Embedder, database Repository, threshold float32, logger *zerolog.Logger) *Checker {
	return &Checker{
		embedder:  embedder,
		database:  database,
		threshold: threshold,
		logger:    logger,
	}
}

// Check embeds the text and ranks archive matches. Any collaborator
// failure degrades to the conservative "not a duplicate" verdict: a
// false negative is safer than blocking all content during an outage.
func (c *Checker) Check(ctx context.Context, text string) Result {
	embedding, err := c.embedder.GetEmbedding(ctx, text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("embedding failed, assuming not a duplicate")

		return Result{}
	}

	return c.CheckEmbedding(ctx, embedding)
}

// CheckEmbedding ranks archive matches for an already-computed embedding.
func (c *Checker) CheckEmbedding(ctx context.Context, embedding []float32) Result {
	entries, err := c.database.FindSimilarEntries(ctx, embedding, candidateThreshold, maxCandidates)
	if err != nil {
		c.logger.Warn().Err(err).Msg("similarity query failed, assuming not a duplicate")

		return Result{}
	}

	result := Result{}

	for _, entry := range entries {
		if entry.Similarity > result.SimilarityScore {
			result.SimilarityScore = entry.Similarity
		}

		result.SimilarItemIDs = append(result.SimilarItemIDs, entry.ProcessedItemID)
		result.Candidates = append(result.Candidates, Candidate{
			ItemID:      entry.ProcessedItemID,
			Title:       entry.Title,
			Similarity:  entry.Similarity,
			PublishedAt: entry.PublishedAt.Format("2006-01-02"),
		})
	}

	result.IsDuplicate = result.SimilarityScore > c.threshold

	return result
}

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
