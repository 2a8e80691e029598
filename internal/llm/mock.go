package llm

import (
	"context"
	"hash/fnv"
	"math"
)

const mockEmbeddingDimensions = 1536

// mockClient is a deterministic stand-in for local runs without an API
// key. Completions return a fixed JSON superset that satisfies every
// stage's schema; embeddings are hash-seeded unit vectors, so identical
// texts always embed identically.
type mockClient struct{}

func (c *mockClient) Complete(_ context.Context, _, _ string, _ float32) (string, error) {
	return `{
		"summary_2": "Mock summary sentence one. Mock summary sentence two.",
		"key_points": ["first", "second", "third"],
		"risk_tags": [],
		"priority": "medium",
		"language": "en",
		"human_translation": "Mock translated text long enough to pass downstream quality checks without external services.",
		"summary": "Mock short summary.",
		"glossary": [],
		"headline_short": "Mock headline",
		"headline_long": "Mock headline, extended edition",
		"body": "Mock rewritten article body with enough characters to clear the minimum length gate applied before publishing decisions are made downstream.",
		"author_note": "",
		"tags": ["mock", "test"]
	}`, nil
}

func (c *mockClient) CompleteSmart(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	return c.Complete(ctx, systemPrompt, userPrompt, temperature)
}

func (c *mockClient) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	emb := make([]float32, mockEmbeddingDimensions)

	var norm float64

	for i := range emb {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>33))/float64(1<<30) - 1
		emb[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range emb {
			emb[i] = float32(float64(emb[i]) / norm)
		}
	}

	return emb, nil
}
