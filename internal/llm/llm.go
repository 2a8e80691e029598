// Package llm wraps the OpenAI chat and embedding APIs behind a small
// client interface so pipeline stages can be tested without network calls.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/config"
)

// Client is the LLM collaborator contract consumed by the pipeline
// stages. Either call may fail or time out; callers own retries and
// fallbacks.
type Client interface {
	// Complete runs a chat completion with a system and a user prompt and
	// returns the raw response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)

	// CompleteSmart is Complete on the configured smart model. Falls back
	// to the default model when no smart model is set.
	CompleteSmart(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)

	// GetEmbedding returns the embedding vector for a text.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// New returns the OpenAI-backed client, or a deterministic mock when the
// API key is empty or the literal "mock".
func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == apiKeyMock {
		return &mockClient{}
	}

	return NewOpenAI(cfg, logger)
}

const apiKeyMock = "mock"
