// Package images provides the cover-image collaborator. A missing or
// failing image service is never fatal to publishing; the publisher
// falls back to a text-only send.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const stabilityDefaultTimeout = 60 * time.Second

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("image service not configured")

var errStabilityBadStatus = errors.New("stability bad status")

// Generator is the image collaborator contract.
type Generator interface {
	// Generate returns a reference (URL or data URI) to a generated
	// image, or an error; callers treat any error as "no image".
	Generate(ctx context.Context, prompt string) (string, error)
}

// StabilityClient calls the Stability image generation REST API.
type StabilityClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// StabilityConfig holds configuration for the Stability client.
type StabilityConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewStability creates a Stability image client.
func NewStability(cfg StabilityConfig) *StabilityClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = stabilityDefaultTimeout
	}

	return &StabilityClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type stabilityResponse struct {
	Image string `json:"image"`
}

// Generate requests one image for the prompt and returns it as a data URI.
func (c *StabilityClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"prompt":        prompt,
		"output_format": "jpeg",
		"aspect_ratio":  "16:9",
	})
	if err != nil {
		return "", fmt.Errorf("encode stability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("build stability request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stability request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return "", fmt.Errorf("%w: %d %s", errStabilityBadStatus, resp.StatusCode, string(body))
	}

	var parsed stabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode stability response: %w", err)
	}

	if parsed.Image == "" {
		return "", fmt.Errorf("stability returned empty image")
	}

	return "data:image/jpeg;base64," + parsed.Image, nil
}
