// Package translate provides the machine-translation collaborator used
// by the translation stage. DeepL is the only wired provider; when it is
// not configured the stage falls back to the source text.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const deeplDefaultTimeout = 30 * time.Second

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("translator not configured")

	errDeepLBadStatus = errors.New("deepl bad status")
	errDeepLEmpty     = errors.New("deepl returned no translations")
)

// Translator is the machine-translation contract consumed by the
// translation stage.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// DeepLClient calls the DeepL REST API.
type DeepLClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// DeepLConfig holds configuration for the DeepL client.
type DeepLConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewDeepL creates a DeepL translator client.
func NewDeepL(cfg DeepLConfig) *DeepLClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = deeplDefaultTimeout
	}

	return &DeepLClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate returns the mechanical rendering of text in targetLang.
func (c *DeepLClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", strings.ToUpper(targetLang))

	if sourceLang != "" {
		form.Set("source_lang", strings.ToUpper(sourceLang))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build deepl request: %w", err)
	}

	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return "", fmt.Errorf("%w: %d %s", errDeepLBadStatus, resp.StatusCode, string(body))
	}

	var parsed deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode deepl response: %w", err)
	}

	if len(parsed.Translations) == 0 {
		return "", errDeepLEmpty
	}

	return parsed.Translations[0].Text, nil
}
