package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRewritePlainTextResponse(t *testing.T) {
	repo := newFakeRepo()
	client := &fakeLLM{rewritePlain: "Просто текст без JSON-структуры, но вполне пригодный как тело статьи."}
	logger := zerolog.Nop()

	r := newRewriter(client, repo, 0.7, time.Second, logger)

	got := r.Run(context.Background(), "перевод", "пересказ", 0.1)
	if got.Body != "Просто текст без JSON-структуры, но вполне пригодный как тело статьи." {
		t.Errorf("Body = %q, want the raw response", got.Body)
	}

	if !got.Degraded() {
		t.Error("body-only output must read as degraded")
	}

	// No caching of body-only output: a second run calls the
	// collaborator again.
	_ = r.Run(context.Background(), "перевод", "пересказ", 0.1)

	if client.calls() != 2 {
		t.Errorf("collaborator calls = %d, want 2", client.calls())
	}
}

func TestRewriteStructuredResponseCached(t *testing.T) {
	repo := newFakeRepo()
	client := &fakeLLM{rewriteBody: "Полноценный переписанный текст."}
	logger := zerolog.Nop()

	r := newRewriter(client, repo, 0.7, time.Second, logger)

	first := r.Run(context.Background(), "перевод", "пересказ", 0.2)
	second := r.Run(context.Background(), "перевод", "пересказ", 0.2)

	if first.HeadlineShort == "" || second.HeadlineShort != first.HeadlineShort {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}

	if client.calls() != 1 {
		t.Errorf("collaborator calls = %d, want 1", client.calls())
	}
}
