package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAnalysisRun(t *testing.T) {
	client := &fakeLLM{}
	a := newAnalyzer(client, newFakeRepo(), time.Second, zerolog.Nop())

	got, ok := a.Run(context.Background(), "channel", "en", "Bitcoin hits new high")
	if !ok {
		t.Fatal("Run() ok = false, want true")
	}

	if got.Priority != PriorityLow || got.Language != "en" {
		t.Errorf("Run() = %+v", got)
	}

	if len(got.KeyPoints) != 3 {
		t.Errorf("key points = %v, want 3", got.KeyPoints)
	}
}

func TestAnalysisDefaultOnFailure(t *testing.T) {
	client := &fakeLLM{failAnalysis: true}
	a := newAnalyzer(client, newFakeRepo(), time.Second, zerolog.Nop())

	got, ok := a.Run(context.Background(), "channel", "de", "text")
	if ok {
		t.Fatal("Run() ok = true on collaborator failure")
	}

	if got.Priority != PriorityMedium {
		t.Errorf("default priority = %q, want medium", got.Priority)
	}

	if got.Language != "de" {
		t.Errorf("default language = %q, want the item's hint", got.Language)
	}

	if len(got.RiskTags) != 0 {
		t.Errorf("default risk tags = %v, want empty", got.RiskTags)
	}
}

func TestAnalysisMalformedResponseFailsWithoutRetry(t *testing.T) {
	client := &fakeLLM{malformedAnalysis: true}
	a := newAnalyzer(client, newFakeRepo(), time.Second, zerolog.Nop())

	got, ok := a.Run(context.Background(), "channel", "en", "text")
	if ok {
		t.Fatal("Run() ok = true on malformed response")
	}

	if got.Priority != PriorityMedium {
		t.Errorf("default priority = %q, want medium", got.Priority)
	}

	if client.calls() != 1 {
		t.Errorf("collaborator calls = %d, want 1 (no retry for unparseable output)", client.calls())
	}
}

func TestAnalysisCachedValueSkipsCollaborator(t *testing.T) {
	client := &fakeLLM{}
	a := newAnalyzer(client, newFakeRepo(), time.Second, zerolog.Nop())

	first, _ := a.Run(context.Background(), "channel", "en", "same input")
	second, _ := a.Run(context.Background(), "channel", "en", "same input")

	if client.calls() != 1 {
		t.Errorf("collaborator calls = %d, want 1 for identical fingerprint", client.calls())
	}

	if first.Summary != second.Summary {
		t.Errorf("cached result differs: %q vs %q", first.Summary, second.Summary)
	}
}
