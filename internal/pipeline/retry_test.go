package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWithRetriesEventualSuccess(t *testing.T) {
	attempts := 0

	err := withRetries(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errCollaborator
		}

		return nil
	})
	if err != nil {
		t.Fatalf("withRetries() error = %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetriesExhausted(t *testing.T) {
	attempts := 0

	err := withRetries(context.Background(), func(context.Context) error {
		attempts++

		return errCollaborator
	})
	if !errors.Is(err, errCollaborator) {
		t.Fatalf("withRetries() error = %v, want wrapped collaborator error", err)
	}

	if attempts != maxStageRetries {
		t.Errorf("attempts = %d, want %d", attempts, maxStageRetries)
	}
}

func TestWithRetriesCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := withRetries(ctx, func(context.Context) error {
		attempts++
		cancel()

		return errCollaborator
	})
	if err == nil {
		t.Fatal("withRetries() error = nil after cancellation")
	}

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry after cancel)", attempts)
	}
}

func TestWithRetriesMalformedResponseNotRetried(t *testing.T) {
	attempts := 0

	start := time.Now()

	err := withRetries(context.Background(), func(context.Context) error {
		attempts++

		return fmt.Errorf("analysis: %w", errMissingField)
	})
	if !errors.Is(err, errMalformedResponse) {
		t.Fatalf("withRetries() error = %v, want wrapped malformed-response error", err)
	}

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (malformed output is deterministic)", attempts)
	}

	if elapsed := time.Since(start); elapsed > initialRetryDelay {
		t.Errorf("malformed response waited %v before failing", elapsed)
	}
}

func TestWithRetriesFirstTry(t *testing.T) {
	start := time.Now()

	err := withRetries(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("withRetries() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed > initialRetryDelay {
		t.Errorf("first-try success waited %v", elapsed)
	}
}
