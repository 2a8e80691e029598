package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// A malformed response is deterministic for a given prompt, so retrying
// buys nothing: withRetries short-circuits on errMalformedResponse and
// the stage falls back to its default immediately.
var (
	errMalformedResponse = errors.New("malformed stage response")
	errMissingField      = fmt.Errorf("%w: missing required field", errMalformedResponse)
)

// decodeStageJSON parses an LLM response as JSON, tolerating markdown code
// fences, and verifies that every required top-level key is present. A
// violation is a stage failure; unchecked fields are never trusted
// downstream.
func decodeStageJSON(response string, required []string, out any) error {
	raw := stripCodeFences(response)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	for _, key := range required {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("%w: %s", errMissingField, key)
		}
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	return nil
}

func stripCodeFences(response string) string {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	return strings.TrimSpace(raw)
}
