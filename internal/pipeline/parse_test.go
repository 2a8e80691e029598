package pipeline

import (
	"errors"
	"testing"
)

func TestDecodeStageJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		required []string
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"summary_2": "ok", "priority": "low"}`,
			required: []string{"summary_2", "priority"},
		},
		{
			name:     "fenced json",
			response: "```json\n{\"summary_2\": \"ok\"}\n```",
			required: []string{"summary_2"},
		},
		{
			name:     "bare fence",
			response: "```\n{\"summary_2\": \"ok\"}\n```",
			required: []string{"summary_2"},
		},
		{
			name:     "missing required field",
			response: `{"summary_2": "ok"}`,
			required: []string{"summary_2", "priority"},
			wantErr:  true,
		},
		{
			name:     "not json",
			response: "Вот краткое резюме текста.",
			required: []string{"summary_2"},
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			required: []string{"summary_2"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Summary  string `json:"summary_2"`
				Priority string `json:"priority"`
			}

			err := decodeStageJSON(tt.response, tt.required, &out)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeStageJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeStageJSONMissingFieldError(t *testing.T) {
	var out map[string]any

	err := decodeStageJSON(`{"a": 1}`, []string{"b"}, &out)
	if !errors.Is(err, errMissingField) {
		t.Errorf("decodeStageJSON() error = %v, want errMissingField", err)
	}
}

// Every decode failure carries the malformed-response sentinel so the
// retry helper knows another attempt is pointless.
func TestDecodeStageJSONFailuresAreMalformed(t *testing.T) {
	var out map[string]any

	for _, response := range []string{"not json at all", `{"a": 1}`, ""} {
		if err := decodeStageJSON(response, []string{"b"}, &out); !errors.Is(err, errMalformedResponse) {
			t.Errorf("decodeStageJSON(%q) error = %v, want wrapped errMalformedResponse", response, err)
		}
	}
}
