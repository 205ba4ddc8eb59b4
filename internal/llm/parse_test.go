package llm

import (
	"PhonePilot/internal/models"
	"testing"
)

func TestParseDecision(t *testing.T) {
	decision, err := parseDecision(`{"action": "tap", "params": {"x": 100, "y": 200}, "done": false, "reasoning": "open the menu"}`)
	if err != nil {
		t.Fatalf("parseDecision() error = %v", err)
	}
	if decision.Action != models.ActionTap {
		t.Errorf("Expected tap, got %s", decision.Action)
	}
	if decision.Params["x"] != float64(100) {
		t.Errorf("Expected x=100, got %v", decision.Params["x"])
	}
	if decision.Done {
		t.Error("Done should be false")
	}
	if decision.Reasoning != "open the menu" {
		t.Errorf("Unexpected reasoning %q", decision.Reasoning)
	}
}

func TestParseDecisionStripsFences(t *testing.T) {
	inputs := []string{
		"```json\n{\"action\": \"wait\", \"params\": {\"seconds\": 2}}\n```",
		"```\n{\"action\": \"wait\", \"params\": {\"seconds\": 2}}\n```",
		"Here is my decision:\n```json\n{\"action\": \"wait\", \"params\": {\"seconds\": 2}}\n```",
	}

	for _, input := range inputs {
		decision, err := parseDecision(input)
		if err != nil {
			t.Errorf("parseDecision(%q) error = %v", input, err)
			continue
		}
		if decision.Action != models.ActionWait {
			t.Errorf("Expected wait, got %s", decision.Action)
		}
	}
}

func TestParseDecisionDoneActionForcesFlag(t *testing.T) {
	// The done flag is implied by the action even when the model forgets it.
	decision, err := parseDecision(`{"action": "done", "done": false}`)
	if err != nil {
		t.Fatalf("parseDecision() error = %v", err)
	}
	if !decision.Done {
		t.Error("A done action must imply done=true")
	}
}

func TestParseDecisionErrorActionNeverDone(t *testing.T) {
	decision, err := parseDecision(`{"action": "error", "done": true, "params": {"message": "cannot log in"}}`)
	if err != nil {
		t.Fatalf("parseDecision() error = %v", err)
	}
	if decision.Done {
		t.Error("An error action must never count as completion")
	}
}

func TestParseDecisionRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \n "},
		{"not JSON", "I think we should tap the button"},
		{"missing action", `{"params": {}, "done": false}`},
		{"unknown action", `{"action": "teleport"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseDecision(tc.input); err == nil {
				t.Errorf("Expected an error for %q", tc.input)
			}
		})
	}
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gemini-2.0-flash", "gemini"},
		{"gpt-4o", "openai"},
		{"chatgpt-4o-latest", "openai"},
		{"o3-mini", "openai"},
		{"llava:13b", "ollama"},
		{"qwen2.5vl", "ollama"},
	}

	for _, tt := range tests {
		if got := inferProvider(tt.model); got != tt.want {
			t.Errorf("inferProvider(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}
