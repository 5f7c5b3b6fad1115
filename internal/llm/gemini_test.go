package llm

import (
	"testing"

	"google.golang.org/genai"
)

// verdictSchema has the shape of the goal-completion judgement.
func verdictSchema() *Schema {
	return &Schema{
		Name:        "test-verdict",
		Description: "Judgement of whether a student has met a learning goal",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"is_complete": map[string]any{"type": "boolean"},
				"estimated_progress": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"maximum":     100,
					"description": "Estimated progress toward the goal, 0-100",
				},
				"reasoning": map[string]any{"type": "string"},
				"remaining_gaps": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required":             []any{"is_complete", "estimated_progress", "reasoning", "remaining_gaps"},
			"additionalProperties": false,
		},
	}
}

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
		{"", ""},
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, geminiModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema_Verdict(t *testing.T) {
	schema := buildGeminiSchema(verdictSchema().Definition)

	if schema.Type != genai.TypeObject {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	want := map[string]genai.Type{
		"is_complete":        genai.TypeBoolean,
		"estimated_progress": genai.TypeInteger,
		"reasoning":          genai.TypeString,
		"remaining_gaps":     genai.TypeArray,
	}
	if len(schema.Properties) != len(want) {
		t.Fatalf("expected %d properties, got %d", len(want), len(schema.Properties))
	}
	for name, typ := range want {
		if got := schema.Properties[name].Type; got != typ {
			t.Errorf("%s: expected %s, got %s", name, typ, got)
		}
	}
	if schema.Properties["remaining_gaps"].Items.Type != genai.TypeString {
		t.Fatalf("expected STRING gap items, got %s", schema.Properties["remaining_gaps"].Items.Type)
	}
	if schema.Properties["estimated_progress"].Description == "" {
		t.Fatal("expected the progress description to carry over")
	}
	if len(schema.Required) != 4 {
		t.Fatalf("expected 4 required fields, got %d", len(schema.Required))
	}
}

func TestBuildGeminiSchema_UrgencyEnum(t *testing.T) {
	schema := buildGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"urgency": map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
			"score":   map[string]any{"type": "number"},
			"unknown": map[string]any{"type": "null"},
		},
	})

	if got := schema.Properties["urgency"].Enum; len(got) != 3 || got[2] != "high" {
		t.Fatalf("unexpected urgency enum %v", got)
	}
	if schema.Properties["score"].Type != genai.TypeNumber {
		t.Fatalf("expected NUMBER for score, got %s", schema.Properties["score"].Type)
	}
	if schema.Properties["unknown"].Type != genai.TypeString {
		t.Fatalf("expected unmapped types to fall back to STRING, got %s", schema.Properties["unknown"].Type)
	}
}
