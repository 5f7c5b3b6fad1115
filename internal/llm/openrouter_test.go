package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenRouterProvider(t *testing.T) {
	t.Run("model passes through", func(t *testing.T) {
		p, err := NewOpenRouterProvider(OpenRouterConfig{
			APIKey: "sk-or-test",
			Model:  "anthropic/claude-3-haiku",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ModelID() != "anthropic/claude-3-haiku" {
			t.Errorf("model = %q, want %q", p.ModelID(), "anthropic/claude-3-haiku")
		}
	})

	t.Run("empty API key", func(t *testing.T) {
		_, err := NewOpenRouterProvider(OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"})
		if err == nil {
			t.Fatal("expected error for empty API key")
		}
	})
}

// openRouterServer answers chat completions with content and captures the
// decoded request body.
func openRouterServer(t *testing.T, content string, got *map[string]any) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "gen-1",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "google/gemini-2.0-flash-exp",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/api/v1"
}

func TestOpenRouterProvider_StructuredVerdict(t *testing.T) {
	var body map[string]any
	base := openRouterServer(t,
		`{"is_complete":false,"estimated_progress":64,"reasoning":"Mole ratios still shaky.","remaining_gaps":["limiting reagents"]}`,
		&body)

	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or-test", Model: "google/gemini-2.0-flash-exp", BaseURL: base})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := p.Generate(context.Background(), Request{
		System:    "You evaluate whether a student has completed a learning goal.",
		Messages:  []Message{{Role: RoleUser, Content: "Goal: Ace stoichiometry"}},
		Schema:    verdictSchema(),
		MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", resp.Usage.TotalTokens)
	}

	var v struct {
		Progress int `json:"estimated_progress"`
	}
	if err := json.Unmarshal(resp.Content, &v); err != nil || v.Progress != 64 {
		t.Fatalf("unexpected verdict %s (%v)", resp.Content, err)
	}

	format, _ := body["response_format"].(map[string]any)
	js, _ := format["json_schema"].(map[string]any)
	if js["name"] != "test-verdict" {
		t.Fatalf("expected the verdict schema to be sent, got %v", body["response_format"])
	}
}

func TestOpenRouterProvider_VerdictOutOfRange(t *testing.T) {
	var body map[string]any
	base := openRouterServer(t,
		`{"is_complete":true,"estimated_progress":140,"reasoning":"Done.","remaining_gaps":[]}`,
		&body)

	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or-test", Model: "google/gemini-2.0-flash-exp", BaseURL: base})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = p.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Goal: Ace stoichiometry"}},
		Schema:   verdictSchema(),
	})
	var invalid *ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse, got: %T (%v)", err, err)
	}
}
