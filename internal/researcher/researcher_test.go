package researcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
)

func newTestResearcher(t *testing.T, content string) (*Researcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	cfg := config.Config{
		RouterLLMBaseURL: srv.URL,
		RouterLLMAPIKey:  "test-key",
		RouterLLMModel:   "gpt-4o-mini",
	}
	return New(cfg), srv
}

func TestResearch_ReturnsLLMContent(t *testing.T) {
	r, srv := newTestResearcher(t, "key facts: the sky appears blue due to Rayleigh scattering.")
	defer srv.Close()

	out, err := r.Research(context.Background(), "why is the sky blue?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Rayleigh scattering") {
		t.Errorf("expected LLM content returned verbatim, got %q", out)
	}
}

func TestResearch_IncludesPreContextInPrompt(t *testing.T) {
	var capturedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			capturedBody += m.Content
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := New(config.Config{RouterLLMBaseURL: srv.URL, RouterLLMModel: "m"})
	_, err := r.Research(context.Background(), "what's new?", []domain.RetrievedChunk{
		{Text: "chunk one text", Source: "doc-a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(capturedBody, "chunk one text") {
		t.Errorf("expected pre-context chunk included in prompt, got %q", capturedBody)
	}
}

func TestSynthesize_ReturnsLLMContent(t *testing.T) {
	r, srv := newTestResearcher(t, "Direct answer: yes.\n\nConfidence: HIGH")
	defer srv.Close()

	out, err := r.Synthesize(context.Background(), "is this working?", "some research findings")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Confidence: HIGH") {
		t.Errorf("expected synthesis content returned, got %q", out)
	}
}

func TestCall_UnreachableLLMReturnsError(t *testing.T) {
	r := New(config.Config{RouterLLMBaseURL: "http://127.0.0.1:1", RouterLLMModel: "m"})
	_, err := r.Research(context.Background(), "q", nil)
	if err == nil {
		t.Fatalf("expected error when LLM endpoint is unreachable")
	}
}
