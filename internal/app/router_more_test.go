package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	httpserver "github.com/finquery/dispatcher/internal/adapter/httpserver"
	"github.com/finquery/dispatcher/internal/app"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/usecase"
)

type stubSessionStore struct{}

func (stubSessionStore) Create(context.Context, string, string) (string, error) {
	return "sess-stub", nil
}
func (stubSessionStore) Load(context.Context, string) ([]domain.Message, error) { return nil, nil }
func (stubSessionStore) Append(context.Context, string, string, string, string, string) error {
	return nil
}
func (stubSessionStore) RenderContext([]domain.Message) string { return "" }

type stubRunner struct{}

func (stubRunner) Run(context.Context, string) domain.PipelineState {
	return domain.PipelineState{FinalResponse: "ok"}
}

func newStubServer() *httpserver.Server {
	cfg := config.Config{Port: 8080, RateLimitPerMin: 60}
	gw := usecase.NewGatewayService(stubSessionStore{}, stubRunner{}, 2)
	ready := usecase.NewReadinessService(stubSessionStore{}, nil, nil)
	return httpserver.NewServer(cfg, gw, ready)
}

func TestBuildRouter_Healthz_And_Readyz(t *testing.T) {
	cfg := config.Config{Port: 8080, RateLimitPerMin: 60}
	srv := newStubServer()
	h := app.BuildRouter(cfg, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("/healthz: want 200, got %d", rec.Result().StatusCode)
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec2.Result().StatusCode != http.StatusOK {
		t.Fatalf("/readyz: want 200, got %d", rec2.Result().StatusCode)
	}
}

func TestBuildRouter_ModelsAndRoot(t *testing.T) {
	cfg := config.Config{Port: 8080, RateLimitPerMin: 60}
	srv := newStubServer()
	h := app.BuildRouter(cfg, srv)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("/v1/models: want 200, got %d", rec.Result().StatusCode)
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec2.Result().StatusCode != http.StatusOK {
		t.Fatalf("/: want 200, got %d", rec2.Result().StatusCode)
	}
}

func TestBuildRouter_ChatCompletionsServedUnderRateLimit(t *testing.T) {
	cfg := config.Config{Port: 8080, RateLimitPerMin: 1000}
	srv := newStubServer()
	h := app.BuildRouter(cfg, srv)

	body := `{"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("/v1/chat/completions: want 200, got %d: %s", rec.Result().StatusCode, rec.Body.String())
	}
}
