package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finquery/dispatcher/internal/domain"
)

type fakeRegistry struct {
	endpoints map[string]string
}

func (f fakeRegistry) Register(context.Context, string, string, []string, []string) error { return nil }
func (f fakeRegistry) Deregister(context.Context, string) error                           { return nil }
func (f fakeRegistry) Discover(context.Context, string) (domain.WorkerRegistration, bool, error) {
	return domain.WorkerRegistration{}, false, nil
}
func (f fakeRegistry) ListAll(context.Context) ([]domain.WorkerRegistration, error) { return nil, nil }
func (f fakeRegistry) Resolve(_ context.Context, id, fallback string) string {
	if ep, ok := f.endpoints[id]; ok {
		return ep
	}
	return fallback
}

func TestCall_CompletedReturnsFirstArtifactText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var task domain.A2ATask
		_ = json.NewDecoder(r.Body).Decode(&task)
		result := domain.A2AResult{
			ID:     task.ID,
			Status: domain.A2AStatusCompleted,
			Artifacts: []domain.A2AArtifact{
				{Parts: []domain.MessagePart{{Text: "HY exposure is $12M."}}},
			},
		}
		_ = json.NewEncoder(w).Encode(result)
	}))
	defer srv.Close()

	c := New(fakeRegistry{}, nil)
	got := c.Call(context.Background(), srv.URL, "what is HY exposure?", 5*time.Second, "")
	if got != "HY exposure is $12M." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCall_FailedStatusFormatsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := domain.A2AResult{Status: domain.A2AStatusFailed, Error: "kdb unreachable"}
		_ = json.NewEncoder(w).Encode(result)
	}))
	defer srv.Close()

	c := New(fakeRegistry{}, nil)
	got := c.Call(context.Background(), srv.URL, "q", 5*time.Second, "")
	want := "Agent at " + srv.URL + " returned error: kdb unreachable"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCall_TimeoutFormatsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(fakeRegistry{}, nil)
	got := c.Call(context.Background(), srv.URL, "q", 50*time.Millisecond, "")
	if !strings.Contains(got, "timed out after") {
		t.Errorf("expected timeout message, got %q", got)
	}
}

func TestCall_UnreachableFormatsError(t *testing.T) {
	c := New(fakeRegistry{}, nil)
	got := c.Call(context.Background(), "http://127.0.0.1:1", "q", 2*time.Second, "")
	if !strings.Contains(got, "unreachable") {
		t.Errorf("expected unreachable message, got %q", got)
	}
}

func TestCall_NoArtifactsReturnsNoOutputMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.A2AResult{Status: domain.A2AStatusCompleted})
	}))
	defer srv.Close()

	c := New(fakeRegistry{}, nil)
	got := c.Call(context.Background(), srv.URL, "q", 5*time.Second, "")
	if got != "Agent returned no output." {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestCallAll_PartialSuccessDoesNotBlockOnSlowWorker(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.A2AResult{
			Status:    domain.A2AStatusCompleted,
			Artifacts: []domain.A2AArtifact{{Parts: []domain.MessagePart{{Text: "fast ok"}}}},
		})
	}))
	defer fast.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slow.Close()

	registry := fakeRegistry{endpoints: map[string]string{"fast-agent": fast.URL, "slow-agent": slow.URL}}
	c := New(registry, nil)

	start := time.Now()
	results := c.CallAll(context.Background(), []string{"fast-agent", "slow-agent"}, "q", 100*time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 400*time.Millisecond {
		t.Errorf("expected CallAll to bound wait by shared timeout, took %v", elapsed)
	}
	if results["fast-agent"] != "fast ok" {
		t.Errorf("expected fast agent result, got %q", results["fast-agent"])
	}
	if !strings.Contains(results["slow-agent"], "timed out after") {
		t.Errorf("expected slow agent to report timeout, got %q", results["slow-agent"])
	}
}

func TestCallAll_ResolvesThroughRegistryThenFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.A2AResult{
			Status:    domain.A2AStatusCompleted,
			Artifacts: []domain.A2AArtifact{{Parts: []domain.MessagePart{{Text: "ok"}}}},
		})
	}))
	defer srv.Close()

	registry := fakeRegistry{endpoints: map[string]string{}}
	c := New(registry, map[string]string{"kdb-agent": srv.URL})

	results := c.CallAll(context.Background(), []string{"kdb-agent"}, "q", 2*time.Second)
	if results["kdb-agent"] != "ok" {
		t.Errorf("expected fallback endpoint to be used, got %q", results["kdb-agent"])
	}
}
