package config

import (
	"testing"
	"time"
)

func Test_Load_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load err: %v", err)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected IsDev true by default")
	}
	if cfg.IsProd() {
		t.Fatalf("expected IsProd false by default")
	}
	if cfg.SessionMaxMessages != 20 {
		t.Fatalf("expected default SessionMaxMessages=20, got %d", cfg.SessionMaxMessages)
	}
	if cfg.RAGTopK != 4 {
		t.Fatalf("expected default RAGTopK=4, got %d", cfg.RAGTopK)
	}
	if cfg.A2ATimeout != 120*time.Second {
		t.Fatalf("expected default A2ATimeout=120s, got %v", cfg.A2ATimeout)
	}
	if RegistryTTL != 120*time.Second {
		t.Fatalf("expected RegistryTTL fixed at 120s, got %v", RegistryTTL)
	}
}

func Test_Load_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SESSION_TTL_HOURS", "48")
	t.Setenv("RAG_TOP_K", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load err: %v", err)
	}
	if !cfg.IsProd() {
		t.Fatalf("expected IsProd true")
	}
	if cfg.SessionTTL() != 48*time.Hour {
		t.Fatalf("expected SessionTTL=48h, got %v", cfg.SessionTTL())
	}
	if cfg.RAGTopK != 8 {
		t.Fatalf("expected RAGTopK=8, got %d", cfg.RAGTopK)
	}
}

func Test_FallbackURLs(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load err: %v", err)
	}
	urls := cfg.FallbackURLs()
	for _, id := range []string{"kdb-agent", "amps-agent", "portfolio-agent", "cds-agent", "etf-agent", "risk-pnl-agent", "financial-orchestrator"} {
		if urls[id] == "" {
			t.Fatalf("expected a fallback URL for %q", id)
		}
	}
}
