// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// RegistryTTL is the fixed heartbeat window for worker registrations (§4.B).
// It is not configurable: the spec names it as a fixed policy value, and
// health-check cadence must stay strictly below it.
const RegistryTTL = 120 * time.Second

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// Session store (§4.A, §6).
	SessionTable       string        `env:"SESSION_TABLE" envDefault:"dispatcher-sessions"`
	SessionTTLHours    int           `env:"SESSION_TTL_HOURS" envDefault:"24"`
	SessionMaxMessages int           `env:"SESSION_MAX_MESSAGES" envDefault:"20"`
	SessionMaxMsgChars int           `env:"SESSION_MAX_MSG_CHARS" envDefault:"1000"`
	RedisURL           string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisDialTimeout   time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`

	// Service registry (§4.B).
	AgentRegistryTable string `env:"AGENT_REGISTRY_TABLE" envDefault:"dispatcher-agent-registry"`

	// Retriever (§4.C).
	QdrantURL       string `env:"QDRANT_URL" envDefault:"http://localhost:6333"`
	QdrantAPIKey    string `env:"QDRANT_API_KEY"`
	QdrantCollecton string `env:"QDRANT_COLLECTION" envDefault:"dispatcher-docs"`
	RAGTopK         int    `env:"RAG_TOP_K" envDefault:"4"`
	EmbeddingsModel string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`

	// A2A client and per-worker fallback endpoints (§4.D, §6).
	A2ATimeout          time.Duration `env:"A2A_TIMEOUT" envDefault:"120s"`
	KdbAgentURL         string        `env:"KDB_AGENT_URL" envDefault:"http://kdb-agent:8081"`
	AmpsAgentURL        string        `env:"AMPS_AGENT_URL" envDefault:"http://amps-agent:8082"`
	PortfolioAgentURL   string        `env:"PORTFOLIO_AGENT_URL" envDefault:"http://portfolio-agent:8083"`
	CDSAgentURL         string        `env:"CDS_AGENT_URL" envDefault:"http://cds-agent:8084"`
	ETFAgentURL         string        `env:"ETF_AGENT_URL" envDefault:"http://etf-agent:8085"`
	RiskPnLAgentURL     string        `env:"RISK_PNL_AGENT_URL" envDefault:"http://risk-pnl-agent:8086"`
	FinOrchestratorURL  string        `env:"FINANCIAL_ORCHESTRATOR_URL" envDefault:"http://financial-orchestrator:8087"`

	// Model router LLM call (§4.F).
	RouterLLMBaseURL string        `env:"ROUTER_LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	RouterLLMAPIKey  string        `env:"ROUTER_LLM_API_KEY"`
	RouterLLMModel   string        `env:"ROUTER_LLM_MODEL" envDefault:"gpt-4o-mini"`
	RouterLLMTimeout time.Duration `env:"ROUTER_LLM_TIMEOUT" envDefault:"10s"`

	// A2A server skeleton self-registration (§4.J).
	AgentID           string `env:"AGENT_ID"`
	AgentSelfEndpoint string `env:"AGENT_SELF_ENDPOINT"`

	// Ambient stack.
	OTLPEndpoint          string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName       string        `env:"OTEL_SERVICE_NAME" envDefault:"finquery-dispatcher"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"150s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	DispatchPoolSize      int           `env:"DISPATCH_POOL_SIZE" envDefault:"8"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// SessionTTL returns the configured session absolute expiry as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// FallbackURLs maps each shipped worker id to its configured fallback
// endpoint, used by the A2A client when the registry cannot resolve the id.
func (c Config) FallbackURLs() map[string]string {
	return map[string]string{
		"kdb-agent":              c.KdbAgentURL,
		"amps-agent":             c.AmpsAgentURL,
		"portfolio-agent":        c.PortfolioAgentURL,
		"cds-agent":              c.CDSAgentURL,
		"etf-agent":              c.ETFAgentURL,
		"risk-pnl-agent":         c.RiskPnLAgentURL,
		"financial-orchestrator": c.FinOrchestratorURL,
	}
}
