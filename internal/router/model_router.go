package router

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"gopkg.in/yaml.v3"
)

// fallbackAgent is used whenever the LLM call fails or the LLM's response
// cannot be parsed into known agent ids. An empty or failing registry does
// not select it; the prompt then lists the static description table instead.
const fallbackAgent = "kdb-agent"

//go:embed descriptions.yaml
var staticDescriptionsYAML []byte

const routerSystemPrompt = `You are a query router for a financial data platform.
Your ONLY job is to select which specialist agents should handle a query.
Output valid JSON only — no explanation, no markdown, no other text.`

const routerPromptTemplate = `Available agents:
%s

User query: "%s"

Rules:
- Select ONLY agents whose data is relevant to the query
- Use "parallel" when agents answer independent sub-questions simultaneously
- Use "sequential" ONLY for risk-pnl-agent (it needs portfolio + market data first)
- Default to kdb-agent for general bond/trader/desk questions
- For VaR, DV01, CS01, P&L attribution in real-time -> include amps-agent
- For live/current/today/real-time data -> include amps-agent
- For historical analytics, rankings, multi-month trends -> include kdb-agent

Respond with JSON only:
{"agents": ["agent-id-1"], "strategy": "parallel", "reasoning": "one sentence why"}`

// ModelRouter implements domain.ModelRouter using a single structured chat
// completion call against an OpenAI-compatible endpoint, with the registry's
// live worker snapshot enriching (but never replacing) a curated static
// description table.
type ModelRouter struct {
	registry    domain.ServiceRegistry
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	descriptions map[string]string
	knownAgents  map[string]bool
}

// New constructs a ModelRouter, loading the embedded static agent
// description table once at startup.
func New(registry domain.ServiceRegistry, cfg config.Config) *ModelRouter {
	var descriptions map[string]string
	if err := yaml.Unmarshal(staticDescriptionsYAML, &descriptions); err != nil {
		slog.Error("router: failed to parse embedded agent descriptions", slog.Any("error", err))
		descriptions = map[string]string{}
	}
	known := make(map[string]bool, len(descriptions))
	for id := range descriptions {
		known[id] = true
	}
	return &ModelRouter{
		registry:     registry,
		httpClient:   &http.Client{Timeout: cfg.RouterLLMTimeout},
		baseURL:      cfg.RouterLLMBaseURL,
		apiKey:       cfg.RouterLLMAPIKey,
		model:        cfg.RouterLLMModel,
		descriptions: descriptions,
		knownAgents:  known,
	}
}

// Route selects which workers should handle query, falling back to a single
// designated default agent on any LLM or parse failure. A registry failure
// only switches the prompt's agent list to the static description table.
func (r *ModelRouter) Route(ctx context.Context, query string) domain.RouterDecision {
	agentList := r.buildAgentList(ctx)
	prompt := fmt.Sprintf(routerPromptTemplate, agentList, query)

	raw, err := r.callLLM(ctx, prompt)
	if err != nil {
		slog.Warn("router: falling back after LLM call failure", slog.Any("error", err))
		return r.fallbackDecision()
	}

	raw = stripCodeFence(raw)
	var decoded struct {
		Agents    []string `json:"agents"`
		Strategy  string   `json:"strategy"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		slog.Warn("router: falling back after unparsable LLM response", slog.Any("error", err))
		return r.fallbackDecision()
	}

	agents := r.filterKnown(decoded.Agents)
	if len(agents) == 0 {
		agents = []string{fallbackAgent}
	}
	strategy := domain.StrategyParallel
	if decoded.Strategy == string(domain.StrategySequential) {
		strategy = domain.StrategySequential
	}

	return domain.RouterDecision{
		Agents:       agents,
		Strategy:     strategy,
		Reasoning:    decoded.Reasoning,
		FallbackUsed: false,
	}
}

func (r *ModelRouter) fallbackDecision() domain.RouterDecision {
	return domain.RouterDecision{
		Agents:       []string{fallbackAgent},
		Strategy:     domain.StrategyParallel,
		Reasoning:    "fallback",
		FallbackUsed: true,
	}
}

func (r *ModelRouter) filterKnown(agents []string) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if r.knownAgents[a] {
			out = append(out, a)
		}
	}
	return out
}

// buildAgentList renders the available-agents block, enriching the static
// descriptions with registry capabilities when the registry has live entries.
func (r *ModelRouter) buildAgentList(ctx context.Context) string {
	active, err := r.registry.ListAll(ctx)
	if err != nil || len(active) == 0 {
		return r.staticAgentList()
	}

	lines := make([]string, 0, len(active))
	for _, w := range active {
		desc, ok := r.descriptions[w.ID]
		if !ok {
			continue
		}
		if len(w.Capabilities) > 0 {
			desc = fmt.Sprintf("%s (capabilities: %s)", desc, strings.Join(w.Capabilities, ", "))
		}
		lines = append(lines, fmt.Sprintf("- %q: %s", w.ID, desc))
	}
	if len(lines) == 0 {
		return r.staticAgentList()
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func (r *ModelRouter) staticAgentList() string {
	ids := make([]string, 0, len(r.descriptions))
	for id := range r.descriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("- %q: %s", id, r.descriptions[id]))
	}
	return strings.Join(lines, "\n")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (r *ModelRouter) callLLM(ctx context.Context, userPrompt string) (string, error) {
	body := map[string]any{
		"model":       r.model,
		"temperature": 0,
		"max_tokens":  256,
		"messages": []map[string]string{
			{"role": "system", "content": routerSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=router.callLLM encode: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("router llm status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("router llm status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("op=router.callLLM: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=router.callLLM: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

var _ domain.ModelRouter = (*ModelRouter)(nil)
