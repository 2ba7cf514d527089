// Package pipeline implements the Pipeline Graph (spec §4.G): a linear
// state machine — intake, retrieve, dispatch, format — that each chat
// request runs exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/merger"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/finquery/dispatcher/internal/router"
)

// Researcher performs the general branch's local reasoning passes: a
// research pass grounded in the question and any pre-retrieved context,
// followed by a synthesis pass. Both are injected so the pipeline stays
// independent of any specific LLM client.
type Researcher interface {
	Research(ctx context.Context, query string, preContext []domain.RetrievedChunk) (string, error)
	Synthesize(ctx context.Context, query, research string) (string, error)
}

// Pipeline is the compiled, process-wide, reused-across-invocations graph.
type Pipeline struct {
	retriever  domain.Retriever
	router     domain.ModelRouter
	a2aClient  domain.A2AClient
	researcher Researcher
	ragTopK    int
	a2aTimeout time.Duration
}

// New constructs a Pipeline. Construction is cheap; the returned value is
// safe for concurrent use and is intended to be built once per process.
func New(retriever domain.Retriever, modelRouter domain.ModelRouter, a2aClient domain.A2AClient, researcher Researcher, ragTopK int, a2aTimeout time.Duration) *Pipeline {
	return &Pipeline{
		retriever:  retriever,
		router:     modelRouter,
		a2aClient:  a2aClient,
		researcher: researcher,
		ragTopK:    ragTopK,
		a2aTimeout: a2aTimeout,
	}
}

// Run executes intake -> retrieve -> dispatch -> format for one query.
func (p *Pipeline) Run(ctx context.Context, query string) domain.PipelineState {
	state := domain.PipelineState{RawQuery: query}

	p.intake(&state)
	p.retrieve(ctx, &state)
	p.dispatch(ctx, &state)
	p.format(&state)

	return state
}

func (p *Pipeline) intake(state *domain.PipelineState) {
	trimmed := strings.TrimSpace(state.RawQuery)
	if trimmed == "" {
		state.Err = domain.ErrEmptyQuery
		return
	}
	state.ValidatedQuery = trimmed
}

func (p *Pipeline) retrieve(ctx context.Context, state *domain.PipelineState) {
	if state.Err != nil {
		return
	}
	chunks, err := p.retriever.Retrieve(ctx, state.ValidatedQuery, p.ragTopK)
	if err != nil {
		slog.Warn("pipeline retrieve failed, continuing with no pre-context", slog.Any("error", err))
		state.PreContext = nil
		return
	}
	state.PreContext = chunks
}

func (p *Pipeline) dispatch(ctx context.Context, state *domain.PipelineState) {
	if state.Err != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline dispatch panicked", slog.Any("recover", r))
			state.Err = domain.ErrInternal
		}
	}()

	if router.IsFinancialQuery(state.ValidatedQuery) {
		p.dispatchFinancial(ctx, state)
		return
	}
	observability.RecordRouterDecision("keyword_gate_general")
	p.dispatchGeneral(ctx, state)
}

func (p *Pipeline) dispatchGeneral(ctx context.Context, state *domain.PipelineState) {
	research, err := p.researcher.Research(ctx, state.ValidatedQuery, state.PreContext)
	if err != nil {
		slog.Warn("pipeline general research failed", slog.Any("error", err))
		state.Err = domain.ErrInternal
		return
	}
	state.Research = research

	synthesis, err := p.researcher.Synthesize(ctx, state.ValidatedQuery, research)
	if err != nil {
		slog.Warn("pipeline general synthesis failed", slog.Any("error", err))
		state.Err = domain.ErrInternal
		return
	}
	state.Synthesis = synthesis
}

func (p *Pipeline) dispatchFinancial(ctx context.Context, state *domain.PipelineState) {
	decision := p.router.Route(ctx, state.ValidatedQuery)
	kind := "model_chosen"
	if decision.FallbackUsed {
		kind = "fallback"
	}
	observability.RecordRouterDecision(kind)

	enriched := state.ValidatedQuery
	if block := preContextBlock(state.PreContext); block != "" {
		enriched = state.ValidatedQuery + "\n\n" + block
	}

	var results map[string]string
	switch decision.Strategy {
	case domain.StrategySequential:
		results = p.callSequential(ctx, decision.Agents, enriched)
	default:
		results = p.a2aClient.CallAll(ctx, decision.Agents, enriched, p.a2aTimeout)
	}

	if len(decision.Agents) == 1 {
		text := results[decision.Agents[0]]
		state.Research = text
		state.Synthesis = text
		return
	}

	merged := merger.Merge(state.ValidatedQuery, decision.Agents, results)
	state.Research = merged
	state.Synthesis = merged
}

// callSequential invokes the fan-out once per id, in list order, each under
// its own independent deadline — used when the cross-cutting risk worker
// must chain onto data gathered by the workers before it in the list.
func (p *Pipeline) callSequential(ctx context.Context, ids []string, query string) map[string]string {
	results := make(map[string]string, len(ids))
	for _, id := range ids {
		single := p.a2aClient.CallAll(ctx, []string{id}, query, p.a2aTimeout)
		results[id] = single[id]
	}
	return results
}

func preContextBlock(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Pre-retrieved context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Text)
	}
	return b.String()
}

func (p *Pipeline) format(state *domain.PipelineState) {
	if state.Err != nil {
		state.FinalResponse = errorMessage(state.Err)
		return
	}

	response := state.Synthesis
	if footer := sourcesFooter(state.PreContext); footer != "" {
		response += footer
	}
	state.FinalResponse = response
}

// errorMessage renders a PipelineState's terminal error as the response
// text. The empty-query case has a documented literal (spec §8 scenario 1,
// mirroring original_source/repo-api/src/graph/nodes.go's intake_node);
// every other sentinel falls back to its Go error text.
func errorMessage(err error) string {
	if errors.Is(err, domain.ErrEmptyQuery) {
		return "Error: Empty query received."
	}
	return fmt.Sprintf("Error: %s", err)
}

func sourcesFooter(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(chunks))
	var sources []string
	for _, c := range chunks {
		if c.Source == "" || seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		sources = append(sources, c.Source)
	}
	if len(sources) == 0 {
		return ""
	}
	return "\n\nSources: " + strings.Join(sources, ", ")
}
