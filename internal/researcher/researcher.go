// Package researcher implements the general-query branch's two reasoning
// passes (spec §4.G.1): a researcher pass that investigates the question
// using any pre-retrieved context, followed by a synthesizer pass that turns
// the research text into a user-facing answer. Both passes are plain
// chat-completions calls against the same OpenAI-compatible endpoint the
// model router uses — there is no tool-calling loop, so unlike the system
// this was ported from, "research" here means one grounded reasoning pass
// rather than an agent with live web/filesystem tools.
package researcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/pipeline"
)

const (
	researcherSystemPrompt = `You are a precise research assistant.

Your job:
1. Receive a question or topic to investigate.
2. Use any pre-retrieved context you are given as your starting point.
3. Return a structured research report with:
   - Key facts found
   - Sources referenced, if any were provided
   - Gaps or uncertainties in the available information

Be factual. If no information is available, say so clearly.`

	synthesizerSystemPrompt = `You are an expert communicator and analyst.

You receive the original user question and research findings. Your job:
1. Synthesize the findings into a clear, concise answer.
2. Structure the response with a direct answer first, then supporting
   details, then a confidence level: HIGH / MEDIUM / LOW based on evidence
   quality.
3. Use plain language. Avoid jargon unless the question itself uses it.
4. If the research found gaps, acknowledge them honestly.`
)

// Researcher performs the research and synthesis passes over an
// OpenAI-compatible chat-completions endpoint.
type Researcher struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New constructs a Researcher from the same LLM endpoint configuration the
// model router uses.
func New(cfg config.Config) *Researcher {
	return &Researcher{
		httpClient: &http.Client{Timeout: cfg.RouterLLMTimeout},
		baseURL:    cfg.RouterLLMBaseURL,
		apiKey:     cfg.RouterLLMAPIKey,
		model:      cfg.RouterLLMModel,
	}
}

// Research investigates query using preContext as grounding material.
func (r *Researcher) Research(ctx context.Context, query string, preContext []domain.RetrievedChunk) (string, error) {
	prompt := fmt.Sprintf("Research the following question thoroughly: %s", query)
	if block := preContextBlock(preContext); block != "" {
		prompt += "\n\n" + block
	}
	return r.call(ctx, researcherSystemPrompt, prompt)
}

// Synthesize turns research findings into a final, user-facing answer.
func (r *Researcher) Synthesize(ctx context.Context, query, research string) (string, error) {
	prompt := fmt.Sprintf(
		"Original question: %s\n\nResearch findings:\n%s\n\nPlease synthesize a clear, structured answer.",
		query, research,
	)
	return r.call(ctx, synthesizerSystemPrompt, prompt)
}

func preContextBlock(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Pre-retrieved context from the knowledge base (use as a starting point):\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Text)
	}
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r *Researcher) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("op=researcher.call: %w", err)
	}

	var content string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.apiKey)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("researcher LLM call returned status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("researcher LLM call returned status %d", resp.StatusCode)
		}

		var decoded chatCompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(err)
		}
		if len(decoded.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("researcher LLM call returned no choices"))
		}
		content = decoded.Choices[0].Message.Content
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("op=researcher.call: %w", err)
	}
	return content, nil
}

var _ pipeline.Researcher = (*Researcher)(nil)
