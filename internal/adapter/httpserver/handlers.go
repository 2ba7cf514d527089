// Package httpserver contains HTTP handlers and middleware.
//
// It provides the OpenAI-compatible chat-completions surface (spec §6) that
// fronts the dispatcher pipeline, plus readiness and liveness probes.
package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/usecase"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// Server aggregates the HTTP handler dependencies.
type Server struct {
	Cfg     config.Config
	Gateway *usecase.GatewayService
	Ready   *usecase.ReadinessService
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, gateway *usecase.GatewayService, ready *usecase.ReadinessService) *Server {
	return &Server{Cfg: cfg, Gateway: gateway, Ready: ready}
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages" validate:"required,min=1,dive"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	User        string        `json:"user,omitempty" validate:"omitempty,max=100"`
	DeskName    string        `json:"desk_name,omitempty" validate:"omitempty,max=100"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Created   int64        `json:"created"`
	Model     string       `json:"model"`
	SessionID string       `json:"session_id"`
	Choices   []chatChoice `json:"choices"`
	Usage     chatUsage    `json:"usage"`
}

func newChatID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func buildChatResponse(content, model, sessionID string) chatResponse {
	return chatResponse{
		ID:        newChatID(),
		Object:    "chat.completion",
		Created:   time.Now().Unix(),
		Model:     model,
		SessionID: sessionID,
		Choices: []chatChoice{
			{Index: 0, Message: chatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
		Usage: chatUsage{},
	}
}

// ChatCompletionsHandler implements POST /v1/chat/completions.
func (s *Server) ChatCompletionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument), nil)
			return
		}
		if req.Model == "" {
			req.Model = "agentic-ai-system"
		}

		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		if res := ValidateSessionID(req.SessionID); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, res.Errors[0].Message), res.Errors)
			return
		}

		messages := make([]domain.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			messages = append(messages, domain.Message{Role: domain.Role(m.Role), Content: m.Content})
		}

		result, err := s.Gateway.Chat(r.Context(), usecase.ChatRequest{
			Messages:  messages,
			SessionID: req.SessionID,
			UserID:    SanitizeString(req.User),
			DeskName:  SanitizeString(req.DeskName),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		if req.Stream {
			streamChatResponse(w, result.Content, req.Model, result.SessionID)
			return
		}
		writeJSON(w, http.StatusOK, buildChatResponse(result.Content, req.Model, result.SessionID))
	}
}

// streamChatResponse yields the response word-by-word as SSE chunks, per
// spec §6: a meta chunk carrying session_id, delta chunks, a finish_reason
// chunk, and a literal "[DONE]" sentinel line.
func streamChatResponse(w http.ResponseWriter, content, model, sessionID string) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunkID := newChatID()
	created := time.Now().Unix()
	bw := bufio.NewWriter(w)

	writeChunk := func(v any) {
		payload, _ := json.Marshal(v)
		fmt.Fprintf(bw, "data: %s\n\n", payload)
		bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(map[string]any{
		"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
		"session_id": sessionID,
		"choices":    []map[string]any{{"index": 0, "delta": map[string]string{"role": "assistant"}, "finish_reason": nil}},
	})

	for i, word := range strings.Split(content, " ") {
		text := word
		if i != 0 {
			text = " " + word
		}
		writeChunk(map[string]any{
			"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": text}, "finish_reason": nil}},
		})
	}

	writeChunk(map[string]any{
		"id": chunkID, "object": "chat.completion.chunk", "created": created, "model": model,
		"choices": []map[string]any{{"index": 0, "delta": map[string]string{}, "finish_reason": "stop"}},
	})
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	if flusher != nil {
		flusher.Flush()
	}
}

// ModelsHandler implements GET /v1/models.
func (s *Server) ModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "agentic-ai-system", "object": "model", "created": 0, "owned_by": "local"},
			},
		})
	}
}

// RootHandler implements GET /.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "service": "Agentic AI System", "version": "2.0.0",
		})
	}
}

// ReadyzHandler returns a readiness handler that probes the session store,
// service registry, and retriever.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := s.Ready.Check(ctx)
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}

// HealthzHandler is a plain liveness probe: if the process can answer HTTP
// at all, it is alive. Readiness (backing-store health) is readyz's job.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
