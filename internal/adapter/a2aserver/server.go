// Package a2aserver implements the A2A Server Skeleton (spec §4.J): the
// uniform HTTP surface every specialist worker exposes — health (which also
// renews its registry lease), a self-description agent card, and the task
// endpoint that front the worker's own business logic.
package a2aserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/finquery/dispatcher/internal/domain"
)

var (
	taskValidatorOnce sync.Once
	taskValidator     *validator.Validate
)

func getTaskValidator() *validator.Validate {
	taskValidatorOnce.Do(func() { taskValidator = validator.New() })
	return taskValidator
}

// Handler answers one task's text query with a text result. Implementations
// are the worker's actual business logic; the skeleton only wires transport.
type Handler func(ctx context.Context, query string) (string, error)

// Server is the A2A-protocol HTTP surface for one specialist worker.
type Server struct {
	AgentID      string
	Endpoint     string
	Name         string
	Description  string
	Capabilities []string
	Desks        []string
	Skills       []domain.AgentSkill
	Registry     domain.ServiceRegistry
	Handle       Handler
}

// New constructs a Server. Handle is invoked with the first text part of
// every incoming task.
func New(agentID, endpoint, name, description string, capabilities, desks []string, skills []domain.AgentSkill, registry domain.ServiceRegistry, handle Handler) *Server {
	return &Server{
		AgentID:      agentID,
		Endpoint:     endpoint,
		Name:         name,
		Description:  description,
		Capabilities: capabilities,
		Desks:        desks,
		Skills:       skills,
		Registry:     registry,
		Handle:       handle,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler implements GET /health. As a side effect it renews the
// worker's registry lease, so a liveness probe also keeps the worker
// discoverable without a separate heartbeat loop.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := s.Registry.Register(r.Context(), s.AgentID, s.Endpoint, s.Capabilities, s.Desks); err != nil {
			status = "error"
			slog.WarnContext(r.Context(), "a2aserver health renewal failed", slog.Any("error", err))
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": status, "agent_id": s.AgentID, "endpoint": s.Endpoint,
		})
	}
}

// AgentCardHandler implements GET /.well-known/agent.json.
func (s *Server) AgentCardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, domain.AgentCard{
			Name:        s.Name,
			Description: s.Description,
			URL:         s.Endpoint,
			Version:     "1.0.0",
			Capabilities: domain.AgentCapabilities{
				Streaming:        false,
				PushNotification: false,
			},
			Skills: s.Skills,
		})
	}
}

// TaskHandler implements POST /a2a: dispatches the task's first text part to
// Handle and reports a completed artifact or a failed result.
func (s *Server) TaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var task domain.A2ATask
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			writeJSON(w, http.StatusBadRequest, domain.A2AResult{
				ID: task.ID, Status: domain.A2AStatusFailed, Error: "invalid task body",
			})
			return
		}
		if err := getTaskValidator().Struct(task); err != nil {
			writeJSON(w, http.StatusBadRequest, domain.A2AResult{
				ID: task.ID, Status: domain.A2AStatusFailed, Error: "invalid task: " + err.Error(),
			})
			return
		}

		var query string
		if len(task.Message.Parts) > 0 {
			query = task.Message.Parts[0].Text
		}

		text, err := s.Handle(r.Context(), query)
		if err != nil {
			writeJSON(w, http.StatusOK, domain.A2AResult{
				ID: task.ID, Status: domain.A2AStatusFailed, Error: err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, domain.A2AResult{
			ID:        task.ID,
			Status:    domain.A2AStatusCompleted,
			Artifacts: []domain.A2AArtifact{{Parts: []domain.MessagePart{{Text: text}}}},
		})
	}
}

// Register attempts self-registration with the registry, retrying with
// exponential backoff until it succeeds, ctx is cancelled, or the default
// backoff's 15-minute elapsed-time limit passes. Per spec.md
// §4.J's best-effort lifecycle note, a failed attempt here is not fatal:
// the worker's own health-check renewals will eventually register it.
func (s *Server) Register(ctx context.Context) {
	op := func() error {
		return s.Registry.Register(ctx, s.AgentID, s.Endpoint, s.Capabilities, s.Desks)
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slog.WarnContext(ctx, "a2aserver startup registration did not converge, relying on health renewals", slog.Any("error", err))
	}
}

// Deregister removes the worker from the registry on graceful shutdown.
func (s *Server) Deregister(ctx context.Context) {
	if err := s.Registry.Deregister(ctx, s.AgentID); err != nil {
		slog.WarnContext(ctx, "a2aserver deregistration failed", slog.Any("error", err))
	}
}

// Router builds the three-route A2A surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.HealthHandler())
	r.Get("/.well-known/agent.json", s.AgentCardHandler())
	r.Post("/a2a", s.TaskHandler())
	return r
}
