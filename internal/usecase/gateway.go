// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finquery/dispatcher/internal/domain"
	"go.opentelemetry.io/otel"
)

// Runner executes the pipeline graph for one validated query.
type Runner interface {
	Run(ctx context.Context, query string) domain.PipelineState
}

// persistQueueFactor sizes the persistence queue relative to the pipeline
// pool: spec §5 grants each in-flight request at most one pipeline slot plus
// one fire-and-forget persistence slot, so the queue only needs to absorb
// bursts where persistence lags behind newly-freed pipeline slots.
const persistQueueFactor = 4

// GatewayService implements the Request Gateway (spec §4.I): it resolves the
// calling session, enriches the query with conversation history, runs the
// pipeline on a bounded worker pool, and persists the turn onto a bounded,
// drop-on-overflow queue without blocking the response (spec §9's redesign
// of fire-and-forget persistence).
type GatewayService struct {
	Sessions domain.SessionStore
	Pipeline Runner

	pool      chan struct{}
	persistCh chan persistJob
}

type persistJob struct {
	sessionID, user, assistant, userID, desk string
}

// NewGatewayService constructs a GatewayService whose pipeline runs are
// bounded to poolSize concurrent in-flight requests, and whose session
// persistence runs on a bounded queue drained by one background worker.
func NewGatewayService(sessions domain.SessionStore, pipeline Runner, poolSize int) *GatewayService {
	if poolSize <= 0 {
		poolSize = 1
	}
	s := &GatewayService{
		Sessions:  sessions,
		Pipeline:  pipeline,
		pool:      make(chan struct{}, poolSize),
		persistCh: make(chan persistJob, poolSize*persistQueueFactor),
	}
	go s.runPersistWorker()
	return s
}

// runPersistWorker drains persistCh for the lifetime of the service. A
// single worker is enough since Append calls are I/O-bound and the queue,
// not worker concurrency, is what absorbs bursts.
func (s *GatewayService) runPersistWorker() {
	for job := range s.persistCh {
		ctx := context.Background()
		if err := s.Sessions.Append(ctx, job.sessionID, job.user, job.assistant, job.userID, job.desk); err != nil {
			slog.Warn("gateway background session append failed", slog.Any("error", err), slog.String("session_id", job.sessionID))
		}
	}
}

// ChatRequest is the usecase-level view of an incoming chat-completions call.
type ChatRequest struct {
	Messages  []domain.Message
	SessionID string
	UserID    string
	DeskName  string
}

// ChatResult is what the gateway hands back to the transport layer.
type ChatResult struct {
	SessionID string
	Content   string
}

// Chat resolves the session, runs the pipeline, and persists the turn.
func (s *GatewayService) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	tr := otel.Tracer("usecase.gateway")
	ctx, span := tr.Start(ctx, "GatewayService.Chat")
	defer span.End()

	userMessage, found := lastUserMessage(req.Messages)

	sessionID := req.SessionID
	var history []domain.Message
	if sessionID != "" {
		var err error
		history, err = s.Sessions.Load(ctx, sessionID)
		if err != nil {
			slog.WarnContext(ctx, "gateway session load failed, continuing with empty history", slog.Any("error", err))
		}
	} else {
		var err error
		sessionID, err = s.Sessions.Create(ctx, req.UserID, req.DeskName)
		if err != nil {
			slog.WarnContext(ctx, "gateway session create failed, continuing without a persisted session", slog.Any("error", err))
		}
	}

	// No message with role "user" at all: short-circuit before the pipeline.
	// A present-but-blank user message is a distinct case (spec §8 scenario
	// 1) and must still flow into the pipeline, which reports it as an
	// empty-query error.
	if !found {
		return ChatResult{SessionID: sessionID, Content: "No user message found."}, nil
	}

	enriched := userMessage
	if contextBlock := s.Sessions.RenderContext(history); contextBlock != "" {
		enriched = fmt.Sprintf("%s\n\n[Current Query]\n%s", contextBlock, userMessage)
	}

	s.acquire()
	state := s.Pipeline.Run(ctx, enriched)
	s.release()

	content := state.FinalResponse
	if content == "" {
		content = "No response generated."
	}

	// Fire-and-forget: persist the original (non-enriched) turn so the next
	// request's history doesn't accumulate re-enriched text. The queue is
	// bounded; under sustained overload we drop the persist job rather than
	// block the response (spec §9).
	select {
	case s.persistCh <- persistJob{sessionID, userMessage, content, req.UserID, req.DeskName}:
	default:
		slog.Warn("gateway persistence queue full, dropping session append", slog.String("session_id", sessionID))
	}

	return ChatResult{SessionID: sessionID, Content: content}, nil
}

func (s *GatewayService) acquire() { s.pool <- struct{}{} }
func (s *GatewayService) release() { <-s.pool }

// lastUserMessage returns the content of the most recent role="user" message
// and whether one was present at all. A present-but-blank message (e.g. all
// whitespace) is returned verbatim with found=true: the empty-query check
// belongs to the pipeline's intake step, not here.
func lastUserMessage(messages []domain.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
