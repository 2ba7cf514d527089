package domain

import (
	"testing"
	"time"
)

func TestWorkerStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant WorkerStatus
		expected string
	}{
		{"WorkerStatusHealthy", WorkerStatusHealthy, "healthy"},
		{"WorkerStatusUnknown", WorkerStatusUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestRouterStrategyConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant RouterStrategy
		expected string
	}{
		{"StrategyParallel", StrategyParallel, "parallel"},
		{"StrategySequential", StrategySequential, "sequential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestSession(t *testing.T) {
	now := time.Now()
	s := Session{
		ID:           "sess-01",
		UserID:       "T_HY_001",
		Desk:         "HY",
		Role:         UserRoleBusiness,
		Messages:     []Message{{Role: RoleUser, Content: "hello"}},
		MessageCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}

	if s.ID != "sess-01" {
		t.Errorf("Expected ID to be 'sess-01', got %q", s.ID)
	}
	if s.Desk != "HY" {
		t.Errorf("Expected Desk to be 'HY', got %q", s.Desk)
	}
	if s.Role != UserRoleBusiness {
		t.Errorf("Expected Role to be %q, got %q", UserRoleBusiness, s.Role)
	}
	if len(s.Messages) != 1 || s.Messages[0].Content != "hello" {
		t.Errorf("Expected one message with content 'hello', got %+v", s.Messages)
	}
	if s.MessageCount != 1 {
		t.Errorf("Expected MessageCount to be 1, got %d", s.MessageCount)
	}
}

func TestWorkerRegistration(t *testing.T) {
	now := time.Now()
	w := WorkerRegistration{
		ID:           "etf-agent",
		Endpoint:     "http://etf-agent:8080",
		Capabilities: []string{"etf-flows"},
		Desks:        []string{"MULTI"},
		Status:       WorkerStatusHealthy,
		RegisteredAt: now,
		ExpiresAt:    now.Add(120 * time.Second),
	}

	if w.ID != "etf-agent" {
		t.Errorf("Expected ID to be 'etf-agent', got %q", w.ID)
	}
	if w.Status != WorkerStatusHealthy {
		t.Errorf("Expected Status to be healthy, got %q", w.Status)
	}
	if !w.ExpiresAt.After(now) {
		t.Errorf("Expected ExpiresAt to be after now")
	}
}

func TestRouterDecision(t *testing.T) {
	d := RouterDecision{
		Agents:       []string{"etf-agent", "portfolio-agent"},
		Strategy:     StrategyParallel,
		Reasoning:    "query mentions ETF flows and portfolio exposure",
		FallbackUsed: false,
	}

	if len(d.Agents) != 2 {
		t.Errorf("Expected 2 agents, got %d", len(d.Agents))
	}
	if d.Strategy != StrategyParallel {
		t.Errorf("Expected strategy parallel, got %q", d.Strategy)
	}
	if d.FallbackUsed {
		t.Errorf("Expected FallbackUsed to be false")
	}
}

func TestPipelineStateErrorInvariant(t *testing.T) {
	st := PipelineState{
		RawQuery: "   ",
		Err:      ErrInvalidArgument,
	}
	st.FinalResponse = "Error: Empty query received."

	if st.Err == nil {
		t.Fatalf("expected Err to be set")
	}
	if st.FinalResponse == "" {
		t.Fatalf("expected FinalResponse to be set once Err is set")
	}
}

func TestRetrievedChunk(t *testing.T) {
	c := RetrievedChunk{Text: "chunk text", Source: "doc-1", Distance: 0.12}
	if c.Distance < 0 || c.Distance > 1 {
		t.Errorf("Expected Distance in [0,1], got %f", c.Distance)
	}
}

func TestA2ATaskAndResult(t *testing.T) {
	task := A2ATask{
		ID:        "task-1",
		SessionID: "sess-01",
		Message: A2AMessage{
			Role:  "user",
			Parts: []MessagePart{{Text: "what is the HY exposure?"}},
		},
	}
	if task.Message.Parts[0].Text != "what is the HY exposure?" {
		t.Errorf("unexpected task message text: %q", task.Message.Parts[0].Text)
	}

	result := A2AResult{
		ID:     "task-1",
		Status: A2AStatusCompleted,
		Artifacts: []A2AArtifact{
			{Parts: []MessagePart{{Text: "answer text"}}},
		},
	}
	if result.Status != A2AStatusCompleted {
		t.Errorf("Expected status completed, got %q", result.Status)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Parts[0].Text != "answer text" {
		t.Errorf("unexpected artifacts: %+v", result.Artifacts)
	}
}
