package usecase

import (
	"context"
	"fmt"

	"github.com/finquery/dispatcher/internal/domain"
)

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

// ReadinessService reports the liveness of the dispatcher's backing stores.
type ReadinessService struct {
	Sessions  domain.SessionStore
	Registry  domain.ServiceRegistry
	Retriever domain.Retriever
}

// NewReadinessService constructs a ReadinessService.
func NewReadinessService(sessions domain.SessionStore, registry domain.ServiceRegistry, retriever domain.Retriever) *ReadinessService {
	return &ReadinessService{Sessions: sessions, Registry: registry, Retriever: retriever}
}

// Check runs every configured readiness probe. Every probe is best-effort in
// the same spirit as the ports it exercises: a failing probe is reported,
// never panicked on.
func (s *ReadinessService) Check(ctx context.Context) []ReadinessCheck {
	var checks []ReadinessCheck

	sessionCheck := ReadinessCheck{Name: "session_store", Details: "session store connection check"}
	if s.Sessions != nil {
		if _, err := s.Sessions.Load(ctx, "__readiness_probe__"); err != nil {
			sessionCheck.Details = fmt.Sprintf("session store error: %v", err)
		} else {
			sessionCheck.OK = true
			sessionCheck.Details = "session store reachable"
		}
	} else {
		sessionCheck.Details = "session store not configured"
	}
	checks = append(checks, sessionCheck)

	registryCheck := ReadinessCheck{Name: "service_registry", Details: "service registry connection check"}
	if s.Registry != nil {
		if _, err := s.Registry.ListAll(ctx); err != nil {
			registryCheck.Details = fmt.Sprintf("service registry error: %v", err)
		} else {
			registryCheck.OK = true
			registryCheck.Details = "service registry reachable"
		}
	} else {
		registryCheck.Details = "service registry not configured"
	}
	checks = append(checks, registryCheck)

	retrieverCheck := ReadinessCheck{Name: "retriever", Details: "vector store connection check"}
	if s.Retriever != nil {
		if _, err := s.Retriever.Count(ctx); err != nil {
			retrieverCheck.Details = fmt.Sprintf("retriever error: %v", err)
		} else {
			retrieverCheck.OK = true
			retrieverCheck.Details = "retriever reachable"
		}
	} else {
		retrieverCheck.Details = "retriever not configured"
	}
	checks = append(checks, retrieverCheck)

	return checks
}
