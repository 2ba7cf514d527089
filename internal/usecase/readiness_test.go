package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/finquery/dispatcher/internal/domain"
)

type readinessSessionStore struct{ err error }

func (r readinessSessionStore) Create(context.Context, string, string) (string, error) {
	return "", nil
}
func (r readinessSessionStore) Load(context.Context, string) ([]domain.Message, error) {
	return nil, r.err
}
func (r readinessSessionStore) Append(context.Context, string, string, string, string, string) error {
	return nil
}
func (r readinessSessionStore) RenderContext([]domain.Message) string { return "" }

type readinessRegistry struct{ err error }

func (r readinessRegistry) Register(context.Context, string, string, []string, []string) error {
	return nil
}
func (r readinessRegistry) Deregister(context.Context, string) error { return nil }
func (r readinessRegistry) Discover(context.Context, string) (domain.WorkerRegistration, bool, error) {
	return domain.WorkerRegistration{}, false, nil
}
func (r readinessRegistry) ListAll(context.Context) ([]domain.WorkerRegistration, error) {
	return nil, r.err
}
func (r readinessRegistry) Resolve(context.Context, string, string) string { return "" }

type readinessRetriever struct{ err error }

func (r readinessRetriever) Retrieve(context.Context, string, int) ([]domain.RetrievedChunk, error) {
	return nil, nil
}
func (r readinessRetriever) AddTexts(context.Context, []string, []map[string]string) error {
	return nil
}
func (r readinessRetriever) Count(context.Context) (int, error) { return 0, r.err }

func TestReadinessCheck_AllOK(t *testing.T) {
	svc := NewReadinessService(readinessSessionStore{}, readinessRegistry{}, readinessRetriever{})
	checks := svc.Check(context.Background())
	if len(checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(checks))
	}
	for _, c := range checks {
		if !c.OK {
			t.Errorf("expected %s to be OK, got %+v", c.Name, c)
		}
	}
}

func TestReadinessCheck_ReportsBackendError(t *testing.T) {
	svc := NewReadinessService(readinessSessionStore{err: errors.New("conn refused")}, readinessRegistry{}, readinessRetriever{})
	checks := svc.Check(context.Background())
	if checks[0].OK {
		t.Errorf("expected session_store check to fail, got %+v", checks[0])
	}
}

func TestReadinessCheck_NilDependenciesReportNotConfigured(t *testing.T) {
	svc := NewReadinessService(nil, nil, nil)
	checks := svc.Check(context.Background())
	for _, c := range checks {
		if c.OK {
			t.Errorf("expected %s to report not-configured, got %+v", c.Name, c)
		}
	}
}
