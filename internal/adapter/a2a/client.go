// Package a2a implements the A2A Client port (spec §4.D): single-call and
// fan-out HTTP invocation of worker services speaking the A2A protocol.
//
// Every exported method never raises: faults are translated into the result
// text itself, matching the original system's "degraded output, not
// crashes" contract for a caller that must keep serving other workers.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client is an HTTP implementation of domain.A2AClient.
type Client struct {
	httpClient *http.Client
	registry   domain.ServiceRegistry
	fallbacks  map[string]string
}

// New builds a Client. registry resolves worker ids to endpoints; fallbacks
// supplies the static per-worker URL used when the registry can't.
func New(registry domain.ServiceRegistry, fallbacks map[string]string) *Client {
	return &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		registry:   registry,
		fallbacks:  fallbacks,
	}
}

// Call sends a single task to endpoint and returns its text result or a
// formatted error string; it never returns a Go error.
func (c *Client) Call(ctx context.Context, endpoint, query string, timeout time.Duration, sessionID string) string {
	task := domain.A2ATask{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message: domain.A2AMessage{
			Role:  "user",
			Parts: []domain.MessagePart{{Text: query}},
		},
	}

	obs := observability.NewIntegratedObservableClient(
		observability.ConnectionTypeA2A,
		observability.OperationTypeRequest,
		endpoint,
		"a2a",
		timeout,
		2*time.Second,
		30*time.Second,
	)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result domain.A2AResult
	err := obs.ExecuteWithMetrics(callCtx, "call", func(opCtx context.Context) error {
		body, err := json.Marshal(task)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(opCtx, http.MethodPost, endpoint+"/a2a", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("a2a status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})

	if err != nil {
		return formatError(endpoint, timeout, err)
	}

	if result.Status == domain.A2AStatusFailed {
		return fmt.Sprintf("Agent at %s returned error: %s", endpoint, result.Error)
	}
	if len(result.Artifacts) > 0 && len(result.Artifacts[0].Parts) > 0 {
		return result.Artifacts[0].Parts[0].Text
	}
	return "Agent returned no output."
}

func formatError(endpoint string, timeout time.Duration, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Agent at %s timed out after %ds.", endpoint, int(timeout.Seconds()))
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("Agent at %s is unreachable. Check that the service is running.", endpoint)
	}
	return fmt.Sprintf("A2A call to %s failed: %v", endpoint, err)
}

// CallAll resolves each id through the registry (falling back to the
// configured static URL), calls them concurrently under a single shared
// deadline, and waits for every call to finish or time out. One slow or
// broken worker never blocks or fails the group.
func (c *Client) CallAll(ctx context.Context, ids []string, query string, timeout time.Duration) map[string]string {
	results := make(map[string]string, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup

	groupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			endpoint := c.registry.Resolve(groupCtx, id, c.fallbacks[id])
			text := c.Call(groupCtx, endpoint, query, timeout, "")
			mu.Lock()
			results[id] = text
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

var _ domain.A2AClient = (*Client)(nil)
