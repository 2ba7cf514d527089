// Package retriever implements the Retriever port (spec §4.C): k-NN search
// over a Qdrant collection with OpenAI-compatible embeddings, degrading to
// an empty/unavailable state when either dependency cannot be reached.
package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finquery/dispatcher/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// qdrantClient is a minimal Qdrant HTTP client, adapted from the vector
// adapter's original collection-management and k-NN search surface.
type qdrantClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	obs        *observability.IntegratedObservableClient
}

func newQdrantClient(baseURL, apiKey string) *qdrantClient {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("Qdrant %s %s", r.Method, r.URL.Path)
		}),
	)
	return &qdrantClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second, Transport: transport},
		obs: observability.NewIntegratedObservableClient(
			observability.ConnectionTypeVectorDB,
			observability.OperationTypeQuery,
			baseURL,
			"qdrant",
			10*time.Second,
			2*time.Second,
			30*time.Second,
		),
	}
}

func (c *qdrantClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

// ensureCollection creates the collection (cosine distance) if absent.
func (c *qdrantClient) ensureCollection(ctx context.Context, name string, vectorSize int) error {
	return c.obs.ExecuteWithMetrics(ctx, "ensure_collection", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		payload := map[string]any{
			"vectors": map[string]any{"size": vectorSize, "distance": "Cosine"},
		}
		b, _ := json.Marshal(payload)
		req, err = http.NewRequestWithContext(callCtx, http.MethodPut, fmt.Sprintf("%s/collections/%s", c.baseURL, name), bytes.NewReader(b))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant ensure create status %d", resp.StatusCode)
		}
		return nil
	})
}

// upsertPoints inserts or updates points, each addressed by a deterministic
// content-hash id so re-ingesting the same text is a no-op.
func (c *qdrantClient) upsertPoints(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []map[string]any) error {
	points := make([]map[string]any, 0, len(vectors))
	for i := range vectors {
		points = append(points, map[string]any{
			"id":      ids[i],
			"vector":  vectors[i],
			"payload": payloads[i],
		})
	}
	body := map[string]any{"points": points}
	return c.obs.ExecuteWithMetrics(ctx, "upsert_points", func(callCtx context.Context) error {
		b, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(callCtx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points", c.baseURL, collection), bytes.NewReader(b))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
		}
		return nil
	})
}

type qdrantSearchHit struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// search returns the top-k nearest points for vector.
func (c *qdrantClient) search(ctx context.Context, collection string, vector []float32, topK int) ([]qdrantSearchHit, error) {
	body := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	var hits []qdrantSearchHit
	if err := c.obs.ExecuteWithMetrics(ctx, "search", func(callCtx context.Context) error {
		b, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection), bytes.NewReader(b))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant search status %d", resp.StatusCode)
		}
		var out struct {
			Result []qdrantSearchHit `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		hits = out.Result
		return nil
	}); err != nil {
		return nil, err
	}
	return hits, nil
}

// count returns the collection's point count.
func (c *qdrantClient) count(ctx context.Context, collection string) (int, error) {
	var n int
	err := c.obs.ExecuteWithMetrics(ctx, "count", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, collection), bytes.NewReader([]byte(`{"exact":true}`)))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant count status %d", resp.StatusCode)
		}
		var out struct {
			Result struct {
				Count int `json:"count"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		n = out.Result.Count
		return nil
	})
	return n, err
}

// ping verifies the Qdrant service is reachable.
func (c *qdrantClient) ping(ctx context.Context) error {
	return c.obs.ExecuteWithMetrics(ctx, "ping", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, fmt.Sprintf("%s/collections", c.baseURL), nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("ping failed with status %d", resp.StatusCode)
		}
		return nil
	})
}
