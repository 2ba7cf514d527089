// Package registry implements the Service Registry port (spec §4.B) on top
// of Redis: a TTL-bounded worker directory that agents refresh on a
// heartbeat cadence and the dispatcher consults to resolve endpoints.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/redis/go-redis/v9"
)

// Registry is a Redis-backed implementation of domain.ServiceRegistry.
type Registry struct {
	redis     *redis.Client
	ttl       time.Duration
	keyPrefix string
	indexKey  string
}

// New builds a Registry from a Redis client and the dispatcher configuration.
// TTL is fixed at config.RegistryTTL, not configurable, per the heartbeat
// contract: a worker must renew strictly faster than it expires.
func New(rdb *redis.Client, cfg config.Config) *Registry {
	prefix := cfg.AgentRegistryTable + ":"
	return &Registry{
		redis:     rdb,
		ttl:       config.RegistryTTL,
		keyPrefix: prefix,
		indexKey:  prefix + "__index",
	}
}

func (r *Registry) key(id string) string { return r.keyPrefix + id }

// Register writes or refreshes a worker's entry, resetting its TTL.
func (r *Registry) Register(ctx context.Context, id, endpoint string, capabilities, desks []string) error {
	now := time.Now()
	reg := domain.WorkerRegistration{
		ID:           id,
		Endpoint:     endpoint,
		Capabilities: capabilities,
		Desks:        desks,
		Status:       domain.WorkerStatusHealthy,
		RegisteredAt: now,
		ExpiresAt:    now.Add(r.ttl),
	}
	raw, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("op=registry.Register encode: %w", err)
	}
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, r.key(id), raw, r.ttl)
	pipe.SAdd(ctx, r.indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("registry register failed", slog.String("agent_id", id), slog.Any("error", err))
		observability.RecordRegistryOp("register", "degraded")
		return fmt.Errorf("op=registry.Register write: %w", err)
	}
	observability.RecordRegistryOp("register", "success")
	return nil
}

// Deregister removes a worker's entry immediately, used on graceful shutdown.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, r.key(id))
	pipe.SRem(ctx, r.indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("registry deregister failed", slog.String("agent_id", id), slog.Any("error", err))
		observability.RecordRegistryOp("deregister", "degraded")
		return fmt.Errorf("op=registry.Deregister: %w", err)
	}
	observability.RecordRegistryOp("deregister", "success")
	return nil
}

// Discover looks up a single worker by id. A missing or expired entry is
// reported as (zero value, false, nil) — not an error, since an unregistered
// worker is an expected steady-state condition, not a fault.
func (r *Registry) Discover(ctx context.Context, id string) (domain.WorkerRegistration, bool, error) {
	raw, err := r.redis.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		observability.RecordRegistryOp("discover", "not_found")
		return domain.WorkerRegistration{}, false, nil
	}
	if err != nil {
		slog.Warn("registry discover failed", slog.String("agent_id", id), slog.Any("error", err))
		observability.RecordRegistryOp("discover", "degraded")
		return domain.WorkerRegistration{}, false, nil
	}
	var reg domain.WorkerRegistration
	if err := json.Unmarshal(raw, &reg); err != nil {
		slog.Warn("registry decode failed", slog.String("agent_id", id), slog.Any("error", err))
		observability.RecordRegistryOp("discover", "degraded")
		return domain.WorkerRegistration{}, false, nil
	}
	observability.RecordRegistryOp("discover", "success")
	return reg, true, nil
}

// ListAll returns every currently-registered, non-expired worker. Entries
// whose key has already expired are pruned from the index as they're seen.
func (r *Registry) ListAll(ctx context.Context) ([]domain.WorkerRegistration, error) {
	ids, err := r.redis.SMembers(ctx, r.indexKey).Result()
	if err != nil {
		slog.Warn("registry list failed", slog.Any("error", err))
		observability.RecordRegistryOp("list_all", "degraded")
		return nil, nil
	}

	regs := make([]domain.WorkerRegistration, 0, len(ids))
	for _, id := range ids {
		reg, ok, err := r.Discover(ctx, id)
		if err != nil {
			continue
		}
		if !ok {
			r.redis.SRem(ctx, r.indexKey, id)
			continue
		}
		regs = append(regs, reg)
	}
	observability.RecordRegistryOp("list_all", "success")
	return regs, nil
}

// Resolve returns the healthy worker's endpoint, or fallbackURL when the
// worker is unregistered, expired, or the registry itself is unavailable.
// It never returns an error: endpoint resolution always degrades to the
// static fallback rather than failing the caller's request.
func (r *Registry) Resolve(ctx context.Context, id, fallbackURL string) string {
	reg, ok, _ := r.Discover(ctx, id)
	if !ok || reg.Status != domain.WorkerStatusHealthy {
		return fallbackURL
	}
	return reg.Endpoint
}

var _ domain.ServiceRegistry = (*Registry)(nil)
