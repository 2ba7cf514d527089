// Command specialist runs a sample A2A specialist worker built on the A2A
// Server Skeleton (spec §4.J). It answers tasks using the same two-pass
// reasoning the dispatcher's general branch uses, standing in for a real
// domain backend (KDB, AMPS, a portfolio service) behind the uniform
// health/agent-card/task surface every worker exposes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finquery/dispatcher/internal/adapter/a2aserver"
	"github.com/finquery/dispatcher/internal/adapter/registry"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/domain"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/finquery/dispatcher/internal/researcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if cfg.AgentID == "" || cfg.AgentSelfEndpoint == "" {
		slog.Error("AGENT_ID and AGENT_SELF_ENDPOINT are required to run a specialist worker")
		os.Exit(1)
	}

	ctx := context.Background()
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	reg := registry.New(rdb, cfg)
	res := researcher.New(cfg)

	handle := func(ctx context.Context, query string) (string, error) {
		report, err := res.Research(ctx, query, nil)
		if err != nil {
			return "", err
		}
		return res.Synthesize(ctx, query, report)
	}

	srv := a2aserver.New(
		cfg.AgentID,
		cfg.AgentSelfEndpoint,
		cfg.AgentID,
		"sample specialist worker built on the A2A server skeleton",
		[]string{"general"},
		nil,
		[]domain.AgentSkill{{ID: "analyze", Name: "Analyze", Description: "answers a free-form financial question"}},
		reg,
		handle,
	)

	srv.Register(ctx)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("specialist worker starting", slog.String("agent_id", cfg.AgentID), slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	srv.Deregister(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
}
