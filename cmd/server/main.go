// Command server starts the finquery dispatcher HTTP server.
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

	"github.com/finquery/dispatcher/internal/adapter/a2a"
	httpserver "github.com/finquery/dispatcher/internal/adapter/httpserver"
	"github.com/finquery/dispatcher/internal/adapter/registry"
	"github.com/finquery/dispatcher/internal/adapter/retriever"
	"github.com/finquery/dispatcher/internal/adapter/sessionstore"
	"github.com/finquery/dispatcher/internal/app"
	"github.com/finquery/dispatcher/internal/config"
	"github.com/finquery/dispatcher/internal/observability"
	"github.com/finquery/dispatcher/internal/pipeline"
	"github.com/finquery/dispatcher/internal/researcher"
	"github.com/finquery/dispatcher/internal/router"
	"github.com/finquery/dispatcher/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	opts.DialTimeout = cfg.RedisDialTimeout
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis ping failed at startup, continuing degraded", slog.Any("error", err))
	}
	defer func() {
		_ = rdb.Close()
	}()

	sessions := sessionstore.New(rdb, cfg)
	reg := registry.New(rdb, cfg)

	ret := retriever.New(ctx, cfg)

	a2aClient := a2a.New(reg, cfg.FallbackURLs())
	modelRouter := router.New(reg, cfg)
	resCh := researcher.New(cfg)

	ppl := pipeline.New(ret, modelRouter, a2aClient, resCh, cfg.RAGTopK, cfg.A2ATimeout)

	gateway := usecase.NewGatewayService(sessions, ppl, cfg.DispatchPoolSize)
	readiness := usecase.NewReadinessService(sessions, reg, ret)

	srv := httpserver.NewServer(cfg, gateway, readiness)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
