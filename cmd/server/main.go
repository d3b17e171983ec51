package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dash-resolver/internal/fetch"
	"dash-resolver/internal/orchestrator"
	"dash-resolver/internal/platform/config"
	"dash-resolver/internal/platform/logger"
	"dash-resolver/internal/platform/metrics"
	"dash-resolver/internal/resolver"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	clock := resolver.SystemClock()
	fetcher := fetch.New(fetch.Config{
		Timeout:         cfg.FetchTimeout,
		Rate:            cfg.FetchRate,
		Burst:           cfg.FetchBurst,
		HostConcurrency: cfg.FetchHostConcurrency,
		MaxBodyBytes:    cfg.FetchMaxBodyBytes,
	}, clock)
	res := orchestrator.DefaultResolver(resolver.Options{
		FallbackLifetime: cfg.FallbackLifetime,
		MaxXLinkRounds:   cfg.MaxXLinkRounds,
		Clock:            clock,
	}, log)

	repo := orchestrator.NewInMemoryRepository()
	met := metrics.New()
	svc := orchestrator.NewService(repo, res, fetcher, log, met)
	h := orchestrator.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetManifestsTracked(svc.TrackedCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"fallback_lifetime", cfg.FallbackLifetime.String(),
		"max_xlink_rounds", cfg.MaxXLinkRounds,
		"fetch_rate", cfg.FetchRate,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	svc.Close()

	log.Info("server stopped")
}
