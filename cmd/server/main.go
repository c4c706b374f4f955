package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"prettyqr/internal/api"
	"prettyqr/internal/api/handlers"
	"prettyqr/internal/api/middleware"
	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/engine/studio"
	"prettyqr/internal/pkg/logger"
	"prettyqr/internal/platform/config"
	"prettyqr/internal/workers"
)

func main() {
	configPath := flag.String("config", os.Getenv("PRETTYQR_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	backend, err := qr.New(cfg.Studio.Backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to select QR backend")
	}
	settings, err := studio.SettingsFromConfig(cfg.Studio)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid studio config")
	}

	encoder := render.NewEncoder(backend)
	clock := clockwork.NewRealClock()
	metrics := handlers.NewMetrics()

	registry := sessions.NewRegistry(func() *studio.Pipeline {
		return studio.New(encoder, settings,
			studio.WithClock(clock),
			studio.WithEventHook(metrics.Observe))
	}, cfg.Sessions.TTL, cfg.Sessions.MaxSessions, clock)
	defer registry.CloseAll()

	rateLimiter := middleware.NewRateLimiter(clock)

	deps := &api.Dependencies{
		SessionHandler:    handlers.NewSessionHandler(registry, metrics),
		LiveHandler:       handlers.NewLiveHandler(),
		HealthHandler:     handlers.NewHealthHandler(encoder, registry),
		MetricsHandler:    handlers.NewMetricsHandler(metrics, registry),
		SessionMiddleware: middleware.NewSessionMiddleware(registry),
		RateLimiter:       rateLimiter,
		ExportsPerMinute:  cfg.RateLimit.ExportsPerMinute,
	}
	router := api.NewRouter(deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wait := workers.Start(ctx, clock,
		workers.SweepSessions(registry, cfg.Sessions.SweepInterval, func(n int) {
			metrics.SessionsSwept.Add(int64(n))
		}),
		workers.PruneRateLimits(rateLimiter, 10*time.Minute, 10*time.Minute),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", addr).
			Str("backend", backend.Name()).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	wait()
}
