package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/app"
	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/handler"
	"github.com/fenixctl/enroller/internal/logger"
	"github.com/fenixctl/enroller/internal/middleware"
	"github.com/fenixctl/enroller/internal/router"
	"github.com/fenixctl/enroller/internal/validator"
)

// Login attempts allowed per client IP per minute.
const loginRate = 10

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("preferences", cfg.PreferencesBackend).
		Msg("Starting Fenix enroller")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect Stores & Build Services ───────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	a.Start(ctx)

	// ─── Portal Auto-Login ─────────────────────────────────────────────
	// Runs in the background; the API reports the session state meanwhile.
	go func() {
		ok, err := a.LoginFromConfig(ctx)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("Portal auto-login failed")
		case ok:
			log.Info().Msg("Portal auto-login complete")
		}
	}()

	if cfg.ControlPasswordHash == "" {
		log.Warn().Msg("CONTROL_PASSWORD_HASH is not set, operator login is disabled")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	checks := map[string]handler.HealthCheck{}
	if a.Backends.Postgres != nil {
		checks["postgres"] = a.Backends.Postgres.Ping
	}
	if a.Backends.Redis != nil {
		rdb := a.Backends.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(a.Auth, log),
		Catalogue:  handler.NewCatalogueHandler(a.Offerings, a.Preferences),
		Preference: handler.NewPreferenceHandler(a.Preferences),
		Schedule:   handler.NewScheduleHandler(a.Schedule),
		Portal:     handler.NewPortalHandler(a.Portal, log),
		Enrollment: handler.NewEnrollmentHandler(a.Enrollment),
		WS:         handler.NewWSHandler(a.Bus, a.Enrollment, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(checks, a.Enrollment, a.Portal, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	loginLimiter := middleware.NewRateLimiter(loginRate, time.Minute, clock.Real())
	go loginLimiter.Start(ctx)

	// ─── Setup Router ──────────────────────────────────────────────────
	metricsHandler := promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	r := router.SetupRouter(a.Auth, handlers, loginLimiter, metricsHandler, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Cancel the active run and let its in-flight attempt finish.
	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.Run.RetryWindow+15*time.Second)
	defer waitCancel()
	if rep, err := a.Enrollment.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Run did not stop in time")
	} else if rep != nil {
		log.Info().Str("outcome", string(rep.Outcome)).Msg("Last run report")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
