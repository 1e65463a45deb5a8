// Package app wires configuration, stores and services into one process.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/browser"
	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/database"
	"github.com/fenixctl/enroller/internal/events"
	"github.com/fenixctl/enroller/internal/fenix"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/repository"
	"github.com/fenixctl/enroller/internal/service"
)

const closeGrace = 5 * time.Second

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Config   *config.Config
	Backends *database.Backends
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      events.Bus

	Auth        *service.AuthService
	Preferences *service.PreferenceService
	Offerings   *service.OfferingService
	Schedule    *service.ScheduleService
	Portal      *service.PortalService
	Enrollment  *service.EnrollmentService

	mirror *events.RedisBus
	log    zerolog.Logger
}

// New connects the configured stores and builds every service. Runs started
// through the returned App are cancelled when ctx is.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	backends, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Backends: backends, log: log}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	store, err := a.preferenceStore()
	if err != nil {
		backends.Close()
		return nil, err
	}

	var cache repository.OfferingCache = repository.NewMemoryOfferingCache(clock.Real())
	var reports service.ReportStore
	if backends.Redis != nil {
		cache = repository.NewRedisOfferingCache(backends.Redis)
		a.mirror = events.NewRedisBus(backends.Redis, cfg.PreferencesProfile, log)
		a.Bus = a.mirror
		reports = a.mirror
	} else {
		a.Bus = events.NewMemoryBus()
	}

	client := fenix.NewClient(cfg.FenixAPIURL, cfg.FenixBaseURL, fenix.DefaultHTTPClient(cfg.HTTPTimeout), log)
	curriculum := fenix.NewCurriculumClient(client)

	opts := browser.OptionsFrom(cfg)
	opener := func(ctx context.Context, username, password string) (service.PortalSession, error) {
		return browser.Open(ctx, opts, username, password, clock.Real(), log)
	}

	a.Auth = service.NewAuthService(cfg)
	a.Preferences = service.NewPreferenceService(store, cfg, clock.Real(), log)
	a.Offerings = service.NewOfferingService(client, curriculum, cache, cfg, a.Metrics, log)
	a.Schedule = service.NewScheduleService(a.Offerings, a.Preferences, log)
	a.Preferences.WithQueueCheck(a.Schedule.CheckQueue)
	a.Portal = service.NewPortalService(opener, log)
	a.Enrollment = service.NewEnrollmentService(ctx, a.Preferences, a.Portal, a.Bus, clock.Real(), cfg, a.Metrics, log)
	if reports != nil {
		a.Enrollment.WithReportStore(reports)
	}
	return a, nil
}

func (a *App) preferenceStore() (service.PreferenceStore, error) {
	switch a.Config.PreferencesBackend {
	case "postgres":
		return repository.NewPreferenceRepository(a.Backends.Postgres, a.Config.PreferencesProfile), nil
	case "file", "":
		repo, err := repository.NewFilePreferenceRepository(a.Config.PreferencesPath)
		if err != nil {
			return nil, err
		}
		a.log.Info().Str("path", repo.Path()).Msg("Using file preference store")
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", a.Config.PreferencesBackend)
	}
}

// Start runs background loops until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	if a.mirror != nil {
		go a.mirror.Start(ctx)
	}
}

// LoginFromConfig opens the portal session with the configured credentials.
// It reports false when none are configured.
func (a *App) LoginFromConfig(ctx context.Context) (bool, error) {
	if a.Config.PortalUsername == "" || a.Config.PortalPassword == "" {
		return false, nil
	}
	return true, a.Portal.Login(ctx, a.Config.PortalUsername, a.Config.PortalPassword)
}

// Close ends the portal session and releases store connections. A run
// still holding the session gets closeGrace to let go of it.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	a.Portal.Close(ctx)
	a.Backends.Close()
}
