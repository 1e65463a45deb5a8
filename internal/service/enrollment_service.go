package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/events"
	"github.com/fenixctl/enroller/internal/logger"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/worker"
)

// Run lifecycle errors.
var (
	ErrRunActive        = errors.New("an enrollment run is already active")
	ErrNoActiveRun      = errors.New("no enrollment run is active")
	ErrNoGoals          = errors.New("no registration goals are queued")
	ErrInvalidStartTime = errors.New("start time must be HH:MM:SS")
)

const (
	startAtLayout  = "15:04:05"
	captureLayout  = "20060102_150405"
	runEventBuffer = 256
	consumeTimeout = 10 * time.Second
)

// ReportStore serves the last report across restarts.
type ReportStore interface {
	LastReport(ctx context.Context) (*model.RunReport, error)
}

// EnrollmentService runs at most one enrollment run at a time.
type EnrollmentService struct {
	base       context.Context
	prefs      *PreferenceService
	portal     *PortalService
	bus        events.Bus
	reports    ReportStore
	clock      clock.Clock
	runCfg     worker.RunConfig
	winCfg     worker.WindowConfig
	captureDir string
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu     sync.Mutex
	status model.RunStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEnrollmentService creates a new EnrollmentService. Runs are bound to
// base: cancelling it cancels the active run.
func NewEnrollmentService(
	base context.Context,
	prefs *PreferenceService,
	portal *PortalService,
	bus events.Bus,
	clk clock.Clock,
	cfg *config.Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		base:       base,
		prefs:      prefs,
		portal:     portal,
		bus:        bus,
		clock:      clk,
		runCfg:     worker.RunConfigFrom(cfg.Run),
		winCfg:     worker.WindowConfigFrom(cfg.Window),
		captureDir: cfg.Browser.CaptureDir,
		metrics:    m,
		log:        log.With().Str("component", "enrollment_service").Logger(),
		status:     model.RunStatus{Phase: model.PhaseIdle},
	}
}

// WithReportStore makes Status fall back to r for the last report.
func (s *EnrollmentService) WithReportStore(r ReportStore) *EnrollmentService {
	s.reports = r
	return s
}

// Start launches a run over the queued goals. With req.At set the run waits
// until that time of day; a time already past today starts immediately.
func (s *EnrollmentService) Start(ctx context.Context, req model.StartRunRequest) (model.RunStatus, error) {
	at, err := startAt(req.At, s.clock.Now())
	if err != nil {
		return model.RunStatus{}, err
	}
	goals, err := s.prefs.Goals(ctx)
	if err != nil {
		return model.RunStatus{}, err
	}
	if len(goals) == 0 {
		return model.RunStatus{}, ErrNoGoals
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active() {
		return model.RunStatus{}, ErrRunActive
	}
	session, release, err := s.portal.Acquire()
	if err != nil {
		return model.RunStatus{}, err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(s.base)
	phase := model.PhaseRunning
	if at != nil {
		phase = model.PhaseScheduled
	}
	s.status = model.RunStatus{
		ID:          runID,
		Phase:       phase,
		ScheduledAt: at,
		Goals:       len(goals),
		LastReport:  s.status.LastReport,
	}
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		defer release()
		defer cancel()
		s.execute(runCtx, runID, goals, session, at)
	}()

	s.log.Info().Str("run_id", runID).Int("goals", len(goals)).Str("at", req.At).Msg("Enrollment run started")
	return s.status, nil
}

// Wait blocks until the current run ends and returns its report. It returns
// immediately with the last report when no run is active.
func (s *EnrollmentService) Wait(ctx context.Context) (*model.RunReport, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.LastReport, nil
}

// Cancel asks the active run to stop. An attempt in flight is allowed to finish.
func (s *EnrollmentService) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active() {
		return ErrNoActiveRun
	}
	s.cancel()
	s.log.Warn().Str("run_id", s.status.ID).Msg("Enrollment cancellation requested")
	return nil
}

// Status returns a snapshot of the run state.
func (s *EnrollmentService) Status(ctx context.Context) model.RunStatus {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	if st.LastReport == nil && s.reports != nil {
		rep, err := s.reports.LastReport(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Last report unavailable")
		}
		st.LastReport = rep
	}
	return st
}

func (s *EnrollmentService) active() bool {
	return s.status.Phase == model.PhaseScheduled || s.status.Phase == model.PhaseRunning
}

func (s *EnrollmentService) execute(ctx context.Context, runID string, goals []model.RegistrationGoal, session PortalSession, at *time.Time) {
	dir := filepath.Join(s.captureDir, "enrollment_"+s.clock.Now().Format(captureLayout))
	stop := s.recordRun(runID, dir)
	defer stop()
	session.SetCaptureDir(dir)

	var rep model.RunReport
	if err := s.waitUntil(ctx, at); err != nil {
		rep = s.cancelledBeforeStart(runID, goals)
	} else {
		s.mu.Lock()
		started := s.clock.Now()
		s.status.Phase = model.PhaseRunning
		s.status.StartedAt = &started
		s.mu.Unlock()

		monitor := worker.NewWindowMonitor(session, s.clock, s.winCfg, s.windowNotifier(runID), s.log)
		w := worker.NewEnrollmentWorker(session, monitor, session, s.clock, s.runCfg, s.bus, s.metrics, s.log)
		rep = w.Run(ctx, runID, goals)
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), consumeTimeout)
	defer cancel()
	if err := s.prefs.ConsumeConfirmed(cctx, rep.Confirmed); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to remove confirmed goals")
	}

	s.mu.Lock()
	s.status.Phase = model.PhaseFinished
	s.status.LastReport = &rep
	s.mu.Unlock()
	s.log.Info().Str("run_id", runID).Str("outcome", string(rep.Outcome)).Msg(worker.Summary(rep))
}

func (s *EnrollmentService) waitUntil(ctx context.Context, at *time.Time) error {
	if at == nil {
		return ctx.Err()
	}
	s.log.Info().Time("at", *at).Msg("Waiting for scheduled start")
	if d := at.Sub(s.clock.Now()); d > 0 {
		return s.clock.Sleep(ctx, d)
	}
	return ctx.Err()
}

func (s *EnrollmentService) cancelledBeforeStart(runID string, goals []model.RegistrationGoal) model.RunReport {
	now := s.clock.Now()
	rep := model.RunReport{
		Outcome:    model.OutcomeCancelled,
		Total:      len(goals),
		Confirmed:  []model.RegistrationGoal{},
		Pending:    goals,
		Dropped:    []model.RegistrationGoal{},
		StartedAt:  now,
		FinishedAt: now,
	}
	s.metrics.Runs.WithLabelValues(string(rep.Outcome)).Inc()
	s.bus.Publish(model.RunEvent{RunID: runID, Type: model.EventRunFinished, At: now,
		Report: &rep, Pending: len(goals), Message: worker.Summary(rep)})
	return rep
}

func (s *EnrollmentService) windowNotifier(runID string) worker.WindowNotifier {
	return worker.NotifierFunc(func(start time.Time, text string) {
		st := start
		s.bus.Publish(model.RunEvent{
			RunID:   runID,
			Type:    model.EventWindowWait,
			At:      s.clock.Now(),
			Message: fmt.Sprintf("Registration opens at %s, waiting", start.Format("02/01/2006 15:04")),
			Window:  &model.Window{State: model.WindowClosedFuture, Start: &st, Text: text},
		})
	})
}

// recordRun copies the run's events into dir/run.log until the returned
// func is called.
func (s *EnrollmentService) recordRun(runID string, dir string) func() {
	runLog, f, err := logger.RunLogger(dir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", dir).Msg("Run log disabled")
	}
	events, unsubscribe := s.bus.Subscribe(runEventBuffer)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			if ev.RunID != runID {
				continue
			}
			e := runLog.Info()
			if ev.Goal != nil {
				e = e.Str("course", ev.Goal.CourseName).Str("shift", ev.Goal.ShiftName)
			}
			e.Str("event", string(ev.Type)).Time("at", ev.At).Msg(ev.Message)
		}
	}()

	return func() {
		unsubscribe()
		<-forwarded
		if f != nil {
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				s.log.Warn().Err(err).Msg("Failed to close run log")
			}
		}
	}
}

func startAt(at string, now time.Time) (*time.Time, error) {
	if at == "" {
		return nil, nil
	}
	t, err := time.Parse(startAtLayout, at)
	if err != nil {
		return nil, ErrInvalidStartTime
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	if !target.After(now) {
		return nil, nil
	}
	return &target, nil
}
