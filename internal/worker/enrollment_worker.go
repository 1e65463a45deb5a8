package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/model"
)

// attemptGrace is added to the retry window when bounding one attempt, so
// the attempter can finish its last click-through after its own window ends.
const attemptGrace = 15 * time.Second

// Portal moves the session onto the registration page.
type Portal interface {
	OpenEnrollment(ctx context.Context) error
	// ContinueEnrollment submits the intermediate "Continue" form when the
	// portal shows one and reports whether it did.
	ContinueEnrollment(ctx context.Context) (bool, error)
}

// AttemptOptions bound a single registration attempt.
type AttemptOptions struct {
	RetryWindow   time.Duration
	RetryInterval time.Duration
}

// Attempter performs one end-to-end registration click-through.
type Attempter interface {
	Attempt(ctx context.Context, goal model.RegistrationGoal, opts AttemptOptions) (bool, error)
}

// EventSink receives progress events. Publish must not block.
type EventSink interface {
	Publish(ev model.RunEvent)
}

// WindowAwaiter resolves the registration window.
type WindowAwaiter interface {
	Await(ctx context.Context) (model.Window, error)
}

// RunConfig bounds one enrollment run.
type RunConfig struct {
	Deadline      time.Duration
	RetryWindow   time.Duration
	RetryInterval time.Duration
	PassPause     time.Duration
}

// RunConfigFrom maps application config onto run settings.
func RunConfigFrom(c config.RunConfig) RunConfig {
	return RunConfig{
		Deadline:      c.Deadline,
		RetryWindow:   c.RetryWindow,
		RetryInterval: c.RetryInterval,
		PassPause:     c.PassPause,
	}
}

// EnrollmentWorker drives pending goals through round-robin registration
// attempts. A worker owns its browser session for the duration of Run and
// must not be used by two runs at once.
type EnrollmentWorker struct {
	portal    Portal
	window    WindowAwaiter
	attempter Attempter
	clock     clock.Clock
	cfg       RunConfig
	events    EventSink
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewEnrollmentWorker creates a new EnrollmentWorker. portal may be nil when
// the session is already on the registration page.
func NewEnrollmentWorker(
	portal Portal,
	window WindowAwaiter,
	attempter Attempter,
	clk clock.Clock,
	cfg RunConfig,
	events EventSink,
	m *metrics.Metrics,
	log zerolog.Logger,
) *EnrollmentWorker {
	return &EnrollmentWorker{
		portal:    portal,
		window:    window,
		attempter: attempter,
		clock:     clk,
		cfg:       cfg,
		events:    events,
		metrics:   m,
		log:       log.With().Str("component", config.WorkerKey.EnrollmentWorker).Logger(),
	}
}

type run struct {
	id     string
	report model.RunReport
}

// Run resolves the registration window once, then attempts every goal in
// FIFO order, pass after pass, until all are confirmed, the deadline passes
// or ctx is cancelled. An attempt already in flight when ctx is cancelled
// is allowed to finish.
func (w *EnrollmentWorker) Run(ctx context.Context, runID string, goals []model.RegistrationGoal) model.RunReport {
	r := &run{id: runID}
	r.report = model.RunReport{
		Total:     len(goals),
		Confirmed: []model.RegistrationGoal{},
		Pending:   append([]model.RegistrationGoal{}, goals...),
		Dropped:   []model.RegistrationGoal{},
		StartedAt: w.clock.Now(),
	}
	w.metrics.ActiveRun.Set(1)
	defer w.metrics.ActiveRun.Set(0)

	w.emit(r, model.RunEvent{Type: model.EventRunStarted, Pending: len(goals),
		Message: fmt.Sprintf("Starting enrollment for %d shifts", len(goals))})

	if err := w.resolveWindow(ctx, r); err != nil {
		return w.finish(r, err)
	}
	return w.finish(r, w.roundRobin(ctx, r))
}

// resolveWindow opens the registration page and waits for it to open. The
// portal may put a Continue form between two closed checks.
func (w *EnrollmentWorker) resolveWindow(ctx context.Context, r *run) error {
	if w.portal != nil {
		if err := w.portal.OpenEnrollment(ctx); err != nil {
			return fmt.Errorf("open enrollment page: %w", err)
		}
	}
	if err := w.await(ctx, r); err != nil {
		return err
	}
	if w.portal == nil {
		return nil
	}
	continued, err := w.portal.ContinueEnrollment(ctx)
	if err != nil {
		return fmt.Errorf("continue enrollment: %w", err)
	}
	if continued {
		return w.await(ctx, r)
	}
	return nil
}

func (w *EnrollmentWorker) await(ctx context.Context, r *run) error {
	began := w.clock.Now()
	win, err := w.window.Await(ctx)
	w.metrics.WindowWait.Observe(w.clock.Now().Sub(began).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			w.emit(r, model.RunEvent{Type: model.EventWindowFailed, Window: &win, Message: err.Error()})
		}
		return err
	}
	w.emit(r, model.RunEvent{Type: model.EventWindowOpen, Window: &win, Message: "Registration is open"})
	return nil
}

func (w *EnrollmentWorker) roundRobin(ctx context.Context, r *run) error {
	deadline := w.clock.Now().Add(w.cfg.Deadline)

	for len(r.report.Pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !w.clock.Now().Before(deadline) {
			return nil
		}

		r.report.Passes++
		w.metrics.Passes.Inc()
		pending := r.report.Pending
		var remaining []model.RegistrationGoal

		for i, goal := range pending {
			if err := ctx.Err(); err != nil {
				r.report.Pending = append(remaining, pending[i:]...)
				return err
			}
			left := deadline.Sub(w.clock.Now())
			if left <= 0 {
				r.report.Pending = append(remaining, pending[i:]...)
				return nil
			}
			if goal.ShiftName == "" {
				r.report.Dropped = append(r.report.Dropped, goal)
				w.metrics.GoalsDropped.Inc()
				w.emit(r, model.RunEvent{Type: model.EventGoalDropped, Goal: &goal,
					Message: fmt.Sprintf("Missing shift selection for %s (%s). Skipping.", goal.CourseName, goal.Category)})
				continue
			}
			if w.attempt(ctx, r, goal, min(w.cfg.RetryWindow, left)) {
				r.report.Confirmed = append(r.report.Confirmed, goal)
				continue
			}
			remaining = append(remaining, goal)
		}
		r.report.Pending = remaining

		if len(remaining) == 0 {
			return nil
		}
		w.emit(r, model.RunEvent{Type: model.EventPassCompleted, Pending: len(remaining),
			Message: fmt.Sprintf("Round robin retry: %d shifts still pending...", len(remaining))})

		pause := min(w.cfg.PassPause, deadline.Sub(w.clock.Now()))
		if pause > 0 {
			if err := w.clock.Sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *EnrollmentWorker) attempt(ctx context.Context, r *run, goal model.RegistrationGoal, window time.Duration) bool {
	r.report.Attempts++
	w.emit(r, model.RunEvent{Type: model.EventAttempt, Goal: &goal,
		Message: fmt.Sprintf("Searching for %s (%s) %s...", goal.CourseName, goal.Category, goal.ShiftName)})

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), window+attemptGrace)
	defer cancel()

	ok, err := w.attempter.Attempt(actx, goal, AttemptOptions{RetryWindow: window, RetryInterval: w.cfg.RetryInterval})
	switch {
	case err != nil:
		w.metrics.Attempts.WithLabelValues(metrics.ResultError).Inc()
		w.log.Warn().Err(err).Str("course", goal.CourseName).Str("shift", goal.ShiftName).Msg("Attempt failed")
		return false
	case !ok:
		w.metrics.Attempts.WithLabelValues(metrics.ResultFailure).Inc()
		return false
	}

	w.metrics.Attempts.WithLabelValues(metrics.ResultSuccess).Inc()
	w.metrics.GoalsConfirmed.Inc()
	w.emit(r, model.RunEvent{Type: model.EventGoalConfirmed, Goal: &goal,
		Message: fmt.Sprintf("Enrolled in %s (%s) %s", goal.CourseName, goal.Category, goal.ShiftName)})
	return true
}

func (w *EnrollmentWorker) finish(r *run, err error) model.RunReport {
	rep := &r.report
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rep.Outcome = model.OutcomeCancelled
	case errors.Is(err, ErrWindowUnknown), errors.Is(err, ErrWindowTimeout):
		rep.Outcome = model.OutcomeWindowFailed
		rep.Error = err.Error()
	case err != nil:
		rep.Outcome = model.OutcomeAborted
		rep.Error = err.Error()
	case len(rep.Pending) == 0:
		rep.Outcome = model.OutcomeCompleted
	default:
		rep.Outcome = model.OutcomeDeadline
	}
	if rep.Pending == nil {
		rep.Pending = []model.RegistrationGoal{}
	}
	rep.FinishedAt = w.clock.Now()
	w.metrics.Runs.WithLabelValues(string(rep.Outcome)).Inc()

	final := *rep
	w.emit(r, model.RunEvent{Type: model.EventRunFinished, Report: &final, Pending: len(rep.Pending), Message: Summary(final)})
	return final
}

// Summary renders the one-line run summary shown to the operator.
func Summary(rep model.RunReport) string {
	msg := fmt.Sprintf("Done! %d/%d enrolled", len(rep.Confirmed), rep.Total)
	if len(rep.Pending) > 0 {
		msg += fmt.Sprintf(" (pending: %d)", len(rep.Pending))
	}
	if len(rep.Dropped) > 0 {
		msg += fmt.Sprintf(" (dropped: %d)", len(rep.Dropped))
	}
	switch rep.Outcome {
	case model.OutcomeCancelled:
		msg += " - cancelled"
	case model.OutcomeWindowFailed, model.OutcomeAborted:
		msg += " - " + rep.Error
	}
	return msg
}

func (w *EnrollmentWorker) emit(r *run, ev model.RunEvent) {
	ev.RunID = r.id
	ev.At = w.clock.Now()

	var e *zerolog.Event
	switch ev.Type {
	case model.EventWindowFailed, model.EventGoalDropped:
		e = w.log.Error()
	case model.EventPassCompleted:
		e = w.log.Warn()
	default:
		e = w.log.Info()
	}
	e = e.Str("run_id", r.id).Str("event", string(ev.Type))
	if ev.Goal != nil {
		e = e.Str("course", ev.Goal.CourseName).Str("shift", ev.Goal.ShiftName)
	}
	e.Msg(ev.Message)

	if w.events != nil {
		w.events.Publish(ev)
	}
}
