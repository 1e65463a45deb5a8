package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/model"
)

var (
	ErrWindowUnknown = errors.New("registration is closed and no window could be parsed")
	ErrWindowTimeout = errors.New("registration window did not open within the polling bound")
)

var closedMarkers = []string{
	"enrollment period closed",
	"período de inscrições fechado",
	"periodo de inscricoes fechado",
}

var windowPattern = regexp.MustCompile(
	`(?i)(?:Enrollment period closed|Período de inscrições fechado|Periodo de inscricoes fechado):\s*` +
		`(\d{2}/\d{2}/\d{4})\s*(\d{2}:\d{2})\s*-\s*(\d{2}/\d{2}/\d{4})\s*(\d{2}:\d{2})(?:\s*\(([^)]+)\))?`)

const windowLayout = "02/01/2006 15:04"

// PageOracle reads and refreshes the portal page the session is on.
type PageOracle interface {
	PageText(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// WindowNotifier is told once when a closed window with a known future
// start is first seen.
type WindowNotifier interface {
	NotifyWindowWait(start time.Time, text string)
}

// NotifierFunc adapts a function to WindowNotifier.
type NotifierFunc func(start time.Time, text string)

func (f NotifierFunc) NotifyWindowWait(start time.Time, text string) { f(start, text) }

// WindowConfig bounds the monitor's waits.
type WindowConfig struct {
	MaxWait         time.Duration
	PollInterval    time.Duration
	FailedPollSleep time.Duration
	MaxSleepStep    time.Duration
	MinSleepStep    time.Duration
	// Location interprets the portal's timestamps. Nil means time.Local.
	Location *time.Location
}

// WindowConfigFrom maps application config onto the monitor's settings.
func WindowConfigFrom(c config.WindowConfig) WindowConfig {
	return WindowConfig{
		MaxWait:         c.MaxWait,
		PollInterval:    c.PollInterval,
		FailedPollSleep: c.FailedPollSleep,
		MaxSleepStep:    c.MaxSleepStep,
		MinSleepStep:    c.MinSleepStep,
	}
}

// WindowMonitor waits out a closed registration window.
type WindowMonitor struct {
	oracle   PageOracle
	clock    clock.Clock
	cfg      WindowConfig
	notifier WindowNotifier
	log      zerolog.Logger

	notified map[int64]bool
}

// NewWindowMonitor creates a monitor. notifier may be nil.
func NewWindowMonitor(oracle PageOracle, clk clock.Clock, cfg WindowConfig, notifier WindowNotifier, log zerolog.Logger) *WindowMonitor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &WindowMonitor{
		oracle:   oracle,
		clock:    clk,
		cfg:      cfg,
		notifier: notifier,
		log:      log.With().Str("component", config.WorkerKey.WindowMonitor).Logger(),
		notified: make(map[int64]bool),
	}
}

// IsClosed reports whether page text carries the closed-registration marker.
func IsClosed(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range closedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ParseWindow extracts the advertised window from a closed-registration
// message. ok is false when no timestamps can be recovered.
func ParseWindow(text string, loc *time.Location) (w model.Window, ok bool) {
	m := windowPattern.FindStringSubmatch(text)
	if m == nil {
		return model.Window{}, false
	}
	start, err := time.ParseInLocation(windowLayout, m[1]+" "+m[2], loc)
	if err != nil {
		return model.Window{}, false
	}
	end, err := time.ParseInLocation(windowLayout, m[3]+" "+m[4], loc)
	if err != nil {
		return model.Window{}, false
	}

	w = model.Window{Start: &start, End: &end, Term: strings.TrimSpace(m[5])}
	w.Text = fmt.Sprintf("Enrollment period closed: %s %s - %s %s", m[1], m[2], m[3], m[4])
	if w.Term != "" {
		w.Text += " (" + w.Term + ")"
	}
	return w, true
}

// Inspect classifies the current page. A closed page with a parsable window
// is reported as CLOSED_FUTURE even when its start has just passed, since
// the portal may lag behind the advertised opening.
func (m *WindowMonitor) Inspect(ctx context.Context) (model.Window, error) {
	text, err := m.oracle.PageText(ctx)
	if err != nil {
		return model.Window{}, fmt.Errorf("read page: %w", err)
	}
	if !IsClosed(text) {
		return model.Window{State: model.WindowOpen}, nil
	}
	w, ok := ParseWindow(text, m.cfg.Location)
	if !ok {
		return model.Window{State: model.WindowClosedUnknown}, nil
	}
	w.State = model.WindowClosedFuture
	return w, nil
}

// Await blocks until registration is open. It sleeps in bounded steps until
// the advertised start, then refreshes the page at short intervals for at
// most MaxWait. Cancelling ctx aborts any wait with ctx.Err().
func (m *WindowMonitor) Await(ctx context.Context) (model.Window, error) {
	w, err := m.Inspect(ctx)
	if err != nil {
		return w, err
	}
	switch w.State {
	case model.WindowOpen:
		m.log.Info().Msg("Registration is open")
		return w, nil
	case model.WindowClosedUnknown:
		m.log.Error().Msg("Registration closed and the window could not be parsed")
		return w, ErrWindowUnknown
	}

	m.log.Warn().Str("window", w.Text).Msg("Registration closed, waiting for window")
	if err := m.sleepUntil(ctx, w); err != nil {
		return w, err
	}

	opened, err := m.poll(ctx)
	if err != nil {
		return w, err
	}
	if !opened {
		w.State = model.WindowTimedOut
		m.log.Error().Dur("max_wait", m.cfg.MaxWait).Msg("Registration did not open in time")
		return w, ErrWindowTimeout
	}
	m.log.Info().Msg("Registration window opened")
	return model.Window{State: model.WindowOpen, Start: w.Start, End: w.End, Term: w.Term, Text: w.Text}, nil
}

func (m *WindowMonitor) sleepUntil(ctx context.Context, w model.Window) error {
	start := *w.Start
	if !start.After(m.clock.Now()) {
		return nil
	}
	if key := start.Unix(); !m.notified[key] {
		m.notified[key] = true
		if m.notifier != nil {
			m.notifier.NotifyWindowWait(start, w.Text)
		}
	}

	for {
		remaining := start.Sub(m.clock.Now())
		if remaining <= 0 {
			return nil
		}
		step := min(m.cfg.MaxSleepStep, max(m.cfg.MinSleepStep, remaining))
		m.log.Debug().Dur("remaining", remaining).Dur("step", step).Msg("Waiting for window start")
		if err := m.clock.Sleep(ctx, step); err != nil {
			return err
		}
	}
}

// poll refreshes until the closed marker disappears or MaxWait elapses.
func (m *WindowMonitor) poll(ctx context.Context) (bool, error) {
	deadline := m.clock.Now().Add(m.cfg.MaxWait)
	for m.clock.Now().Before(deadline) {
		if err := m.oracle.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			m.log.Warn().Err(err).Msg("Refresh failed")
		}
		if err := m.clock.Sleep(ctx, m.cfg.PollInterval); err != nil {
			return false, err
		}

		text, err := m.oracle.PageText(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			m.log.Warn().Err(err).Msg("Could not read page while polling")
		} else if !IsClosed(text) {
			return true, nil
		}

		if err := m.clock.Sleep(ctx, m.cfg.FailedPollSleep); err != nil {
			return false, err
		}
	}
	return false, nil
}
