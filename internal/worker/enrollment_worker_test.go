package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/model"
)

type stubWindow struct {
	calls int
	err   error
}

func (s *stubWindow) Await(ctx context.Context) (model.Window, error) {
	s.calls++
	if s.err != nil {
		return model.Window{State: model.WindowClosedUnknown}, s.err
	}
	return model.Window{State: model.WindowOpen}, ctx.Err()
}

type stubPortal struct {
	opened    int
	continued bool
	openErr   error
}

func (p *stubPortal) OpenEnrollment(context.Context) error {
	p.opened++
	return p.openErr
}

func (p *stubPortal) ContinueEnrollment(context.Context) (bool, error) {
	return p.continued, nil
}

// scriptedAttempter succeeds for a goal on its n-th attempt, as given by
// succeedOn. Each attempt costs up to cost of virtual time, never more than
// its retry window.
type scriptedAttempter struct {
	mu        sync.Mutex
	clock     *clock.Fake
	cost      time.Duration
	succeedOn map[string]int
	calls     []string
	counts    map[string]int
	onAttempt func(goal model.RegistrationGoal, ctx context.Context)
	lastOpts  AttemptOptions
}

func newScriptedAttempter(clk *clock.Fake, succeedOn map[string]int) *scriptedAttempter {
	return &scriptedAttempter{clock: clk, succeedOn: succeedOn, counts: make(map[string]int)}
}

func (a *scriptedAttempter) Attempt(ctx context.Context, goal model.RegistrationGoal, opts AttemptOptions) (bool, error) {
	a.mu.Lock()
	a.calls = append(a.calls, goal.ShiftName)
	a.counts[goal.ShiftName]++
	n := a.counts[goal.ShiftName]
	a.lastOpts = opts
	hook := a.onAttempt
	a.mu.Unlock()

	if hook != nil {
		hook(goal, ctx)
	}
	if a.cost > 0 {
		a.clock.Advance(min(a.cost, opts.RetryWindow))
	}
	want, ok := a.succeedOn[goal.ShiftName]
	return ok && n >= want, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.RunEvent
}

func (s *recordingSink) Publish(ev model.RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []model.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func goalsN(n int) []model.RegistrationGoal {
	goals := make([]model.RegistrationGoal, n)
	for i := range goals {
		goals[i] = model.RegistrationGoal{
			CourseName: fmt.Sprintf("Course %d", i+1),
			Category:   model.CategoryTheory,
			ShiftName:  fmt.Sprintf("S%d", i+1),
		}
	}
	return goals
}

func testRunConfig() RunConfig {
	return RunConfig{
		Deadline:      20 * time.Minute,
		RetryWindow:   60 * time.Second,
		RetryInterval: 10 * time.Second,
		PassPause:     2 * time.Second,
	}
}

type harness struct {
	clock     *clock.Fake
	portal    *stubPortal
	window    *stubWindow
	attempter *scriptedAttempter
	sink      *recordingSink
	metrics   *metrics.Metrics
	worker    *EnrollmentWorker
}

func newHarness(cfg RunConfig, succeedOn map[string]int) *harness {
	clk := clock.NewFake(nineAM)
	h := &harness{
		clock:     clk,
		portal:    &stubPortal{},
		window:    &stubWindow{},
		attempter: newScriptedAttempter(clk, succeedOn),
		sink:      &recordingSink{},
		metrics:   metrics.Discard(),
	}
	h.worker = NewEnrollmentWorker(h.portal, h.window, h.attempter, clk, cfg, h.sink, h.metrics, zerolog.Nop())
	return h
}

func TestRunConfirmsAllInOnePass(t *testing.T) {
	h := newHarness(testRunConfig(), map[string]int{"S1": 1, "S2": 1, "S3": 1})

	rep := h.worker.Run(context.Background(), "run-1", goalsN(3))

	assert.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Len(t, rep.Confirmed, 3)
	assert.Empty(t, rep.Pending)
	assert.Equal(t, 1, rep.Passes)
	assert.Equal(t, []string{"S1", "S2", "S3"}, h.attempter.calls)
	assert.Equal(t, "Done! 3/3 enrolled", Summary(rep))
	assert.Equal(t, 1, h.portal.opened)
	assert.Equal(t, 1, h.window.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.GoalsConfirmed))

	types := h.sink.types()
	assert.Equal(t, model.EventRunStarted, types[0])
	assert.Equal(t, model.EventRunFinished, types[len(types)-1])
}

func TestRunRoundRobin(t *testing.T) {
	const n = 4
	succeedOn := map[string]int{}
	for k := 1; k <= n; k++ {
		succeedOn[fmt.Sprintf("S%d", k)] = k
	}
	h := newHarness(testRunConfig(), succeedOn)

	rep := h.worker.Run(context.Background(), "run-rr", goalsN(n))

	require.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, n, rep.Passes)
	assert.Len(t, rep.Confirmed, n)
	// every pending goal is tried once per pass, in queue order
	assert.Equal(t, []string{
		"S1", "S2", "S3", "S4",
		"S2", "S3", "S4",
		"S3", "S4",
		"S4",
	}, h.attempter.calls)
	assert.Equal(t, []string{"S1", "S2", "S3", "S4"}, []string{
		rep.Confirmed[0].ShiftName, rep.Confirmed[1].ShiftName, rep.Confirmed[2].ShiftName, rep.Confirmed[3].ShiftName,
	})
}

func TestRunDeadline(t *testing.T) {
	cfg := testRunConfig()
	cfg.Deadline = 5 * time.Minute
	h := newHarness(cfg, nil)
	h.attempter.cost = 7 * time.Second
	goals := goalsN(3)

	start := h.clock.Now()
	rep := h.worker.Run(context.Background(), "run-dl", goals)

	assert.Equal(t, model.OutcomeDeadline, rep.Outcome)
	assert.Equal(t, goals, rep.Pending)
	assert.Empty(t, rep.Confirmed)
	assert.False(t, h.clock.Now().After(start.Add(cfg.Deadline)), "ran past the deadline")
	assert.Equal(t, "Done! 0/3 enrolled (pending: 3)", Summary(rep))
	assert.LessOrEqual(t, h.attempter.lastOpts.RetryWindow, cfg.RetryWindow)
}

func TestRunRetryWindowShrinksNearDeadline(t *testing.T) {
	cfg := testRunConfig()
	cfg.Deadline = 30 * time.Second
	h := newHarness(cfg, nil)
	h.attempter.cost = 25 * time.Second

	h.worker.Run(context.Background(), "run-shrink", goalsN(2))

	assert.Equal(t, 5*time.Second, h.attempter.lastOpts.RetryWindow)
	assert.Equal(t, cfg.RetryInterval, h.attempter.lastOpts.RetryInterval)
}

func TestRunCancellation(t *testing.T) {
	h := newHarness(testRunConfig(), map[string]int{"S1": 1})
	ctx, cancel := context.WithCancel(context.Background())
	var attemptCtxErr error
	h.attempter.onAttempt = func(goal model.RegistrationGoal, actx context.Context) {
		if goal.ShiftName == "S1" {
			cancel()
			attemptCtxErr = actx.Err()
		}
	}
	goals := goalsN(3)

	rep := h.worker.Run(ctx, "run-cancel", goals)

	assert.Equal(t, model.OutcomeCancelled, rep.Outcome)
	assert.True(t, rep.Cancelled())
	assert.NoError(t, attemptCtxErr, "in-flight attempt must not see the cancellation")
	assert.Equal(t, []string{"S1"}, h.attempter.calls)
	require.Len(t, rep.Confirmed, 1)
	assert.Equal(t, goals[1:], rep.Pending)
	assert.Empty(t, rep.Error)
}

func TestRunCancelledBetweenPasses(t *testing.T) {
	h := newHarness(testRunConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.clock.OnSleep = func(time.Time) { cancel() }

	rep := h.worker.Run(ctx, "run-cancel-2", goalsN(2))

	assert.Equal(t, model.OutcomeCancelled, rep.Outcome)
	assert.Equal(t, 1, rep.Passes)
	assert.Len(t, rep.Pending, 2)
}

func TestRunWindowFailure(t *testing.T) {
	h := newHarness(testRunConfig(), map[string]int{"S1": 1})
	h.window.err = ErrWindowUnknown

	rep := h.worker.Run(context.Background(), "run-wf", goalsN(2))

	assert.Equal(t, model.OutcomeWindowFailed, rep.Outcome)
	assert.Empty(t, h.attempter.calls)
	assert.Len(t, rep.Pending, 2)
	assert.Contains(t, h.sink.types(), model.EventWindowFailed)
	assert.Contains(t, Summary(rep), ErrWindowUnknown.Error())
}

func TestRunPortalError(t *testing.T) {
	h := newHarness(testRunConfig(), nil)
	h.portal.openErr = errors.New("session expired")

	rep := h.worker.Run(context.Background(), "run-pe", goalsN(1))

	assert.Equal(t, model.OutcomeAborted, rep.Outcome)
	assert.Contains(t, rep.Error, "session expired")
	assert.Zero(t, h.window.calls)
}

func TestRunContinueFormChecksWindowAgain(t *testing.T) {
	h := newHarness(testRunConfig(), map[string]int{"S1": 1})
	h.portal.continued = true

	rep := h.worker.Run(context.Background(), "run-cf", goalsN(1))

	assert.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, 2, h.window.calls)
}

func TestRunDropsGoalsWithoutShift(t *testing.T) {
	h := newHarness(testRunConfig(), map[string]int{"S2": 2})
	goals := goalsN(2)
	goals[0].ShiftName = ""

	rep := h.worker.Run(context.Background(), "run-drop", goals)

	assert.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, []model.RegistrationGoal{goals[0]}, rep.Dropped)
	assert.Equal(t, []string{"S2", "S2"}, h.attempter.calls)
	assert.Contains(t, h.sink.types(), model.EventGoalDropped)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GoalsDropped))
	assert.Equal(t, "Done! 1/2 enrolled (dropped: 1)", Summary(rep))
}

func TestRunAllGoalsDropped(t *testing.T) {
	h := newHarness(testRunConfig(), nil)
	goals := goalsN(1)
	goals[0].ShiftName = ""

	rep := h.worker.Run(context.Background(), "run-drop-all", goals)

	assert.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Empty(t, h.attempter.calls)
	assert.Equal(t, "Done! 0/1 enrolled (dropped: 1)", Summary(rep))
}

func TestRunEmptyQueue(t *testing.T) {
	h := newHarness(testRunConfig(), nil)
	rep := h.worker.Run(context.Background(), "run-empty", nil)
	assert.Equal(t, model.OutcomeCompleted, rep.Outcome)
	assert.Zero(t, rep.Passes)
	assert.Equal(t, "Done! 0/0 enrolled", Summary(rep))
}
