package model

import "time"

// WindowState is the registration window as seen by the monitor.
type WindowState string

const (
	WindowOpen          WindowState = "OPEN"
	WindowClosedFuture  WindowState = "CLOSED_FUTURE"
	WindowClosedUnknown WindowState = "CLOSED_UNKNOWN"
	WindowTimedOut      WindowState = "TIMED_OUT"
)

// Window is the advertised registration window parsed from portal text.
type Window struct {
	State WindowState `json:"state"`
	Start *time.Time  `json:"start,omitempty"`
	End   *time.Time  `json:"end,omitempty"`
	Term  string      `json:"term,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// RunOutcome is the terminal result of an enrollment run.
type RunOutcome string

const (
	OutcomeCompleted    RunOutcome = "completed"
	OutcomeDeadline     RunOutcome = "deadline"
	OutcomeCancelled    RunOutcome = "cancelled"
	OutcomeWindowFailed RunOutcome = "window_failed"
	OutcomeAborted      RunOutcome = "aborted"
)

// RunReport is the summary produced at the end of every run.
type RunReport struct {
	Outcome    RunOutcome         `json:"outcome"`
	Total      int                `json:"total"`
	Confirmed  []RegistrationGoal `json:"confirmed"`
	Pending    []RegistrationGoal `json:"pending"`
	Dropped    []RegistrationGoal `json:"dropped"`
	Passes     int                `json:"passes"`
	Attempts   int                `json:"attempts"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Cancelled reports whether the run stopped on operator request.
func (r RunReport) Cancelled() bool {
	return r.Outcome == OutcomeCancelled
}

// EventType names a run event.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventWindowWait    EventType = "window_wait"
	EventWindowOpen    EventType = "window_open"
	EventWindowFailed  EventType = "window_failed"
	EventAttempt       EventType = "attempt"
	EventGoalConfirmed EventType = "goal_confirmed"
	EventGoalDropped   EventType = "goal_dropped"
	EventPassCompleted EventType = "pass_completed"
	EventRunFinished   EventType = "run_finished"
)

// RunEvent is a progress notification emitted by the enrollment worker.
type RunEvent struct {
	RunID   string            `json:"run_id"`
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Message string            `json:"message"`
	Goal    *RegistrationGoal `json:"goal,omitempty"`
	Window  *Window           `json:"window,omitempty"`
	Pending int               `json:"pending,omitempty"`
	Report  *RunReport        `json:"report,omitempty"`
}

// RunPhase is the lifecycle phase of the current run.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseScheduled RunPhase = "scheduled"
	PhaseRunning   RunPhase = "running"
	PhaseFinished  RunPhase = "finished"
)

// RunStatus is the externally visible state of the enrollment service.
type RunStatus struct {
	ID          string     `json:"id,omitempty"`
	Phase       RunPhase   `json:"phase"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Goals       int        `json:"goals"`
	LastReport  *RunReport `json:"last_report,omitempty"`
}
