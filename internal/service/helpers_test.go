package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/fenix"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/worker"
)

var nineAM = time.Date(2025, 9, 10, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Browser.CaptureDir = t.TempDir()
	cfg.Run.Deadline = 5 * time.Minute
	return cfg
}

// memStore keeps the preference record in memory.
type memStore struct {
	mu    sync.Mutex
	prefs *model.Preferences
	saves int
	err   error
}

func (m *memStore) Load(context.Context) (*model.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.prefs == nil {
		return &model.Preferences{}, nil
	}
	cp := *m.prefs
	cp.Goals = append([]model.RegistrationGoal{}, m.prefs.Goals...)
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, p *model.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Goals = append([]model.RegistrationGoal{}, p.Goals...)
	m.prefs = &cp
	m.saves++
	return nil
}

func newPrefs(t *testing.T, store *memStore, clk clock.Clock) *PreferenceService {
	t.Helper()
	return NewPreferenceService(store, testConfig(t), clk, zerolog.Nop())
}

// fakeSession is a portal session on an open registration page.
type fakeSession struct {
	mu         sync.Mutex
	page       string
	succeed    map[string]bool
	attempts   []string
	captureDir string
	closed     bool
	onAttempt  func(goal model.RegistrationGoal)
}

func newFakeSession() *fakeSession {
	return &fakeSession{page: "Inscrição em turnos", succeed: map[string]bool{}}
}

func (f *fakeSession) OpenEnrollment(context.Context) error { return nil }

func (f *fakeSession) ContinueEnrollment(context.Context) (bool, error) { return false, nil }

func (f *fakeSession) PageText(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page, nil
}

func (f *fakeSession) URL(context.Context) (string, error) {
	return "https://fenix.example/student/enroll", nil
}

func (f *fakeSession) Refresh(context.Context) error { return nil }

func (f *fakeSession) Attempt(_ context.Context, goal model.RegistrationGoal, _ worker.AttemptOptions) (bool, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, goal.ShiftName)
	ok := f.succeed[goal.ShiftName]
	hook := f.onAttempt
	f.mu.Unlock()
	if hook != nil {
		hook(goal)
	}
	return ok, nil
}

func (f *fakeSession) SetCaptureDir(dir string) {
	f.mu.Lock()
	f.captureDir = dir
	f.mu.Unlock()
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func openerFor(s *fakeSession) SessionOpener {
	return func(context.Context, string, string) (PortalSession, error) { return s, nil }
}

// fakeSource serves canned courses and schedules.
type fakeSource struct {
	mu          sync.Mutex
	courses     []fenix.CourseRef
	schedules   map[string]fenix.Schedule
	details     map[string]string
	courseCalls int
}

func (f *fakeSource) Degrees(context.Context, string, string) ([]model.Degree, error) {
	return []model.Degree{
		{ID: "2", Name: "Engenharia Informática", Acronym: "MEIC", TypeName: "Mestrado"},
		{ID: "1", Name: "Engenharia Informática", Acronym: "LEIC", TypeName: "Licenciatura"},
	}, nil
}

func (f *fakeSource) Courses(context.Context, string, string, string) ([]fenix.CourseRef, error) {
	f.mu.Lock()
	f.courseCalls++
	f.mu.Unlock()
	return f.courses, nil
}

func (f *fakeSource) Schedule(_ context.Context, courseID, _ string) (fenix.Schedule, error) {
	s, ok := f.schedules[courseID]
	if !ok {
		return fenix.Schedule{}, fenix.ErrNotFound
	}
	return s, nil
}

func (f *fakeSource) CourseDetail(_ context.Context, courseID, _ string) (fenix.CourseDetail, error) {
	return fenix.CourseDetail{Name: f.details[courseID]}, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courseCalls
}

type staticCurriculum string

func (c staticCurriculum) Fetch(context.Context, string, string) (string, error) {
	return string(c), nil
}

func lesson(day time.Weekday, from, to string) model.Lesson {
	start, _ := model.ParseClockTime(from)
	end, _ := model.ParseClockTime(to)
	return model.Lesson{Day: day, Start: start, End: end}
}

func shift(name string, cat model.Category, lessons ...model.Lesson) model.Shift {
	return model.Shift{Name: name, Categories: []model.Category{cat}, Lessons: lessons}
}
