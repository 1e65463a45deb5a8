package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/events"
	"github.com/fenixctl/enroller/internal/fenix"
	"github.com/fenixctl/enroller/internal/handler"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/repository"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
	ws "github.com/fenixctl/enroller/internal/websocket"
	"github.com/fenixctl/enroller/internal/worker"
)

const operatorPassword = "s3cret"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type stubSource struct{}

func (stubSource) Degrees(context.Context, string, string) ([]model.Degree, error) {
	return []model.Degree{
		{ID: "2", Name: "Engenharia Informática", Acronym: "MEIC", TypeName: "Mestrado"},
		{ID: "1", Name: "Engenharia Informática", Acronym: "LEIC", TypeName: "Licenciatura"},
	}, nil
}

func (stubSource) Courses(context.Context, string, string, string) ([]fenix.CourseRef, error) {
	return []fenix.CourseRef{
		{ID: "c1", Name: "Redes", Acronym: "RC", AcademicTerm: "1 Semestre 2025/2026"},
		{ID: "c2", Name: "Calculus", Acronym: "CAL", AcademicTerm: "1 Semestre 2025/2026"},
	}, nil
}

func (stubSource) Schedule(_ context.Context, courseID, _ string) (fenix.Schedule, error) {
	switch courseID {
	case "c1":
		return fenix.Schedule{Shifts: []model.Shift{
			{Name: "RC-L01", Categories: []model.Category{model.CategoryLab},
				Lessons: []model.Lesson{{Day: time.Monday, Start: model.NewClockTime(9, 0), End: model.NewClockTime(10, 30)}}},
		}}, nil
	case "c2":
		return fenix.Schedule{Shifts: []model.Shift{
			{Name: "CAL-T01", Categories: []model.Category{model.CategoryTheory},
				Lessons: []model.Lesson{{Day: time.Monday, Start: model.NewClockTime(10, 0), End: model.NewClockTime(11, 0)}}},
		}}, nil
	}
	return fenix.Schedule{}, fenix.ErrNotFound
}

func (stubSource) CourseDetail(context.Context, string, string) (fenix.CourseDetail, error) {
	return fenix.CourseDetail{}, nil
}

// idleSession never confirms anything.
type idleSession struct{}

func (idleSession) OpenEnrollment(context.Context) error { return nil }
func (idleSession) ContinueEnrollment(context.Context) (bool, error) { return false, nil }
func (idleSession) PageText(context.Context) (string, error) { return "", nil }
func (idleSession) URL(context.Context) (string, error) { return "", nil }
func (idleSession) Refresh(context.Context) error { return nil }
func (idleSession) SetCaptureDir(string) {}
func (idleSession) Close() {}
func (idleSession) Attempt(context.Context, model.RegistrationGoal, worker.AttemptOptions) (bool, error) {
	return false, nil
}

type fixture struct {
	engine *gin.Engine
	bus    *events.MemoryBus
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	cfg := config.Defaults()
	cfg.GinMode = gin.TestMode
	cfg.BcryptCost = bcrypt.MinCost
	hash, err := bcrypt.GenerateFromPassword([]byte(operatorPassword), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.ControlPasswordHash = string(hash)
	cfg.Browser.CaptureDir = t.TempDir()

	store, err := repository.NewFilePreferenceRepository(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	m := metrics.Discard()
	prefs := service.NewPreferenceService(store, cfg, clock.Real(), log)
	offerings := service.NewOfferingService(stubSource{}, nil, repository.NewMemoryOfferingCache(clock.Real()), cfg, m, log)
	schedules := service.NewScheduleService(offerings, prefs, log)
	prefs.WithQueueCheck(schedules.CheckQueue)
	portal := service.NewPortalService(func(context.Context, string, string) (service.PortalSession, error) {
		return idleSession{}, nil
	}, log)
	bus := events.NewMemoryBus()
	runs := service.NewEnrollmentService(context.Background(), prefs, portal, bus, clock.Real(), cfg, m, log)
	auth := service.NewAuthService(cfg)

	handlers := &Handlers{
		Auth:       handler.NewAuthHandler(auth, log),
		Catalogue:  handler.NewCatalogueHandler(offerings, prefs),
		Preference: handler.NewPreferenceHandler(prefs),
		Schedule:   handler.NewScheduleHandler(schedules),
		Portal:     handler.NewPortalHandler(portal, log),
		Enrollment: handler.NewEnrollmentHandler(runs),
		WS:         handler.NewWSHandler(bus, runs, log, nil),
		System:     handler.NewSystemHandler(nil, runs, portal, log),
	}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})

	f := &fixture{engine: SetupRouter(auth, handlers, nil, metricsHandler, cfg, log), bus: bus}
	f.token, _, err = auth.GenerateToken()
	require.NoError(t, err)
	return f
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Detail string            `json:"detail"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, auth bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")

	rec, env = f.do(t, http.MethodGet, "/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errCode(env))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{"valid", model.LoginRequest{Password: operatorPassword}, http.StatusOK, ""},
		{"wrong password", model.LoginRequest{Password: "guess"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"missing password", map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, http.MethodPost, "/api/v1/auth/login", tt.body, false)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errCode(env))
			if tt.wantErr == "" {
				var resp model.LoginResponse
				require.NoError(t, json.Unmarshal(env.Data, &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/goals", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REQUIRED", errCode(env))

	rec, _ = f.do(t, http.MethodGet, "/api/v1/goals", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogue(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/degrees", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=300")
	var degrees struct {
		Degrees []model.Degree `json:"degrees"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &degrees))
	require.Len(t, degrees.Degrees, 2)
	assert.Equal(t, "LEIC", degrees.Degrees[0].Acronym)

	rec, env = f.do(t, http.MethodGet, "/api/v1/degrees/1/offerings?q=redes", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Offerings  []model.Offering `json:"offerings"`
		Total      int              `json:"total"`
		Unfiltered int              `json:"unfiltered"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, 2, listing.Unfiltered)
	assert.Equal(t, "c1", listing.Offerings[0].ID)

	rec, env = f.do(t, http.MethodGet, "/api/v1/degrees/1/offerings?semester=3", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))
}

func TestGoalQueue(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/goals",
		map[string]string{"course": "Redes", "shift_type": "XX", "shift_name": "RC-L01"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errCode(env))
	assert.Contains(t, env.Error.Fields, "shift_type")

	goal := model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L01"}
	rec, _ = f.do(t, http.MethodPost, "/api/v1/goals", goal, true)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = f.do(t, http.MethodDelete, "/api/v1/goals/5", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "INVALID_INDEX", errCode(env))

	rec, env = f.do(t, http.MethodDelete, "/api/v1/goals/first", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INDEX", errCode(env))

	rec, env = f.do(t, http.MethodDelete, "/api/v1/goals/0", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":0`)
}

func TestScheduleConfirmConflict(t *testing.T) {
	f := newFixture(t)

	degree := "1"
	rec, _ := f.do(t, http.MethodPut, "/api/v1/preferences", model.UpdatePreferencesRequest{DegreeID: &degree}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/v1/schedule/confirm", model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1", "c2"},
		Choices: model.Choices{
			"c1": {model.CategoryLab: "RC-L01"},
			"c2": {model.CategoryTheory: "CAL-T01"},
		},
	}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "SHIFT_CONFLICT", errCode(env))
	assert.Contains(t, env.Error.Detail, "CAL-T01")

	rec, env = f.do(t, http.MethodPost, "/api/v1/schedule/confirm", model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1"},
		Choices:   model.Choices{"c1": {model.CategoryLab: "RC-L09"}},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_SHIFT", errCode(env))
}

func TestAddGoalConflictingWithQueue(t *testing.T) {
	f := newFixture(t)

	degree := "1"
	rec, _ := f.do(t, http.MethodPut, "/api/v1/preferences", model.UpdatePreferencesRequest{DegreeID: &degree}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/goals",
		model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L01"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/v1/goals",
		model.RegistrationGoal{CourseName: "Calculus", Category: model.CategoryTheory, ShiftName: "CAL-T01"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "SHIFT_CONFLICT", errCode(env))
	assert.Contains(t, env.Error.Detail, "RC-L01")

	rec, env = f.do(t, http.MethodGet, "/api/v1/goals", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestEnrollmentPreconditions(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/enrollment/start", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NO_GOALS", errCode(env))

	goal := model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L01"}
	rec, _ = f.do(t, http.MethodPost, "/api/v1/goals", goal, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/enrollment/start", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PORTAL_NOT_READY", errCode(env))

	rec, env = f.do(t, http.MethodPost, "/api/v1/enrollment/start", model.StartRunRequest{At: "25:00:00"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))

	rec, env = f.do(t, http.MethodPost, "/api/v1/enrollment/cancel", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_ACTIVE_RUN", errCode(env))

	rec, env = f.do(t, http.MethodGet, "/api/v1/enrollment/status", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"phase":"idle"`)
}

func TestPortalLogin(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/v1/portal/login", model.PortalLoginRequest{Username: "ist1234", Password: "pw"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"logged_in":true`)
	assert.Contains(t, string(env.Data), `"username":"ist1234"`)

	rec, env = f.do(t, http.MethodPost, "/api/v1/portal/login", map[string]string{"username": "ist1234"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))
}

func TestEventsWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/events?token=" + f.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var greeting ws.StatusMessage
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, ws.EventStatus, greeting.Event)
	assert.Equal(t, model.PhaseIdle, greeting.Status.Phase)

	require.NoError(t, conn.WriteJSON(ws.RequestEnvelope{Action: ws.ActionPing}))
	var pong ws.SimpleResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.EventPong, pong.Event)

	f.bus.Publish(model.RunEvent{RunID: "r1", Type: model.EventAttempt, Message: "Searching for Redes (L) RC-L01..."})
	var ev ws.RunEventMessage
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ws.EventRun, ev.Event)
	assert.Equal(t, "r1", ev.Run.RunID)
	assert.Equal(t, model.EventAttempt, ev.Run.Type)

	require.NoError(t, conn.WriteJSON(ws.RequestEnvelope{Action: ws.ActionCancel}))
	var refused ws.ErrorResponse
	require.NoError(t, conn.ReadJSON(&refused))
	assert.Equal(t, ws.EventError, refused.Event)
	assert.Equal(t, service.ErrNoActiveRun.Error(), refused.Error)
}

func TestEventsWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
