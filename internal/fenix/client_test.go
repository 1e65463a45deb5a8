package fenix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenixctl/enroller/internal/model"
)

const degreesJSON = `[
  {"id": "2761663971474", "name": "Engenharia Informática e de Computadores", "acronym": "LEIC-A",
   "degreeType": {"name": "Licenciatura"}, "campus": [{"name": "Alameda"}], "academicTerms": ["2025/2026"]},
  {"id": 2761663971475, "name": "Mestrado em Matemática", "acronym": "MMA", "type": "MASTER",
   "campus": ["Alameda"], "academicTerms": ["2024/2025", "2025/2026"]},
  {"id": "1", "name": "Old degree", "acronym": "OLD", "academicTerms": ["2019/2020"]}
]`

const coursesJSON = `[
  {"id": "1690460473000", "name": "Álgebra Linear", "acronym": "AL", "academicTerm": "1 Semestre 2025/2026",
   "campus": [{"name": "Alameda"}]},
  {"courseId": 42, "name": "Análise Matemática I", "acronym": "AMI", "academicTerm": "1 Semestre 2025/2026",
   "executionPeriod": {"name": "P2"}},
  {"name": "No id course"}
]`

const scheduleJSON = `{
  "courseLoads": [{"type": "TEORICA", "executionPeriod": "1 Semestre P1"}],
  "shifts": [
    {"name": "AL01", "types": ["TEORICA"], "lessons": [
      {"start": "2025-09-15 09:30:00", "end": "2025-09-15 11:00:00", "room": {"name": "GA1", "topLevelSpace": {"name": "Alameda"}}},
      {"start": "2025-09-22 09:30:00", "end": "2025-09-22 11:00:00", "room": {"name": "GA1", "topLevelSpace": {"name": "Alameda"}}},
      {"start": "2025-09-17 14:00:00", "end": "2025-09-17 15:30:00", "weekDay": 3, "room": {"name": "GA2", "topLevelSpace": {"name": "Alameda"}}}
    ]},
    {"name": "ALPB02", "lessons": [
      {"start": "2025-09-16 11:00:00", "end": "2025-09-16 12:30:00"}
    ]},
    {"name": "ALL03", "type": "LABORATORIAL", "lessons": [
      {"start": "2025-09-19 08:00:00", "end": "2025-09-19 08:00:00"},
      {"start": "bogus", "end": "2025-09-19 10:00:00"}
    ]},
    {"name": "AL01", "types": ["TEORICA"], "lessons": [
      {"start": "2025-09-18 16:00:00", "end": "2025-09-18 17:30:00"}
    ]}
  ]
}`

func newTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	for path, body := range routes {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL+"/api/fenix/v1", srv.URL, DefaultHTTPClient(5*time.Second), zerolog.Nop())
}

func TestDegrees(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"/api/fenix/v1/degrees/all": degreesJSON})
	c := newTestClient(srv)

	degrees, err := c.Degrees(context.Background(), "pt-PT", "2025/2026")
	require.NoError(t, err)
	require.Len(t, degrees, 2)

	assert.Equal(t, "2761663971474", degrees[0].ID)
	assert.Equal(t, "Licenciatura", degrees[0].TypeName)
	assert.Equal(t, []string{"Alameda"}, degrees[0].Campuses)
	assert.Equal(t, "2761663971475", degrees[1].ID)
	assert.Equal(t, "Mestrado", degrees[1].TypeName)

	all, err := c.Degrees(context.Background(), "pt-PT", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCourses(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"/api/fenix/v1/degrees/D1/courses": coursesJSON})
	c := newTestClient(srv)

	refs, err := c.Courses(context.Background(), "D1", "2025/2026", "pt-PT")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "1690460473000", refs[0].ID)
	assert.Equal(t, "1 Semestre 2025/2026", refs[0].AcademicTerm)
	assert.Equal(t, []string{"Alameda"}, refs[0].Campuses)
	assert.Equal(t, "42", refs[1].ID)
	assert.Contains(t, refs[1].Signals, "P2")
}

func TestSchedule(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{"/api/fenix/v1/courses/C1/schedule": scheduleJSON})
	c := newTestClient(srv)

	s, err := c.Schedule(context.Background(), "C1", "pt-PT")
	require.NoError(t, err)
	require.Len(t, s.Shifts, 3, "a repeated name within one category is dropped")

	theory := s.Shifts[0]
	assert.Equal(t, []model.Category{model.CategoryTheory}, theory.Categories)
	assert.Equal(t, []string{"Alameda"}, theory.Campuses)
	require.Len(t, theory.Lessons, 2, "weekly repeats collapse into one lesson")
	assert.Equal(t, time.Monday, theory.Lessons[0].Day)
	assert.Equal(t, "09:30", theory.Lessons[0].Start.String())
	assert.Equal(t, "11:00", theory.Lessons[0].End.String())
	assert.Equal(t, "GA1", theory.Lessons[0].Room)
	assert.Equal(t, time.Wednesday, theory.Lessons[1].Day)

	problems := s.Shifts[1]
	assert.Equal(t, []model.Category{model.CategoryProblems}, problems.Categories)
	assert.Empty(t, problems.Campuses)

	lab := s.Shifts[2]
	assert.Equal(t, []model.Category{model.CategoryLab}, lab.Categories)
	assert.Empty(t, lab.Lessons, "zero-length and unparsable lessons are dropped")

	require.Len(t, s.CourseLoads, 1)
	assert.Equal(t, model.CategoryTheory, s.CourseLoads[0].Category)
	assert.Equal(t, []string{"1 Semestre P1"}, s.CourseLoads[0].Periods)
}

func TestOfferingAndSignals(t *testing.T) {
	ref := CourseRef{ID: "1", AcademicTerm: "2 Semestre", Signals: []string{"2 Semestre"}}
	s := Schedule{
		Signals:     []string{"P3"},
		CourseLoads: []model.CourseLoad{{Periods: []string{"P3 2025"}}},
	}

	o := Offering(ref, s)
	assert.Equal(t, "Unknown", o.Name)
	assert.Equal(t, "2 Semestre", o.AcademicTerm)
	assert.Equal(t, []string{"2 Semestre", "P3", "P3 2025"}, Signals(ref, s))
}

func TestWeekDaySunday(t *testing.T) {
	seven := 7
	l, ok := rawLesson{Start: "2025-09-15 09:00:00", End: "2025-09-15 10:00:00", WeekDay: &seven}.toLesson()
	require.True(t, ok)
	assert.Equal(t, time.Sunday, l.Day)
}

func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/fenix/v1/degrees/all" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	c := newTestClient(srv)

	_, err := c.Degrees(context.Background(), "pt-PT", "")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = c.Schedule(context.Background(), "missing", "pt-PT")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCourseDetailCached(t *testing.T) {
	srv, hits := newTestServer(t, map[string]string{
		"/api/fenix/v1/courses/C1": `{"name": " Álgebra Linear ", "url": "https://fenix.example/al"}`,
	})
	c := newTestClient(srv)

	for range 3 {
		d, err := c.CourseDetail(context.Background(), "C1", "pt-PT")
		require.NoError(t, err)
		assert.Equal(t, "Álgebra Linear", d.Name)
	}
	assert.EqualValues(t, 1, hits.Load())

	d, err := c.CourseDetail(context.Background(), "missing", "pt-PT")
	require.NoError(t, err)
	assert.Empty(t, d.Name)
}

const curriculumIndex = `<html><body><div id="content-block">
<ul class="dropdown-menu">
  <li><a href="/cursos/leic-a/curriculo?year=2024">2024/2025</a></li>
  <li><a href="/cursos/leic-a/curriculo?year=2025">2025/2026</a></li>
</ul>
<p>default</p></div></body></html>`

func TestCurriculumPicksYear(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/cursos/leic-a/curriculo", r.URL.Path)
		if r.URL.Query().Get("year") == "2025" {
			w.Write([]byte("<html>year 2025</html>"))
			return
		}
		w.Write([]byte(curriculumIndex))
	}))
	defer srv.Close()
	cc := NewCurriculumClient(newTestClient(srv))

	html, err := cc.Fetch(context.Background(), "LEIC-A", "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, "<html>year 2025</html>", html)

	_, err = cc.Fetch(context.Background(), "leic-a", "2025/2026")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load(), "second fetch is served from cache")

	html, err = cc.Fetch(context.Background(), "LEIC-A", "2030/2031")
	require.NoError(t, err)
	assert.Contains(t, html, "default")
}

func TestCurriculumRequiresAcronym(t *testing.T) {
	cc := NewCurriculumClient(NewClient("http://unused", "http://unused", DefaultHTTPClient(time.Second), zerolog.Nop()))
	_, err := cc.Fetch(context.Background(), " ", "2025/2026")
	assert.Error(t, err)
}
