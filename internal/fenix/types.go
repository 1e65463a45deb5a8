package fenix

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/fenixctl/enroller/internal/classify"
	"github.com/fenixctl/enroller/internal/model"
)

const lessonLayout = "2006-01-02 15:04:05"

// signalKeys are the course and schedule fields that may carry a period.
var signalKeys = []string{"executionPeriod", "period", "semester", "academicTerm", "term"}

// CourseRef is one course as listed under a degree.
type CourseRef struct {
	ID           string
	Name         string
	Code         string
	Acronym      string
	AcademicTerm string
	Campuses     []string
	// Signals are the period-like strings found on the listing entry.
	Signals []string
}

// Schedule is the normalized schedule document of a course.
type Schedule struct {
	Shifts      []model.Shift
	CourseLoads []model.CourseLoad
	Signals     []string
}

// CourseDetail is the single-course document, used for its localized name.
type CourseDetail struct {
	Name string
	URL  string
}

// Offering joins a course listing with its schedule. Hints are left empty.
func Offering(ref CourseRef, s Schedule) model.Offering {
	name := ref.Name
	if name == "" {
		name = "Unknown"
	}
	return model.Offering{
		ID:           ref.ID,
		Name:         name,
		Code:         ref.Code,
		Acronym:      ref.Acronym,
		AcademicTerm: ref.AcademicTerm,
		Shifts:       s.Shifts,
		CourseLoads:  s.CourseLoads,
	}
}

// Signals collects every period-like string of a course and its schedule,
// course loads included.
func Signals(ref CourseRef, s Schedule) []string {
	out := append([]string{}, ref.Signals...)
	out = append(out, s.Signals...)
	for _, l := range s.CourseLoads {
		out = append(out, l.Periods...)
	}
	return out
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// textValues extracts display strings from a field that may be a string, an
// object with a name-like key, or a list of either.
func textValues(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return []string{s}
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return nil
		}
		var out []string
		for _, k := range []string{"name", "label", "acronym", "shortName", "value"} {
			var s string
			if v, ok := obj[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
				out = append(out, s)
			}
		}
		return out
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return nil
		}
		var out []string
		for _, it := range items {
			out = append(out, textValues(it)...)
		}
		return out
	}
	return nil
}

func collectSignals(fields map[string]json.RawMessage) []string {
	var out []string
	for _, k := range signalKeys {
		out = append(out, textValues(fields[k])...)
	}
	return out
}

func firstText(raw json.RawMessage) string {
	if v := textValues(raw); len(v) > 0 {
		return v[0]
	}
	return ""
}

// ─── Degrees ────────────────────────────────────────────────────────

type rawDegree struct {
	ID             flexString      `json:"id"`
	Name           string          `json:"name"`
	Acronym        string          `json:"acronym"`
	DegreeType     json.RawMessage `json:"degreeType"`
	DegreeTypeName string          `json:"degreeTypeName"`
	Type           string          `json:"type"`
	CycleType      string          `json:"cycleType"`
	Campus         json.RawMessage `json:"campus"`
	AcademicTerms  []string        `json:"academicTerms"`
}

func (d rawDegree) offeredIn(term string) bool {
	return slices.Contains(d.AcademicTerms, term)
}

func (d rawDegree) toModel() model.Degree {
	in := classify.DegreeInput{Acronym: d.Acronym, Name: d.Name}
	trimmed := bytes.TrimSpace(d.DegreeType)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		in.Label = firstText(d.DegreeType)
	}
	for _, raw := range []string{d.DegreeTypeName, firstText(d.DegreeType), d.Type, d.CycleType} {
		if raw != "" {
			in.RawType = raw
			break
		}
	}

	var campuses []string
	for _, c := range textValues(d.Campus) {
		if n := classify.NormalizeCampus(c); n != "" && !slices.Contains(campuses, n) {
			campuses = append(campuses, n)
		}
	}
	return model.Degree{
		ID:       string(d.ID),
		Name:     strings.TrimSpace(d.Name),
		Acronym:  strings.TrimSpace(d.Acronym),
		TypeName: classify.DegreeType(in),
		Campuses: campuses,
	}
}

// ─── Courses ────────────────────────────────────────────────────────

type rawCourse struct {
	ID           flexString      `json:"id"`
	CourseID     flexString      `json:"courseId"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	Acronym      string          `json:"acronym"`
	AcademicTerm json.RawMessage `json:"academicTerm"`
	Campus       json.RawMessage `json:"campus"`
	fields       map[string]json.RawMessage
}

func (c *rawCourse) UnmarshalJSON(b []byte) error {
	type plain rawCourse
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = rawCourse(p)
	return json.Unmarshal(b, &c.fields)
}

func (c rawCourse) toRef() CourseRef {
	id := string(c.ID)
	if id == "" {
		id = string(c.CourseID)
	}
	ref := CourseRef{
		ID:           id,
		Name:         strings.TrimSpace(c.Name),
		Code:         c.Code,
		Acronym:      c.Acronym,
		AcademicTerm: firstText(c.AcademicTerm),
		Signals:      collectSignals(c.fields),
	}
	for _, name := range textValues(c.Campus) {
		if n := classify.NormalizeCampus(name); n != "" && !slices.Contains(ref.Campuses, n) {
			ref.Campuses = append(ref.Campuses, n)
		}
	}
	return ref
}

// ─── Schedules ──────────────────────────────────────────────────────

type rawSchedule struct {
	Shifts      []rawShift `json:"shifts"`
	CourseLoads []rawLoad  `json:"courseLoads"`
	fields      map[string]json.RawMessage
}

func (s *rawSchedule) UnmarshalJSON(b []byte) error {
	type plain rawSchedule
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = rawSchedule(p)
	return json.Unmarshal(b, &s.fields)
}

type rawShift struct {
	Name       string      `json:"name"`
	Types      []string    `json:"types"`
	Type       string      `json:"type"`
	ClassType  string      `json:"classType"`
	ShiftType  string      `json:"shiftType"`
	LessonType string      `json:"lessonType"`
	Lessons    []rawLesson `json:"lessons"`
}

type rawLesson struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	WeekDay *int   `json:"weekDay"`
	Room    *struct {
		Name          string `json:"name"`
		TopLevelSpace *struct {
			Name string `json:"name"`
		} `json:"topLevelSpace"`
	} `json:"room"`
}

type rawLoad struct {
	Type            string          `json:"type"`
	ExecutionPeriod json.RawMessage `json:"executionPeriod"`
	Period          json.RawMessage `json:"period"`
}

func (s rawSchedule) toSchedule() Schedule {
	out := Schedule{Signals: collectSignals(s.fields)}
	// Shift names are unique per category; the first listing wins.
	for _, rs := range s.Shifts {
		sh := rs.toShift()
		if !repeats(out.Shifts, sh) {
			out.Shifts = append(out.Shifts, sh)
		}
	}
	for _, rl := range s.CourseLoads {
		cat, _ := classify.NormalizeCategory(rl.Type)
		load := model.CourseLoad{Category: cat, RawType: rl.Type}
		load.Periods = append(load.Periods, textValues(rl.ExecutionPeriod)...)
		load.Periods = append(load.Periods, textValues(rl.Period)...)
		out.CourseLoads = append(out.CourseLoads, load)
	}
	return out
}

func repeats(shifts []model.Shift, sh model.Shift) bool {
	for _, o := range shifts {
		if o.Name != sh.Name {
			continue
		}
		if len(o.Categories) == 0 && len(sh.Categories) == 0 {
			return true
		}
		for _, c := range sh.Categories {
			if o.Has(c) {
				return true
			}
		}
	}
	return false
}

func (rs rawShift) toShift() model.Shift {
	sh := model.Shift{Name: strings.TrimSpace(rs.Name)}
	raws := append(append([]string{}, rs.Types...), rs.Type, rs.ClassType, rs.ShiftType, rs.LessonType)
	for _, raw := range raws {
		if c, ok := classify.NormalizeCategory(raw); ok && !sh.Has(c) {
			sh.Categories = append(sh.Categories, c)
		}
	}
	if len(sh.Categories) == 0 {
		if c, ok := classify.CategoryFromShiftName(sh.Name); ok {
			sh.Categories = []model.Category{c}
		}
	}

	// The API lists one lesson per calendar date; keep one per weekly slot.
	for _, rl := range rs.Lessons {
		l, ok := rl.toLesson()
		if !ok || slices.Contains(sh.Lessons, l) {
			continue
		}
		sh.Lessons = append(sh.Lessons, l)
		if l.Campus != "" && !slices.Contains(sh.Campuses, l.Campus) {
			sh.Campuses = append(sh.Campuses, l.Campus)
		}
	}
	return sh
}

func (rl rawLesson) toLesson() (model.Lesson, bool) {
	start, ok := parseLessonTime(rl.Start)
	if !ok {
		return model.Lesson{}, false
	}
	end, ok := parseLessonTime(rl.End)
	if !ok {
		return model.Lesson{}, false
	}

	l := model.Lesson{
		Day:   start.Weekday(),
		Start: model.NewClockTime(start.Hour(), start.Minute()),
		End:   model.NewClockTime(end.Hour(), end.Minute()),
	}
	if rl.WeekDay != nil && *rl.WeekDay >= 1 && *rl.WeekDay <= 7 {
		l.Day = time.Weekday(*rl.WeekDay % 7)
	}
	if rl.Room != nil {
		l.Room = rl.Room.Name
		if rl.Room.TopLevelSpace != nil {
			l.Campus = classify.NormalizeCampus(rl.Room.TopLevelSpace.Name)
		}
	}
	return l, l.Valid()
}

func parseLessonTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(lessonLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
