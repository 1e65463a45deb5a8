package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is the kind of a shift.
type Category string

const (
	CategoryTheory         Category = "T"
	CategoryTheoryPractice Category = "TP"
	CategoryLab            Category = "L"
	CategoryProblems       Category = "PB"
	CategorySeminar        Category = "S"
	CategoryTutorial       Category = "TO"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryTheory, CategoryTheoryPractice, CategoryLab,
	CategoryProblems, CategorySeminar, CategoryTutorial,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Period is a half-term tag (P1..P4). The zero value means unknown.
type Period string

const (
	PeriodP1 Period = "P1"
	PeriodP2 Period = "P2"
	PeriodP3 Period = "P3"
	PeriodP4 Period = "P4"
)

var Periods = []Period{PeriodP1, PeriodP2, PeriodP3, PeriodP4}

// Semester is a term-half tag ("1" or "2"). The zero value means unknown.
type Semester string

const (
	SemesterFirst  Semester = "1"
	SemesterSecond Semester = "2"
)

// ClockTime is a time of day in minutes since midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(h, m int) ClockTime {
	return ClockTime(h*60 + m)
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t ClockTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS"; seconds are discarded.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return NewClockTime(h, m), nil
}

// Lesson is one weekly recurring meeting of a shift.
type Lesson struct {
	Day    time.Weekday `json:"day"`
	Start  ClockTime    `json:"start"`
	End    ClockTime    `json:"end"`
	Room   string       `json:"room,omitempty"`
	Campus string       `json:"campus,omitempty"`
}

// Valid reports whether the lesson has a strictly positive duration.
func (l Lesson) Valid() bool {
	return l.End > l.Start
}

// Summary renders the lesson as "Mon 09:00-10:30 (Alameda)".
func (l Lesson) Summary() string {
	s := fmt.Sprintf("%s %s-%s", l.Day.String()[:3], l.Start, l.End)
	if l.Campus != "" {
		s += " (" + l.Campus + ")"
	}
	return s
}

// Shift is a named group of lessons that students register into as a unit.
type Shift struct {
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
	Campuses   []string   `json:"campuses,omitempty"`
	Lessons    []Lesson   `json:"lessons"`
}

// Primary returns the first category of the shift, or "" when none is known.
func (s Shift) Primary() Category {
	if len(s.Categories) == 0 {
		return ""
	}
	return s.Categories[0]
}

// Has reports whether the shift belongs to category c.
func (s Shift) Has(c Category) bool {
	for _, k := range s.Categories {
		if k == c {
			return true
		}
	}
	return false
}

// InCampus reports whether the shift meets in campus. Shifts without campus data match any campus.
func (s Shift) InCampus(campus string) bool {
	if campus == "" || len(s.Campuses) == 0 {
		return true
	}
	for _, c := range s.Campuses {
		if strings.EqualFold(c, campus) {
			return true
		}
	}
	return false
}

// CourseLoad is raw load metadata attached to an offering. Periods holds the
// period-like strings found on the load (executionPeriod, period).
type CourseLoad struct {
	Category Category `json:"category,omitempty"`
	RawType  string   `json:"raw_type,omitempty"`
	Periods  []string `json:"periods,omitempty"`
}

// Offering is one course's registration unit for an academic term.
type Offering struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Code         string       `json:"code,omitempty"`
	Acronym      string       `json:"acronym,omitempty"`
	AcademicTerm string       `json:"academic_term,omitempty"`
	Shifts       []Shift      `json:"shifts"`
	CourseLoads  []CourseLoad `json:"course_loads,omitempty"`
	SemesterHint Semester     `json:"semester_hint"`
	PeriodHint   Period       `json:"period_hint"`
}

// ShiftsOf returns the shifts of the offering that belong to category c.
func (o Offering) ShiftsOf(c Category) []Shift {
	var out []Shift
	for _, s := range o.Shifts {
		if s.Has(c) {
			out = append(out, s)
		}
	}
	return out
}

// Shift finds a shift by name.
func (o Offering) Shift(name string) (Shift, bool) {
	for _, s := range o.Shifts {
		if s.Name == name {
			return s, true
		}
	}
	return Shift{}, false
}

// CategoriesPresent lists the categories that have at least one shift, in display order.
func (o Offering) CategoriesPresent() []Category {
	var out []Category
	for _, c := range Categories {
		if len(o.ShiftsOf(c)) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Campuses is the union of the campuses of every shift.
func (o Offering) Campuses() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range o.Shifts {
		for _, c := range s.Campuses {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Degree is a degree programme listed by the portal.
type Degree struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Acronym  string   `json:"acronym"`
	TypeName string   `json:"type_name"`
	Campuses []string `json:"campuses,omitempty"`
}

// Label renders the degree as "[ACR] name".
func (d Degree) Label() string {
	if d.Acronym == "" {
		return d.Name
	}
	return "[" + d.Acronym + "] " + d.Name
}

// DegreeTypeRank orders degree types for listing.
var DegreeTypeRank = map[string]int{
	"Licenciatura":                 1,
	"Mestrado":                     2,
	"Minor":                        3,
	"Diploma de Estudos Avançados": 4,
	"HACS":                         5,
}

// Rank returns the listing rank of the degree type; unknown types sort last.
func (d Degree) Rank() int {
	if r, ok := DegreeTypeRank[d.TypeName]; ok {
		return r
	}
	return 99
}
