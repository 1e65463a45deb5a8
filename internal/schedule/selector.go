package schedule

import (
	"errors"
	"sort"
	"time"

	"github.com/fenixctl/enroller/internal/model"
)

var (
	ErrUnknownCourse = errors.New("course is not part of this selection")
	ErrUnknownShift  = errors.New("shift does not exist for this course and category")
	ErrShiftConflict = errors.New("shift overlaps a shift chosen for another course")
)

// ButtonState is how a shift is presented while building a schedule.
type ButtonState string

const (
	StateSelected  ButtonState = "selected"
	StateAvailable ButtonState = "available"
	StateDisabled  ButtonState = "disabled"
)

// Weekdays shown on the board.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// Slot is one lesson of a shift as placed on the board.
type Slot struct {
	CourseID   string          `json:"course_id"`
	CourseName string          `json:"course_name"`
	Acronym    string          `json:"acronym,omitempty"`
	Category   model.Category  `json:"category"`
	ShiftName  string          `json:"shift_name"`
	Start      model.ClockTime `json:"start"`
	End        model.ClockTime `json:"end"`
	Campus     string          `json:"campus,omitempty"`
	State      ButtonState     `json:"state"`
}

// Column is one weekday of the board.
type Column struct {
	Day   string `json:"day"`
	Slots []Slot `json:"slots"`
}

// Selector is the per-session schedule builder. It is not safe for
// concurrent use.
type Selector struct {
	offerings []model.Offering
	index     map[string]int
	choices   model.Choices
	campus    string
}

// NewSelector builds a selector over the given offerings, in display order.
func NewSelector(offerings []model.Offering) *Selector {
	s := &Selector{
		offerings: offerings,
		index:     make(map[string]int, len(offerings)),
		choices:   make(model.Choices),
	}
	for i, o := range offerings {
		s.index[o.ID] = i
	}
	return s
}

// SetCampus restricts the board to shifts in campus. Empty or "All" shows every shift.
func (s *Selector) SetCampus(campus string) {
	if campus == "All" {
		campus = ""
	}
	s.campus = campus
}

// Restore loads previously saved choices, skipping unknown courses and shifts.
func (s *Selector) Restore(choices model.Choices) {
	for courseID, byCat := range choices {
		i, ok := s.index[courseID]
		if !ok {
			continue
		}
		for cat, name := range byCat {
			if name == "" {
				continue
			}
			if sh, ok := s.offerings[i].Shift(name); ok && sh.Has(cat) {
				s.set(courseID, cat, name)
			}
		}
	}
}

// Toggle selects a shift, or clears it when it is already selected.
// Selecting a different shift for the same course and category replaces the
// previous choice. A shift that conflicts with another course's choice
// cannot be selected.
func (s *Selector) Toggle(courseID string, cat model.Category, shiftName string) error {
	i, ok := s.index[courseID]
	if !ok {
		return ErrUnknownCourse
	}
	sh, ok := s.offerings[i].Shift(shiftName)
	if !ok || !sh.Has(cat) {
		return ErrUnknownShift
	}
	if s.choices[courseID][cat] == shiftName {
		delete(s.choices[courseID], cat)
		return nil
	}
	if s.conflicts(courseID, sh) {
		return ErrShiftConflict
	}
	s.set(courseID, cat, shiftName)
	return nil
}

// Clear removes every choice for one course.
func (s *Selector) Clear(courseID string) {
	delete(s.choices, courseID)
}

// ClearAll resets the selection.
func (s *Selector) ClearAll() {
	s.choices = make(model.Choices)
}

// Choices returns a copy of the current selection.
func (s *Selector) Choices() model.Choices {
	out := make(model.Choices, len(s.choices))
	for id, byCat := range s.choices {
		if len(byCat) == 0 {
			continue
		}
		cp := make(map[model.Category]string, len(byCat))
		for c, n := range byCat {
			cp[c] = n
		}
		out[id] = cp
	}
	return out
}

// State reports how a shift button should be presented.
func (s *Selector) State(courseID string, cat model.Category, shiftName string) ButtonState {
	if s.choices[courseID][cat] == shiftName {
		return StateSelected
	}
	i, ok := s.index[courseID]
	if !ok {
		return StateDisabled
	}
	sh, ok := s.offerings[i].Shift(shiftName)
	if !ok || s.conflicts(courseID, sh) {
		return StateDisabled
	}
	return StateAvailable
}

// Goals turns the selection into registration goals in display order.
func (s *Selector) Goals() []model.RegistrationGoal {
	var goals []model.RegistrationGoal
	for _, o := range s.offerings {
		byCat := s.choices[o.ID]
		for _, cat := range model.Categories {
			name := byCat[cat]
			if name == "" {
				continue
			}
			goals = append(goals, model.RegistrationGoal{
				CourseID:   o.ID,
				CourseName: o.Name,
				Category:   cat,
				ShiftName:  name,
			})
		}
	}
	return goals
}

// Board lays every visible lesson out by weekday, Monday to Friday, ordered by start time.
func (s *Selector) Board() []Column {
	cols := make([]Column, len(Weekdays))
	pos := make(map[time.Weekday]int, len(Weekdays))
	for i, d := range Weekdays {
		cols[i] = Column{Day: d.String(), Slots: []Slot{}}
		pos[d] = i
	}

	for _, o := range s.offerings {
		for _, sh := range o.Shifts {
			if !sh.InCampus(s.campus) {
				continue
			}
			cat := sh.Primary()
			state := s.State(o.ID, cat, sh.Name)
			for _, l := range sh.Lessons {
				i, ok := pos[l.Day]
				if !ok || !l.Valid() {
					continue
				}
				cols[i].Slots = append(cols[i].Slots, Slot{
					CourseID:   o.ID,
					CourseName: o.Name,
					Acronym:    o.Acronym,
					Category:   cat,
					ShiftName:  sh.Name,
					Start:      l.Start,
					End:        l.End,
					Campus:     l.Campus,
					State:      state,
				})
			}
		}
	}

	for i := range cols {
		sort.SliceStable(cols[i].Slots, func(a, b int) bool {
			return cols[i].Slots[a].Start < cols[i].Slots[b].Start
		})
	}
	return cols
}

func (s *Selector) set(courseID string, cat model.Category, name string) {
	if s.choices[courseID] == nil {
		s.choices[courseID] = make(map[model.Category]string)
	}
	s.choices[courseID][cat] = name
}

// conflicts reports whether sh overlaps any chosen shift of another course.
func (s *Selector) conflicts(courseID string, sh model.Shift) bool {
	for otherID, byCat := range s.choices {
		if otherID == courseID {
			continue
		}
		o := s.offerings[s.index[otherID]]
		for _, name := range byCat {
			chosen, ok := o.Shift(name)
			if ok && !ShiftsCompatible(sh, chosen) {
				return true
			}
		}
	}
	return false
}
