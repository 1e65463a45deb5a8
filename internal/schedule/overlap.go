// Package schedule holds the weekly time-slot model and the conflict-aware
// shift selector.
package schedule

import "github.com/fenixctl/enroller/internal/model"

// Overlaps reports whether two lessons intersect on the same weekday.
// Intervals are half-open, so back-to-back lessons do not overlap.
// Invalid lessons never overlap anything.
func Overlaps(a, b model.Lesson) bool {
	if !a.Valid() || !b.Valid() || a.Day != b.Day {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

// ShiftsCompatible reports whether no lesson of x overlaps a lesson of y.
func ShiftsCompatible(x, y model.Shift) bool {
	for _, a := range x.Lessons {
		for _, b := range y.Lessons {
			if Overlaps(a, b) {
				return false
			}
		}
	}
	return true
}

type chosenShift struct {
	goal   model.RegistrationGoal
	course string
	shift  model.Shift
}

// IsSelectionValid reports whether every pair of goals that belong to
// different courses resolves to compatible shifts. Goals that cannot be
// resolved against offerings are ignored; pairs within one course are never
// checked.
func IsSelectionValid(offerings []model.Offering, goals []model.RegistrationGoal) bool {
	_, _, found := FirstConflict(offerings, goals)
	return !found
}

// FirstConflict returns the first pair of goals, in queue order, whose shifts
// belong to different courses and overlap.
func FirstConflict(offerings []model.Offering, goals []model.RegistrationGoal) (a, b model.RegistrationGoal, found bool) {
	chosen := resolve(offerings, goals)
	for i := 0; i < len(chosen); i++ {
		for j := i + 1; j < len(chosen); j++ {
			if chosen[i].course == chosen[j].course {
				continue
			}
			if !ShiftsCompatible(chosen[i].shift, chosen[j].shift) {
				return chosen[i].goal, chosen[j].goal, true
			}
		}
	}
	return model.RegistrationGoal{}, model.RegistrationGoal{}, false
}

func resolve(offerings []model.Offering, goals []model.RegistrationGoal) []chosenShift {
	var out []chosenShift
	for _, g := range goals {
		o, ok := findOffering(offerings, g)
		if !ok {
			continue
		}
		sh, ok := o.Shift(g.ShiftName)
		if !ok {
			continue
		}
		out = append(out, chosenShift{goal: g, course: o.ID, shift: sh})
	}
	return out
}

func findOffering(offerings []model.Offering, g model.RegistrationGoal) (model.Offering, bool) {
	for _, o := range offerings {
		if g.CourseID != "" && o.ID == g.CourseID {
			return o, true
		}
	}
	for _, o := range offerings {
		if o.Name == g.CourseName {
			return o, true
		}
	}
	return model.Offering{}, false
}
