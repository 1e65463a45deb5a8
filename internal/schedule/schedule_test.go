package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenixctl/enroller/internal/model"
)

func lesson(day time.Weekday, start, end string) model.Lesson {
	s, _ := model.ParseClockTime(start)
	e, _ := model.ParseClockTime(end)
	return model.Lesson{Day: day, Start: s, End: e}
}

func shift(name string, cat model.Category, lessons ...model.Lesson) model.Shift {
	return model.Shift{Name: name, Categories: []model.Category{cat}, Lessons: lessons}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b model.Lesson
		want bool
	}{
		{"identical", lesson(time.Monday, "09:00", "10:30"), lesson(time.Monday, "09:00", "10:30"), true},
		{"partial", lesson(time.Monday, "09:00", "10:30"), lesson(time.Monday, "10:00", "11:00"), true},
		{"contained", lesson(time.Monday, "09:00", "12:00"), lesson(time.Monday, "10:00", "11:00"), true},
		{"back to back", lesson(time.Monday, "09:00", "10:00"), lesson(time.Monday, "10:00", "11:00"), false},
		{"disjoint", lesson(time.Monday, "09:00", "10:00"), lesson(time.Monday, "14:00", "15:00"), false},
		{"other day", lesson(time.Monday, "09:00", "10:30"), lesson(time.Tuesday, "09:00", "10:30"), false},
		{"zero duration", lesson(time.Monday, "10:00", "10:00"), lesson(time.Monday, "09:00", "11:00"), false},
		{"negative duration", lesson(time.Monday, "11:00", "10:00"), lesson(time.Monday, "09:00", "12:00"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.a, tc.b))
			assert.Equal(t, tc.want, Overlaps(tc.b, tc.a))
		})
	}
}

func TestShiftsCompatibleSymmetric(t *testing.T) {
	shifts := []model.Shift{
		shift("A", model.CategoryTheory, lesson(time.Monday, "09:00", "10:30"), lesson(time.Wednesday, "09:00", "10:30")),
		shift("B", model.CategoryLab, lesson(time.Wednesday, "10:00", "12:00")),
		shift("C", model.CategoryLab, lesson(time.Wednesday, "10:30", "12:00")),
		shift("D", model.CategoryProblems),
		shift("E", model.CategoryTheory, lesson(time.Monday, "08:00", "09:30")),
	}
	for _, x := range shifts {
		for _, y := range shifts {
			assert.Equal(t, ShiftsCompatible(x, y), ShiftsCompatible(y, x), "%s/%s", x.Name, y.Name)
		}
	}
	assert.False(t, ShiftsCompatible(shifts[0], shifts[1]))
	assert.True(t, ShiftsCompatible(shifts[0], shifts[2]))
	assert.True(t, ShiftsCompatible(shifts[0], shifts[3]))
	assert.False(t, ShiftsCompatible(shifts[0], shifts[4]))
}

func fixtures() []model.Offering {
	return []model.Offering{
		{
			ID: "100", Name: "Algebra", Acronym: "AL",
			Shifts: []model.Shift{
				shift("AL-T01", model.CategoryTheory, lesson(time.Monday, "09:00", "10:30")),
				shift("AL-PB01", model.CategoryProblems, lesson(time.Monday, "10:00", "11:00")),
				shift("AL-PB02", model.CategoryProblems, lesson(time.Tuesday, "14:00", "15:00")),
			},
		},
		{
			ID: "200", Name: "Physics", Acronym: "FIS",
			Shifts: []model.Shift{
				shift("FIS-T01", model.CategoryTheory, lesson(time.Monday, "10:00", "11:30")),
				shift("FIS-T02", model.CategoryTheory, lesson(time.Monday, "10:30", "12:00")),
				shift("FIS-L01", model.CategoryLab, lesson(time.Tuesday, "14:30", "16:00")),
			},
		},
	}
}

func TestIsSelectionValid(t *testing.T) {
	offerings := fixtures()

	t.Run("same course overlaps are not checked", func(t *testing.T) {
		goals := []model.RegistrationGoal{
			{CourseName: "Algebra", Category: model.CategoryTheory, ShiftName: "AL-T01"},
			{CourseName: "Algebra", Category: model.CategoryProblems, ShiftName: "AL-PB01"},
		}
		assert.True(t, IsSelectionValid(offerings, goals))
	})

	t.Run("cross course overlap", func(t *testing.T) {
		goals := []model.RegistrationGoal{
			{CourseName: "Algebra", Category: model.CategoryTheory, ShiftName: "AL-T01"},
			{CourseName: "Physics", Category: model.CategoryTheory, ShiftName: "FIS-T01"},
		}
		assert.False(t, IsSelectionValid(offerings, goals))
	})

	t.Run("back to back across courses", func(t *testing.T) {
		goals := []model.RegistrationGoal{
			{CourseName: "Algebra", Category: model.CategoryTheory, ShiftName: "AL-T01"},
			{CourseID: "200", CourseName: "Physics", Category: model.CategoryTheory, ShiftName: "FIS-T02"},
		}
		assert.True(t, IsSelectionValid(offerings, goals))
	})

	t.Run("unknown shift ignored", func(t *testing.T) {
		goals := []model.RegistrationGoal{
			{CourseName: "Algebra", Category: model.CategoryTheory, ShiftName: "AL-T99"},
			{CourseName: "Physics", Category: model.CategoryTheory, ShiftName: "FIS-T01"},
		}
		assert.True(t, IsSelectionValid(offerings, goals))
	})
}

func TestSelectorDisablesConflicts(t *testing.T) {
	s := NewSelector(fixtures())

	require.NoError(t, s.Toggle("100", model.CategoryTheory, "AL-T01"))
	assert.Equal(t, StateSelected, s.State("100", model.CategoryTheory, "AL-T01"))
	assert.Equal(t, StateDisabled, s.State("200", model.CategoryTheory, "FIS-T01"))
	assert.Equal(t, StateAvailable, s.State("200", model.CategoryTheory, "FIS-T02"))
	// same course never blocks itself
	assert.Equal(t, StateAvailable, s.State("100", model.CategoryProblems, "AL-PB01"))

	err := s.Toggle("200", model.CategoryTheory, "FIS-T01")
	assert.ErrorIs(t, err, ErrShiftConflict)

	// clearing the conflicting choice re-enables the shift
	require.NoError(t, s.Toggle("100", model.CategoryTheory, "AL-T01"))
	assert.Equal(t, StateAvailable, s.State("200", model.CategoryTheory, "FIS-T01"))
	require.NoError(t, s.Toggle("200", model.CategoryTheory, "FIS-T01"))
	assert.Equal(t, StateDisabled, s.State("100", model.CategoryTheory, "AL-T01"))
}

func TestSelectorReplaceAndGoals(t *testing.T) {
	s := NewSelector(fixtures())

	require.NoError(t, s.Toggle("200", model.CategoryLab, "FIS-L01"))
	require.NoError(t, s.Toggle("100", model.CategoryProblems, "AL-PB01"))
	require.NoError(t, s.Toggle("100", model.CategoryTheory, "AL-T01"))
	// AL-PB02 overlaps FIS-L01 on Tuesday
	assert.ErrorIs(t, s.Toggle("100", model.CategoryProblems, "AL-PB02"), ErrShiftConflict)

	goals := s.Goals()
	require.Len(t, goals, 3)
	assert.Equal(t, model.RegistrationGoal{CourseID: "100", CourseName: "Algebra", Category: model.CategoryTheory, ShiftName: "AL-T01"}, goals[0])
	assert.Equal(t, "AL-PB01", goals[1].ShiftName)
	assert.Equal(t, "FIS-L01", goals[2].ShiftName)
	assert.True(t, IsSelectionValid(fixtures(), goals))

	s.Clear("200")
	require.NoError(t, s.Toggle("100", model.CategoryProblems, "AL-PB02"))
	assert.Equal(t, "AL-PB02", s.Choices()["100"][model.CategoryProblems])

	s.ClearAll()
	assert.Empty(t, s.Goals())
}

func TestSelectorErrors(t *testing.T) {
	s := NewSelector(fixtures())
	assert.ErrorIs(t, s.Toggle("999", model.CategoryTheory, "X"), ErrUnknownCourse)
	assert.ErrorIs(t, s.Toggle("100", model.CategoryLab, "AL-T01"), ErrUnknownShift)
	assert.ErrorIs(t, s.Toggle("100", model.CategoryTheory, "nope"), ErrUnknownShift)
}

func TestSelectorRestoreAndBoard(t *testing.T) {
	s := NewSelector(fixtures())
	s.Restore(model.Choices{
		"100": {model.CategoryTheory: "AL-T01", model.CategoryLab: "AL-T01"},
		"999": {model.CategoryTheory: "ghost"},
	})
	assert.Equal(t, model.Choices{"100": {model.CategoryTheory: "AL-T01"}}, s.Choices())

	board := s.Board()
	require.Len(t, board, 5)
	assert.Equal(t, "Monday", board[0].Day)
	require.Len(t, board[0].Slots, 4)
	assert.Equal(t, "AL-T01", board[0].Slots[0].ShiftName)
	assert.Equal(t, StateSelected, board[0].Slots[0].State)
	for _, slot := range board[0].Slots {
		if slot.ShiftName == "FIS-T01" {
			assert.Equal(t, StateDisabled, slot.State)
		}
	}
	assert.Empty(t, board[4].Slots)
}

func TestSelectorCampusFilter(t *testing.T) {
	offerings := fixtures()
	offerings[1].Shifts[2].Campuses = []string{"Taguspark"}
	s := NewSelector(offerings)

	s.SetCampus("Alameda")
	tuesday := s.Board()[1]
	for _, slot := range tuesday.Slots {
		assert.NotEqual(t, "FIS-L01", slot.ShiftName)
	}

	s.SetCampus("All")
	assert.Len(t, s.Board()[1].Slots, 2)
}
