package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/schedule"
)

func newScheduleFixture(t *testing.T) (*ScheduleService, *PreferenceService) {
	t.Helper()
	f := newOfferingFixture(t)
	store := &memStore{prefs: &model.Preferences{DegreeID: "1", DegreeAcronym: "LEIC", Lang: "en-GB"}}
	prefs := newPrefs(t, store, clock.NewFake(nineAM))
	return NewScheduleService(f.svc, prefs, zerolog.Nop()), prefs
}

func TestScheduleServiceConfirm(t *testing.T) {
	svc, prefs := newScheduleFixture(t)
	ctx := context.Background()

	p, err := svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1", "c2"},
		Choices: model.Choices{
			"c1": {model.CategoryLab: "RC-L02"},
			"c2": {model.CategoryTheory: "CAL-T01"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.RegistrationGoal{
		{CourseID: "c1", CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L02"},
		{CourseID: "c2", CourseName: "Calculus", Category: model.CategoryTheory, ShiftName: "CAL-T01"},
	}, p.Goals)

	saved, err := prefs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, saved.SelectedCourses)
	assert.Equal(t, "RC-L02", saved.SelectedShifts["c1"][model.CategoryLab])
}

func TestScheduleServiceConfirmRejectsConflicts(t *testing.T) {
	svc, prefs := newScheduleFixture(t)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1", "c2"},
		Choices: model.Choices{
			"c1": {model.CategoryLab: "RC-L01"},
			"c2": {model.CategoryTheory: "CAL-T01"},
		},
	})
	require.ErrorIs(t, err, schedule.ErrShiftConflict)
	assert.Contains(t, err.Error(), "CAL-T01")

	goals, err := prefs.Goals(ctx)
	require.NoError(t, err)
	assert.Empty(t, goals, "a rejected selection queues nothing")
}

func TestScheduleServiceConfirmChecksWholeQueue(t *testing.T) {
	svc, prefs := newScheduleFixture(t)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1"},
		Choices:   model.Choices{"c1": {model.CategoryLab: "RC-L01"}},
	})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c2"},
		Choices:   model.Choices{"c2": {model.CategoryTheory: "CAL-T01"}},
	})
	require.ErrorIs(t, err, schedule.ErrShiftConflict)
	assert.Contains(t, err.Error(), "RC-L01")

	saved, err := prefs.Get(ctx)
	require.NoError(t, err)
	require.Len(t, saved.Goals, 1)
	assert.Equal(t, "RC-L01", saved.Goals[0].ShiftName)
	assert.Equal(t, []string{"c1"}, saved.SelectedCourses, "a rejected confirm keeps the previous selection")

	_, err = svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1"},
		Choices:   model.Choices{"c1": {model.CategoryLab: "RC-L02"}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c2"},
		Choices:   model.Choices{"c2": {model.CategoryTheory: "CAL-T01"}},
	})
	require.NoError(t, err, "replacing the conflicting lab clears the way")
}

func TestAddGoalChecksQueue(t *testing.T) {
	svc, prefs := newScheduleFixture(t)
	prefs.WithQueueCheck(svc.CheckQueue)
	ctx := context.Background()

	tests := []struct {
		name    string
		goal    model.RegistrationGoal
		wantErr error
	}{
		{"first goal", model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L01"}, nil},
		{"overlapping course", model.RegistrationGoal{CourseName: "Calculus", Category: model.CategoryTheory, ShiftName: "CAL-T01"}, schedule.ErrShiftConflict},
		{"unknown course is not checked", model.RegistrationGoal{CourseName: "Física", Category: model.CategoryTheory, ShiftName: "F-T01"}, nil},
		{"replacement removes the overlap", model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L02"}, nil},
		{"overlapping course after replacement", model.RegistrationGoal{CourseName: "Calculus", Category: model.CategoryTheory, ShiftName: "CAL-T01"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prefs.AddGoal(ctx, tt.goal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	goals, err := prefs.Goals(ctx)
	require.NoError(t, err)
	assert.Len(t, goals, 3)
}

func TestScheduleServiceConfirmUnknownShift(t *testing.T) {
	svc, _ := newScheduleFixture(t)
	_, err := svc.Confirm(context.Background(), model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1"},
		Choices:   model.Choices{"c1": {model.CategoryTheory: "RC-L01"}},
	})
	assert.ErrorIs(t, err, schedule.ErrUnknownShift)
}

func TestScheduleServiceBoardRestoresSelection(t *testing.T) {
	svc, _ := newScheduleFixture(t)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, model.ConfirmScheduleRequest{
		CourseIDs: []string{"c1", "c2"},
		Choices:   model.Choices{"c1": {model.CategoryLab: "RC-L02"}},
	})
	require.NoError(t, err)

	board, err := svc.Board(ctx, model.BoardRequest{CourseIDs: []string{"c1", "c2"}})
	require.NoError(t, err)
	assert.Equal(t, model.Choices{"c1": {model.CategoryLab: "RC-L02"}}, board.Choices)
	assert.Len(t, board.Columns, 5)
	require.Len(t, board.Goals, 1)
	assert.Equal(t, "RC-L02", board.Goals[0].ShiftName)
}

func TestScheduleServiceNoCourses(t *testing.T) {
	svc, _ := newScheduleFixture(t)
	_, err := svc.Board(context.Background(), model.BoardRequest{CourseIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrNoCourses)
}
