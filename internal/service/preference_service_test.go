package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/repository"
)

func TestPreferenceServiceDefaults(t *testing.T) {
	svc := newPrefs(t, &memStore{}, clock.NewFake(nineAM))

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pt-PT", p.Lang)
	assert.Equal(t, "2025/2026", p.Term)
	assert.NotNil(t, p.Goals)
	assert.NotNil(t, p.SelectedShifts)
}

func TestPreferenceServiceUpdate(t *testing.T) {
	store := &memStore{}
	clk := clock.NewFake(nineAM)
	svc := newPrefs(t, store, clk)

	degree, campus, period := " 2761663971475 ", " Taguspark ", model.PeriodP2
	p, err := svc.Update(context.Background(), model.UpdatePreferencesRequest{
		DegreeID: &degree,
		Campus:   &campus,
		Period:   &period,
	})
	require.NoError(t, err)
	assert.Equal(t, "2761663971475", p.DegreeID)
	assert.Equal(t, "Taguspark", p.Campus)
	assert.Equal(t, model.PeriodP2, p.Period)
	assert.Equal(t, nineAM, p.UpdatedAt)
	assert.Equal(t, 1, store.saves)
}

func TestPreferenceServiceGoalQueue(t *testing.T) {
	ctx := context.Background()
	svc := newPrefs(t, &memStore{}, clock.NewFake(nineAM))

	_, err := svc.AddGoal(ctx, model.RegistrationGoal{CourseName: " Redes ", Category: model.CategoryLab, ShiftName: "RC-L01"})
	require.NoError(t, err)
	_, err = svc.AddGoal(ctx, model.RegistrationGoal{CourseName: "Sistemas", Category: model.CategoryTheory, ShiftName: "SO-T01"})
	require.NoError(t, err)
	goals, err := svc.AddGoal(ctx, model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L03"})
	require.NoError(t, err)

	require.Len(t, goals, 2)
	assert.Equal(t, "RC-L03", goals[0].ShiftName, "same course and category replaces in place")
	assert.Equal(t, "SO-T01", goals[1].ShiftName)

	_, err = svc.RemoveGoal(ctx, 5)
	assert.ErrorIs(t, err, ErrGoalIndex)

	goals, err = svc.RemoveGoal(ctx, 0)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "Sistemas", goals[0].CourseName)

	require.NoError(t, svc.ClearGoals(ctx))
	goals, err = svc.Goals(ctx)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestPreferenceServiceConsumeConfirmed(t *testing.T) {
	ctx := context.Background()
	a := model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryLab, ShiftName: "RC-L01"}
	b := model.RegistrationGoal{CourseName: "Sistemas", Category: model.CategoryTheory, ShiftName: "SO-T01"}
	store := &memStore{prefs: &model.Preferences{Goals: []model.RegistrationGoal{a, b}}}
	svc := newPrefs(t, store, clock.NewFake(nineAM))

	require.NoError(t, svc.ConsumeConfirmed(ctx, []model.RegistrationGoal{b}))
	goals, err := svc.Goals(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.RegistrationGoal{a}, goals)

	saves := store.saves
	require.NoError(t, svc.ConsumeConfirmed(ctx, nil))
	assert.Equal(t, saves, store.saves, "nothing confirmed means nothing written")
}

func TestPreferenceServiceCorruptStoreStartsFresh(t *testing.T) {
	store := &memStore{err: repository.ErrPreferencesCorrupt}
	svc := newPrefs(t, store, clock.NewFake(nineAM))

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Goals)
	assert.Equal(t, "pt-PT", p.Lang)
}

func TestPreferenceServiceFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewFilePreferenceRepository(t.TempDir() + "/config.json")
	require.NoError(t, err)
	clk := clock.NewFake(nineAM)
	svc := NewPreferenceService(repo, testConfig(t), clk, zerolog.Nop())

	_, err = svc.AddGoal(ctx, model.RegistrationGoal{CourseName: "Redes", Category: model.CategoryProblems, ShiftName: "RC-PB02"})
	require.NoError(t, err)
	clk.Advance(time.Minute)

	reloaded := NewPreferenceService(repo, testConfig(t), clk, zerolog.Nop())
	goals, err := reloaded.Goals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, model.CategoryProblems, goals[0].Category)
}
