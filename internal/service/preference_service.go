package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/repository"
)

var ErrGoalIndex = errors.New("goal index out of range")

// PreferenceStore persists the operator record.
type PreferenceStore interface {
	Load(ctx context.Context) (*model.Preferences, error)
	Save(ctx context.Context, prefs *model.Preferences) error
}

// QueueCheck vets the goal queue of p before it is saved.
type QueueCheck func(ctx context.Context, p *model.Preferences) error

// PreferenceService owns the operator record and the goal queue. Every
// change is a read-modify-write under one lock.
type PreferenceService struct {
	store PreferenceStore
	lang  string
	term  string
	clock clock.Clock
	check QueueCheck
	log   zerolog.Logger
	mu    sync.Mutex
}

// NewPreferenceService creates a new PreferenceService.
func NewPreferenceService(store PreferenceStore, cfg *config.Config, clk clock.Clock, log zerolog.Logger) *PreferenceService {
	return &PreferenceService{
		store: store,
		lang:  cfg.Lang,
		term:  cfg.Term,
		clock: clk,
		log:   log.With().Str("component", "preference_service").Logger(),
	}
}

// WithQueueCheck makes AddGoal reject a goal when check fails on the
// resulting queue.
func (s *PreferenceService) WithQueueCheck(check QueueCheck) *PreferenceService {
	s.check = check
	return s
}

// Get returns the current record with language and term defaults applied.
func (s *PreferenceService) Get(ctx context.Context) (*model.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Update applies the non-nil fields of req.
func (s *PreferenceService) Update(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Preferences, error) {
	return s.mutate(ctx, func(p *model.Preferences) error {
		if req.DegreeID != nil {
			p.DegreeID = strings.TrimSpace(*req.DegreeID)
		}
		if req.DegreeAcronym != nil {
			p.DegreeAcronym = strings.TrimSpace(*req.DegreeAcronym)
		}
		if req.Lang != nil {
			p.Lang = *req.Lang
		}
		if req.Term != nil {
			p.Term = strings.TrimSpace(*req.Term)
		}
		if req.Semester != nil {
			p.Semester = *req.Semester
		}
		if req.Period != nil {
			p.Period = *req.Period
		}
		if req.Campus != nil {
			p.Campus = strings.TrimSpace(*req.Campus)
		}
		if req.SelectedCourses != nil {
			p.SelectedCourses = req.SelectedCourses
		}
		return nil
	})
}

// SaveSelection stores the schedule builder state and queues one goal per
// chosen shift, replacing earlier goals for the same course and category.
// Nothing is saved when check rejects the merged queue.
func (s *PreferenceService) SaveSelection(ctx context.Context, courseIDs []string, choices model.Choices, goals []model.RegistrationGoal, check QueueCheck) (*model.Preferences, error) {
	return s.mutate(ctx, func(p *model.Preferences) error {
		p.SelectedCourses = courseIDs
		p.SelectedShifts = choices
		for _, g := range goals {
			p.UpsertGoal(g)
		}
		if check != nil {
			return check(ctx, p)
		}
		return nil
	})
}

// Goals returns the queue in FIFO order.
func (s *PreferenceService) Goals(ctx context.Context) ([]model.RegistrationGoal, error) {
	p, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.Goals, nil
}

// AddGoal appends g, or replaces the goal with the same course and category in place.
func (s *PreferenceService) AddGoal(ctx context.Context, g model.RegistrationGoal) ([]model.RegistrationGoal, error) {
	p, err := s.mutate(ctx, func(p *model.Preferences) error {
		g.CourseName = strings.TrimSpace(g.CourseName)
		g.ShiftName = strings.TrimSpace(g.ShiftName)
		p.UpsertGoal(g)
		if s.check != nil {
			return s.check(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Goals, nil
}

// RemoveGoal drops the goal at index.
func (s *PreferenceService) RemoveGoal(ctx context.Context, index int) ([]model.RegistrationGoal, error) {
	p, err := s.mutate(ctx, func(p *model.Preferences) error {
		if index < 0 || index >= len(p.Goals) {
			return ErrGoalIndex
		}
		p.Goals = append(p.Goals[:index], p.Goals[index+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Goals, nil
}

// ClearGoals empties the queue.
func (s *PreferenceService) ClearGoals(ctx context.Context) error {
	_, err := s.mutate(ctx, func(p *model.Preferences) error {
		p.Goals = []model.RegistrationGoal{}
		return nil
	})
	return err
}

// ConsumeConfirmed removes goals the portal confirmed.
func (s *PreferenceService) ConsumeConfirmed(ctx context.Context, confirmed []model.RegistrationGoal) error {
	if len(confirmed) == 0 {
		return nil
	}
	_, err := s.mutate(ctx, func(p *model.Preferences) error {
		p.RemoveGoals(confirmed)
		return nil
	})
	return err
}

func (s *PreferenceService) mutate(ctx context.Context, fn func(p *model.Preferences) error) (*model.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PreferenceService) load(ctx context.Context) (*model.Preferences, error) {
	p, err := s.store.Load(ctx)
	if errors.Is(err, repository.ErrPreferencesCorrupt) {
		s.log.Warn().Err(err).Msg("Stored preferences unreadable, starting fresh")
		p, err = &model.Preferences{}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Lang == "" {
		p.Lang = s.lang
	}
	if p.Term == "" {
		p.Term = s.term
	}
	if p.SelectedShifts == nil {
		p.SelectedShifts = model.Choices{}
	}
	if p.Goals == nil {
		p.Goals = []model.RegistrationGoal{}
	}
	if p.SelectedCourses == nil {
		p.SelectedCourses = []string{}
	}
	return p, nil
}
