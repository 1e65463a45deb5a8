package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/schedule"
)

var ErrNoCourses = errors.New("none of the requested courses is offered")

// Board is the schedule builder view of a set of courses.
type Board struct {
	Columns []schedule.Column        `json:"columns"`
	Choices model.Choices            `json:"choices"`
	Goals   []model.RegistrationGoal `json:"goals"`
}

// ScheduleService builds conflict-free shift selections.
type ScheduleService struct {
	offerings *OfferingService
	prefs     *PreferenceService
	log       zerolog.Logger
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(offerings *OfferingService, prefs *PreferenceService, log zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		offerings: offerings,
		prefs:     prefs,
		log:       log.With().Str("component", "schedule_service").Logger(),
	}
}

// Board lays out the requested courses. Without explicit choices the saved
// selection is restored.
func (s *ScheduleService) Board(ctx context.Context, req model.BoardRequest) (*Board, error) {
	sel, p, err := s.selector(ctx, req.CourseIDs)
	if err != nil {
		return nil, err
	}
	campus := req.Campus
	if campus == "" {
		campus = p.Campus
	}
	sel.SetCampus(campus)

	choices := req.Choices
	if choices == nil {
		choices = p.SelectedShifts
	}
	sel.Restore(choices)

	return &Board{Columns: sel.Board(), Choices: sel.Choices(), Goals: sel.Goals()}, nil
}

// Confirm validates a selection and queues its goals.
func (s *ScheduleService) Confirm(ctx context.Context, req model.ConfirmScheduleRequest) (*model.Preferences, error) {
	sel, _, err := s.selector(ctx, req.CourseIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range req.CourseIDs {
		for _, cat := range model.Categories {
			name := req.Choices[id][cat]
			if name == "" {
				continue
			}
			if err := sel.Toggle(id, cat, name); err != nil {
				return nil, fmt.Errorf("%s %s %s: %w", id, cat, name, err)
			}
		}
	}

	goals := sel.Goals()
	p, err := s.prefs.SaveSelection(ctx, req.CourseIDs, sel.Choices(), goals, s.CheckQueue)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("goals", len(goals)).Msg("Schedule confirmed")
	return p, nil
}

// CheckQueue fails with schedule.ErrShiftConflict when two queued goals of
// different courses overlap. Goals whose course or shift is not among the
// saved degree's offerings are not checked.
func (s *ScheduleService) CheckQueue(ctx context.Context, p *model.Preferences) error {
	if len(p.Goals) < 2 {
		return nil
	}
	all, err := s.offerings.Offerings(ctx, QueryFor(p))
	if err != nil {
		s.log.Debug().Err(err).Msg("Offerings unavailable, goal queue not checked for conflicts")
		return nil
	}
	if a, b, found := schedule.FirstConflict(all, p.Goals); found {
		return fmt.Errorf("%s %s overlaps %s %s: %w", a.CourseName, a.ShiftName, b.CourseName, b.ShiftName, schedule.ErrShiftConflict)
	}
	return nil
}

func (s *ScheduleService) selector(ctx context.Context, courseIDs []string) (*schedule.Selector, *model.Preferences, error) {
	p, err := s.prefs.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.offerings.Offerings(ctx, QueryFor(p))
	if err != nil {
		return nil, nil, err
	}
	selected := ByIDs(all, courseIDs)
	if len(selected) == 0 {
		return nil, nil, ErrNoCourses
	}
	return schedule.NewSelector(selected), p, nil
}

// QueryFor builds the offering query of the operator's saved degree.
func QueryFor(p *model.Preferences) OfferingQuery {
	return OfferingQuery{
		DegreeID:      p.DegreeID,
		DegreeAcronym: p.DegreeAcronym,
		Lang:          p.Lang,
		Term:          p.Term,
	}
}
