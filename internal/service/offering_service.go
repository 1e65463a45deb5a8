package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/classify"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/fenix"
	"github.com/fenixctl/enroller/internal/metrics"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/repository"
)

// curriculumLang is the language the curriculum pages are written in.
const curriculumLang = "pt-PT"

const scheduleFetchers = 8

var ErrNoDegree = errors.New("no degree selected")

// CourseSource is the read side of the Fenix API.
type CourseSource interface {
	Degrees(ctx context.Context, lang, term string) ([]model.Degree, error)
	Courses(ctx context.Context, degreeID, term, lang string) ([]fenix.CourseRef, error)
	Schedule(ctx context.Context, courseID, lang string) (fenix.Schedule, error)
	CourseDetail(ctx context.Context, courseID, lang string) (fenix.CourseDetail, error)
}

// CurriculumSource returns a degree's curriculum HTML for a term.
type CurriculumSource interface {
	Fetch(ctx context.Context, acronym, term string) (string, error)
}

// OfferingQuery identifies one offering list.
type OfferingQuery struct {
	DegreeID      string
	DegreeAcronym string
	Lang          string
	Term          string
}

// OfferingFilter narrows an offering list. Empty fields do not filter.
type OfferingFilter struct {
	Semester model.Semester
	Period   model.Period
	Campus   string
	Query    string
}

// OfferingService loads, classifies and filters course offerings.
type OfferingService struct {
	source     CourseSource
	curriculum CurriculumSource
	cache      repository.OfferingCache
	ttl        time.Duration
	policy     classify.UnknownPeriodPolicy
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewOfferingService creates a new OfferingService. curriculum may be nil.
func NewOfferingService(
	source CourseSource,
	curriculum CurriculumSource,
	cache repository.OfferingCache,
	cfg *config.Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *OfferingService {
	return &OfferingService{
		source:     source,
		curriculum: curriculum,
		cache:      cache,
		ttl:        cfg.OfferingCacheTTL,
		policy:     classify.ParseUnknownPeriodPolicy(cfg.UnknownPeriodPolicy),
		metrics:    m,
		log:        log.With().Str("component", "offering_service").Logger(),
	}
}

// Degrees lists the degrees offered in term, ordered by type rank and name.
func (s *OfferingService) Degrees(ctx context.Context, lang, term string) ([]model.Degree, error) {
	degrees, err := s.source.Degrees(ctx, lang, term)
	if err != nil {
		return nil, err
	}
	classify.SortDegrees(degrees)
	return degrees, nil
}

// Offerings returns the classified offerings of a degree. Lists are cached
// per (degree, lang, term) and never rebuilt while the entry lives.
func (s *OfferingService) Offerings(ctx context.Context, q OfferingQuery) ([]model.Offering, error) {
	if q.DegreeID == "" {
		return nil, ErrNoDegree
	}
	key := config.CacheKey.OfferingsKey(q.DegreeID, q.Lang, q.Term)

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Offering cache read failed")
	} else if ok {
		s.metrics.OfferingLoads.WithLabelValues("cache").Inc()
		return cached, nil
	}

	offerings, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}
	s.metrics.OfferingLoads.WithLabelValues("portal").Inc()

	stored, err := s.cache.SetOnce(ctx, key, offerings, s.ttl)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Offering cache write failed")
		return offerings, nil
	}
	if !stored {
		// Another loader won the race; serve its list so every caller sees the same data.
		if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return cached, nil
		}
	}
	return offerings, nil
}

// Filter applies semester, period, campus and text filters in that order.
func (s *OfferingService) Filter(offerings []model.Offering, f OfferingFilter) []model.Offering {
	out := make([]model.Offering, 0, len(offerings))
	for _, o := range offerings {
		if classify.MatchesSemester(o, f.Semester) && classify.InCampus(o.Campuses(), f.Campus) {
			out = append(out, o)
		}
	}
	out = classify.FilterByPeriod(out, f.Period, f.Semester, s.policy)
	return classify.Search(out, f.Query)
}

// ByIDs picks offerings by id, preserving the order of ids and skipping unknown ones.
func ByIDs(offerings []model.Offering, ids []string) []model.Offering {
	index := make(map[string]int, len(offerings))
	for i, o := range offerings {
		index[o.ID] = i
	}
	out := make([]model.Offering, 0, len(ids))
	for _, id := range ids {
		if i, ok := index[id]; ok {
			out = append(out, offerings[i])
		}
	}
	return out
}

func (s *OfferingService) load(ctx context.Context, q OfferingQuery) ([]model.Offering, error) {
	refs, err := s.source.Courses(ctx, q.DegreeID, q.Term, q.Lang)
	if err != nil {
		return nil, err
	}
	curriculum := s.loadCurriculum(ctx, q)

	offerings := make([]model.Offering, len(refs))
	sem := make(chan struct{}, scheduleFetchers)
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			offerings[i] = s.enrich(ctx, q, ref, curriculum)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("degree_id", q.DegreeID).
		Int("offerings", len(offerings)).
		Bool("curriculum", curriculum != nil).
		Msg("Offerings loaded")
	return offerings, nil
}

func (s *OfferingService) loadCurriculum(ctx context.Context, q OfferingQuery) *classify.Curriculum {
	if s.curriculum == nil || q.DegreeAcronym == "" {
		return nil
	}
	html, err := s.curriculum.Fetch(ctx, q.DegreeAcronym, q.Term)
	if err != nil {
		s.log.Warn().Err(err).Str("degree", q.DegreeAcronym).Msg("Curriculum unavailable")
		return nil
	}
	c, err := classify.ParseCurriculum(html)
	if err != nil {
		s.log.Warn().Err(err).Str("degree", q.DegreeAcronym).Msg("Curriculum unparsable")
		return nil
	}
	return c
}

// enrich fetches a course's schedule and fills in its hints. A missing
// schedule leaves the course without shifts instead of failing the list.
func (s *OfferingService) enrich(ctx context.Context, q OfferingQuery, ref fenix.CourseRef, curriculum *classify.Curriculum) model.Offering {
	sched, err := s.source.Schedule(ctx, ref.ID, q.Lang)
	if err != nil {
		s.log.Warn().Err(err).Str("course_id", ref.ID).Msg("Schedule unavailable")
	}

	o := fenix.Offering(ref, sched)
	in := classify.Input{
		Name:         o.Name,
		AcademicTerm: o.AcademicTerm,
		Signals:      fenix.Signals(ref, sched),
	}
	res := classify.Classify(in)

	if res.Period == "" && curriculum != nil {
		in.Curriculum = curriculum
		if q.Lang != curriculumLang {
			if d, err := s.source.CourseDetail(ctx, ref.ID, curriculumLang); err == nil && d.Name != "" {
				in.CurriculumName = d.Name
			}
		}
		res = classify.Classify(in)
	}

	o.SemesterHint = res.Semester
	o.PeriodHint = res.Period
	return o
}
