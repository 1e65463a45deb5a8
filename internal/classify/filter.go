package classify

import (
	"strings"
	"time"

	"github.com/fenixctl/enroller/internal/model"
)

// UnknownPeriodPolicy decides whether an offering with no recoverable period
// passes a period filter.
type UnknownPeriodPolicy string

const (
	// UnknownPeriodRejects excludes offerings with no known period.
	UnknownPeriodRejects UnknownPeriodPolicy = "reject"
	// UnknownPeriodPasses lets offerings with no known period through every filter.
	UnknownPeriodPasses UnknownPeriodPolicy = "pass"
	// UnknownPeriodPassesWhenEmpty filters strictly first and only lets
	// unknown offerings through when the strict result is empty.
	UnknownPeriodPassesWhenEmpty UnknownPeriodPolicy = "pass_when_empty"
)

// ParseUnknownPeriodPolicy maps a config value to a policy, defaulting to
// UnknownPeriodPassesWhenEmpty.
func ParseUnknownPeriodPolicy(s string) UnknownPeriodPolicy {
	switch UnknownPeriodPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case UnknownPeriodRejects:
		return UnknownPeriodRejects
	case UnknownPeriodPasses:
		return UnknownPeriodPasses
	default:
		return UnknownPeriodPassesWhenEmpty
	}
}

// PeriodsFor lists the half-terms of a semester.
func PeriodsFor(s model.Semester) []model.Period {
	if s == model.SemesterSecond {
		return []model.Period{model.PeriodP3, model.PeriodP4}
	}
	return []model.Period{model.PeriodP1, model.PeriodP2}
}

// SemesterOf maps a half-term to its semester.
func SemesterOf(p model.Period) model.Semester {
	switch p {
	case model.PeriodP1, model.PeriodP2:
		return model.SemesterFirst
	case model.PeriodP3, model.PeriodP4:
		return model.SemesterSecond
	}
	return ""
}

// DefaultSemester picks the semester that is usually being enrolled for in
// the month of now: February to July is the second semester.
func DefaultSemester(now time.Time) model.Semester {
	if m := now.Month(); m >= time.February && m <= time.July {
		return model.SemesterSecond
	}
	return model.SemesterFirst
}

// MatchesSemester keeps offerings of semester s. Offerings without any hint pass.
func MatchesSemester(o model.Offering, s model.Semester) bool {
	if s == "" {
		return true
	}
	if o.SemesterHint != "" {
		return o.SemesterHint == s
	}
	if sem := SemesterOf(o.PeriodHint); sem != "" {
		return sem == s
	}
	return true
}

// KnownPeriods returns the periods an offering runs in, looking at the period
// hint first and then at its course loads. A load tagged as semester-long
// ("SEM", "S1") expands to both periods of semester s. Nil means unknown.
func KnownPeriods(o model.Offering, s model.Semester) []model.Period {
	if o.PeriodHint != "" {
		return []model.Period{o.PeriodHint}
	}
	seen := make(map[model.Period]bool)
	var out []model.Period
	add := func(p model.Period) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, load := range o.CourseLoads {
		for _, raw := range load.Periods {
			up := strings.ToUpper(raw)
			for _, p := range model.Periods {
				if strings.Contains(up, string(p)) {
					add(p)
				}
			}
			if s != "" && (strings.Contains(up, "SEM") || strings.HasPrefix(up, "S")) {
				for _, p := range PeriodsFor(s) {
					add(p)
				}
			}
		}
	}
	return out
}

// MatchesPeriod reports whether the offering runs in period p. Offerings with
// no known period pass only when allowUnknown is set.
func MatchesPeriod(o model.Offering, p model.Period, s model.Semester, allowUnknown bool) bool {
	if p == "" {
		return true
	}
	known := KnownPeriods(o, s)
	if len(known) == 0 {
		return allowUnknown
	}
	for _, k := range known {
		if k == p {
			return true
		}
	}
	return false
}

// FilterByPeriod applies the period filter under policy.
func FilterByPeriod(offerings []model.Offering, p model.Period, s model.Semester, policy UnknownPeriodPolicy) []model.Offering {
	strict := filter(offerings, func(o model.Offering) bool {
		return MatchesPeriod(o, p, s, policy == UnknownPeriodPasses)
	})
	if len(strict) > 0 || policy != UnknownPeriodPassesWhenEmpty {
		return strict
	}
	return filter(offerings, func(o model.Offering) bool {
		return MatchesPeriod(o, p, s, true)
	})
}

// Search keeps offerings whose name, code or acronym contains q, case-insensitively.
func Search(offerings []model.Offering, q string) []model.Offering {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return offerings
	}
	return filter(offerings, func(o model.Offering) bool {
		return strings.Contains(strings.ToLower(o.Name), q) ||
			strings.Contains(strings.ToLower(o.Code), q) ||
			strings.Contains(strings.ToLower(o.Acronym), q)
	})
}

func filter(in []model.Offering, keep func(model.Offering) bool) []model.Offering {
	out := make([]model.Offering, 0, len(in))
	for _, o := range in {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}
