package classify

import (
	"regexp"
	"strings"

	"github.com/fenixctl/enroller/internal/model"
)

var periodToken = regexp.MustCompile(`\bP[1-4]\b`)

// Input is everything the period classifier looks at for one offering.
type Input struct {
	// Name is the display name in the active language.
	Name string
	// CurriculumName is the name as written in the curriculum document, when
	// it differs from Name.
	CurriculumName string
	AcademicTerm   string
	// Signals are period-like strings collected from the offering, its
	// schedule document and its course loads.
	Signals    []string
	Curriculum *Curriculum
	// SemesterHint disambiguates curriculum entries. Classify fills it from
	// AcademicTerm.
	SemesterHint model.Semester
}

// Result holds the inferred hints. Empty fields mean unknown.
type Result struct {
	Semester model.Semester `json:"semester_hint"`
	Period   model.Period   `json:"period_hint"`
}

// PeriodStrategies are tried in order; the curriculum is only consulted
// when the schedule metadata carries no period.
var PeriodStrategies = []Strategy[Input, model.Period]{
	PeriodFromToken,
	PeriodFromSubstring,
	PeriodFromCurriculum,
}

// PeriodFromToken finds P1..P4 as a whole word in the joined signals.
func PeriodFromToken(in Input) (model.Period, bool) {
	m := periodToken.FindString(joinSignals(in.Signals))
	if m == "" {
		return "", false
	}
	return model.Period(m), true
}

// PeriodFromSubstring falls back to a plain substring test, P1 first.
func PeriodFromSubstring(in Input) (model.Period, bool) {
	joined := joinSignals(in.Signals)
	if joined == "" {
		return "", false
	}
	for _, p := range model.Periods {
		if strings.Contains(joined, string(p)) {
			return p, true
		}
	}
	return "", false
}

// PeriodFromCurriculum reads the period token next to the course entry in
// the curriculum document. Tokens that are not P1..P4 are treated as unknown.
func PeriodFromCurriculum(in Input) (model.Period, bool) {
	tok := curriculumToken(in)
	p, ok := ParsePeriod(tok)
	return p, ok
}

func curriculumToken(in Input) string {
	if in.Curriculum == nil {
		return ""
	}
	name := in.CurriculumName
	if name == "" {
		name = in.Name
	}
	return PickToken(in.Curriculum.Tokens(name), in.SemesterHint)
}

// ParsePeriod accepts p1..p4 in any case.
func ParsePeriod(s string) (model.Period, bool) {
	up := model.Period(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range model.Periods {
		if up == p {
			return p, true
		}
	}
	return "", false
}

// Classify infers both hints for one offering. It is a pure function of in.
func Classify(in Input) Result {
	in.SemesterHint = Semester(in.AcademicTerm)
	period, _ := FirstMatch(in, PeriodStrategies...)

	res := Result{Semester: in.SemesterHint, Period: period}
	if res.Period == "" && res.Semester == "" {
		// A semester-long curriculum entry such as "S1" still tells the half.
		tok := strings.ToUpper(curriculumToken(in))
		switch {
		case strings.HasPrefix(tok, "S") && strings.Contains(tok, "1"):
			res.Semester = model.SemesterFirst
		case strings.HasPrefix(tok, "S") && strings.Contains(tok, "2"):
			res.Semester = model.SemesterSecond
		}
	}
	return res
}

func joinSignals(signals []string) string {
	return strings.ToUpper(strings.Join(signals, " "))
}
