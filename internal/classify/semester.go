package classify

import (
	"regexp"
	"strings"

	"github.com/fenixctl/enroller/internal/model"
)

var semesterPhrase = regexp.MustCompile(`(?i)\b([12])\s*(st|nd|º)?\s*(semester|semestre)\b`)

// SemesterStrategies read the semester from a raw academic-term string such
// as "1 Semestre 2025/2026".
var SemesterStrategies = []Strategy[string, model.Semester]{
	SemesterFromLeadingDigit,
	SemesterFromPhrase,
}

// SemesterFromLeadingDigit uses the first character when it is 1 or 2.
func SemesterFromLeadingDigit(term string) (model.Semester, bool) {
	if strings.HasPrefix(term, "1") {
		return model.SemesterFirst, true
	}
	if strings.HasPrefix(term, "2") {
		return model.SemesterSecond, true
	}
	return "", false
}

// SemesterFromPhrase matches "2nd semester", "1º semestre" and the like.
func SemesterFromPhrase(term string) (model.Semester, bool) {
	m := semesterPhrase.FindStringSubmatch(term)
	if m == nil {
		return "", false
	}
	return model.Semester(m[1]), true
}

// Semester classifies an academic-term string; unknown yields "".
func Semester(term string) model.Semester {
	s, _ := FirstMatch(term, SemesterStrategies...)
	return s
}
