package classify

import "strings"

const (
	CampusAlameda   = "Alameda"
	CampusTaguspark = "Taguspark"
)

// NormalizeCampus folds portal spellings onto the canonical campus names.
func NormalizeCampus(raw string) string {
	s := strings.TrimSpace(raw)
	switch l := strings.ToLower(s); {
	case l == "":
		return ""
	case strings.Contains(l, "alameda"):
		return CampusAlameda
	case strings.Contains(l, "tagus"):
		return CampusTaguspark
	}
	return s
}

// DegreeCampus returns the campus implied by a degree acronym suffix
// ("LEIC-A", "LEIC-T"), or "" when none is implied.
func DegreeCampus(acronym string) string {
	a := strings.ToUpper(strings.TrimSpace(acronym))
	switch {
	case strings.HasSuffix(a, "-A"):
		return CampusAlameda
	case strings.HasSuffix(a, "-T"):
		return CampusTaguspark
	}
	return ""
}

// InCampus reports whether any of campuses is campus. An empty campus or an
// empty campus list always matches.
func InCampus(campuses []string, campus string) bool {
	if campus == "" || campus == "All" || len(campuses) == 0 {
		return true
	}
	for _, c := range campuses {
		if strings.EqualFold(NormalizeCampus(c), NormalizeCampus(campus)) {
			return true
		}
	}
	return false
}
