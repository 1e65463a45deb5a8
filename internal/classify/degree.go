package classify

import (
	"sort"
	"strings"

	"github.com/fenixctl/enroller/internal/model"
)

const (
	DegreeLicenciatura = "Licenciatura"
	DegreeMestrado     = "Mestrado"
	DegreeMinor        = "Minor"
	DegreeAdvanced     = "Diploma de Estudos Avançados"
	DegreeHACS         = "HACS"
)

// DegreeInput holds the raw degree fields used to infer its type.
type DegreeInput struct {
	// Label is an explicit human-readable type name, when the portal sends one.
	Label   string
	RawType string
	Acronym string
	Name    string
}

// DegreeTypeStrategies infer a degree type, most explicit signal first.
var DegreeTypeStrategies = []Strategy[DegreeInput, string]{
	degreeTypeFromLabel,
	degreeTypeFromRaw,
	degreeTypeFromAcronym,
	degreeTypeFromName,
}

// DegreeType infers the type name of a degree, defaulting to Licenciatura.
func DegreeType(in DegreeInput) string {
	if t, ok := FirstMatch(in, DegreeTypeStrategies...); ok {
		return t
	}
	return DegreeLicenciatura
}

func degreeTypeFromLabel(in DegreeInput) (string, bool) {
	l := strings.TrimSpace(in.Label)
	return l, l != ""
}

func degreeTypeFromRaw(in DegreeInput) (string, bool) {
	raw := strings.ToUpper(in.RawType)
	switch {
	case raw == "":
		return "", false
	case strings.Contains(raw, "LICENCIATURA"), strings.Contains(raw, "BOLONHA_DEGREE"),
		strings.Contains(raw, "BACHELOR"), raw == "DEGREE":
		return DegreeLicenciatura, true
	case strings.Contains(raw, "MESTRADO"), strings.Contains(raw, "MASTER"):
		return DegreeMestrado, true
	case strings.Contains(raw, "MINOR"):
		return DegreeMinor, true
	case strings.Contains(raw, "AVANCADOS"), strings.Contains(raw, "ADVANCED"), strings.Contains(raw, "DEA"):
		return DegreeAdvanced, true
	case strings.Contains(raw, "HACS"):
		return DegreeHACS, true
	}
	return "", false
}

func degreeTypeFromAcronym(in DegreeInput) (string, bool) {
	acr := strings.ToUpper(in.Acronym)
	switch {
	case strings.HasPrefix(acr, "MIN-"):
		return DegreeMinor, true
	case strings.HasPrefix(acr, "HACS"):
		return DegreeHACS, true
	case strings.HasPrefix(acr, "DE") && len(acr) > 2:
		return DegreeAdvanced, true
	case strings.HasPrefix(acr, "LE"), strings.HasPrefix(acr, "LMAC"):
		return DegreeLicenciatura, true
	case strings.HasPrefix(acr, "ME"), strings.HasPrefix(acr, "MA"):
		return DegreeMestrado, true
	}
	return "", false
}

func degreeTypeFromName(in DegreeInput) (string, bool) {
	name := strings.ToLower(in.Name)
	switch {
	case strings.Contains(name, "licenciatura"):
		return DegreeLicenciatura, true
	case strings.Contains(name, "mestrado"):
		return DegreeMestrado, true
	case strings.Contains(name, "minor"):
		return DegreeMinor, true
	case strings.Contains(name, "avançados"), strings.Contains(name, "advanced"):
		return DegreeAdvanced, true
	}
	return "", false
}

// SortDegrees orders degrees by type rank, then by name.
func SortDegrees(degrees []model.Degree) {
	sort.SliceStable(degrees, func(i, j int) bool {
		ri, rj := degrees[i].Rank(), degrees[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(degrees[i].Name) < strings.ToLower(degrees[j].Name)
	})
}
