package classify

import (
	"strings"

	"github.com/fenixctl/enroller/internal/model"
)

var categoryKeywords = []struct {
	cat      model.Category
	exact    []string
	contains []string
}{
	// TP goes first: "teórico-prática" also contains "teórico".
	{model.CategoryTheoryPractice, []string{"TP", "TEORICO_PRATICA", "TEÓRICO-PRÁTICA"}, []string{"teórico-prática", "teorico-pratica", "teorico_pratica"}},
	{model.CategoryTheory, []string{"T", "TEO", "TEOR", "THEORY", "TEORICA", "TEÓRICA"}, []string{"teórico", "teorico"}},
	{model.CategoryLab, []string{"L", "LAB", "LABORATORIAL", "LABORATORIO", "LABORATÓRIO"}, []string{"laboratório", "laboratorio"}},
	{model.CategoryProblems, []string{"PB", "PROBLEMS", "PROBLEMAS"}, []string{"problemas"}},
	{model.CategorySeminar, []string{"S", "SEM", "SEMINAR", "SEMINARY", "SEMINÁRIO", "SEMINARIO"}, []string{"semin"}},
	{model.CategoryTutorial, []string{"TO", "TUTO", "TUTORIAL", "TUTORIAL_ORIENTATION", "ORIENTATION"}, []string{"tutorial", "orient"}},
}

// NormalizeCategory maps a raw shift type ("TEORICA", "Laboratório", "TP")
// to a category. Unknown values return false.
func NormalizeCategory(raw string) (model.Category, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	upper := strings.ToUpper(raw)
	lower := strings.ToLower(raw)
	for _, k := range categoryKeywords {
		for _, e := range k.exact {
			if upper == e {
				return k.cat, true
			}
		}
		for _, c := range k.contains {
			if strings.Contains(lower, c) {
				return k.cat, true
			}
		}
	}
	return "", false
}

// CategoryFromShiftName guesses a category from a shift name such as
// "ALT01" or "FISL02".
func CategoryFromShiftName(name string) (model.Category, bool) {
	switch {
	case strings.Contains(name, "TP"):
		return model.CategoryTheoryPractice, true
	case strings.Contains(name, "PB"):
		return model.CategoryProblems, true
	case strings.Contains(name, "L"):
		return model.CategoryLab, true
	case strings.Contains(name, "T"):
		return model.CategoryTheory, true
	}
	return "", false
}
