package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fenixctl/enroller/internal/model"
)

// Curriculum is a parsed degree curriculum page.
type Curriculum struct {
	doc *goquery.Document
}

// ParseCurriculum parses curriculum HTML.
func ParseCurriculum(html string) (*Curriculum, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Curriculum{doc: doc}, nil
}

// Tokens returns the period token of every curriculum entry for the course
// name, in document order. An entry matches when its anchor text equals
// name or starts with it and ends with ")". The token is the second
// comma-separated field of the block that follows the anchor.
func (c *Curriculum) Tokens(name string) []string {
	if c == nil || c.doc == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	var tokens []string
	c.doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if text != name && !(strings.HasPrefix(text, name) && strings.HasSuffix(text, ")")) {
			return
		}
		block := a.NextAllFiltered("div").First()
		if block.Length() == 0 {
			return
		}
		tokens = append(tokens, secondField(strippedText(block)))
	})
	return tokens
}

// PickToken chooses among curriculum tokens using the semester hint.
func PickToken(tokens []string, semester model.Semester) string {
	switch len(tokens) {
	case 0:
		return ""
	case 1:
		return tokens[0]
	}
	for _, tok := range tokens {
		up := strings.ToUpper(tok)
		switch semester {
		case model.SemesterFirst:
			if up == "P1" || up == "P2" || (strings.HasPrefix(up, "S") && strings.Contains(up, "1")) {
				return tok
			}
		case model.SemesterSecond:
			if up == "P3" || up == "P4" || (strings.HasPrefix(up, "S") && strings.Contains(up, "2")) {
				return tok
			}
		}
	}
	return tokens[0]
}

func secondField(text string) string {
	parts := strings.Split(text, ",")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.NewReplacer("\t", "", " ", "").Replace(parts[1]))
}

// strippedText joins the trimmed, non-empty text nodes under sel with single spaces.
func strippedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}
