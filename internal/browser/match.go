package browser

import (
	"strings"

	"github.com/fenixctl/enroller/internal/model"
)

// enrollHrefMarker identifies shift registration links on the enrollment page.
const enrollHrefMarker = "enrollStudentInShifts"

var (
	loginSuccessKeywords = []string{"logout", "sair", "estudante", "aluno", "student"}
	loginErrorKeywords   = []string{
		"credenciais inválidas", "invalid credentials",
		"acesso negado", "access denied",
		"utilizador não encontrado", "user not found",
		"username ou password incorretos",
	}
	enrollSuccessKeywords = []string{"sucesso", "success", "enrolled", "inscrito"}
)

// Link is an anchor read from the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// MatchLinks returns the registration links for goal in page order. With a
// shift name the name must appear in the link text or href; without one the
// text must carry both the course name and the category.
func MatchLinks(links []Link, goal model.RegistrationGoal) []Link {
	shift := strings.ToLower(strings.TrimSpace(goal.ShiftName))
	course := strings.ToLower(goal.CourseName)
	cat := strings.ToLower(string(goal.Category))

	var out []Link
	for _, l := range links {
		if !strings.Contains(l.Href, enrollHrefMarker) {
			continue
		}
		text := strings.ToLower(l.Text)
		if shift != "" {
			if !strings.Contains(text+" "+strings.ToLower(l.Href), shift) {
				continue
			}
		} else if !strings.Contains(text, course) || !strings.Contains(text, cat) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// IsEnrollSuccess reports whether the page confirms a registration.
func IsEnrollSuccess(html string) bool {
	return containsAny(strings.ToLower(html), enrollSuccessKeywords)
}

type loginState int

const (
	loginPending loginState = iota
	loginOK
	loginRejected
)

// loginPage is what the login poll sees after submitting credentials.
type loginPage struct {
	URL         string
	HTML        string
	LoginFields bool
}

func classifyLogin(p loginPage) loginState {
	html := strings.ToLower(p.HTML)
	url := strings.ToLower(p.URL)

	switch {
	case containsAny(html, loginSuccessKeywords):
		return loginOK
	case !strings.Contains(url, "login") && !strings.Contains(url, "cas") && !p.LoginFields:
		return loginOK
	case strings.Contains(url, "login.do") && !p.LoginFields:
		// Fenix sometimes parks an authenticated session on login.do.
		return loginOK
	case containsAny(html, loginErrorKeywords):
		return loginRejected
	}
	return loginPending
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
