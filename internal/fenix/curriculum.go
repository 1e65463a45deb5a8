package fenix

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/fenixctl/enroller/internal/config"
)

var yearParam = regexp.MustCompile(`year=(\d+)`)

// CurriculumClient fetches degree curriculum pages, picking the page for the
// requested academic year from the page's year dropdown.
type CurriculumClient struct {
	client *Client

	mu    sync.Mutex
	pages map[string]string
}

func NewCurriculumClient(client *Client) *CurriculumClient {
	return &CurriculumClient{client: client, pages: make(map[string]string)}
}

// Fetch returns the curriculum HTML of a degree for term. Successful fetches
// are cached per (acronym, term).
func (cc *CurriculumClient) Fetch(ctx context.Context, acronym, term string) (string, error) {
	if strings.TrimSpace(acronym) == "" {
		return "", fmt.Errorf("curriculum: empty degree acronym")
	}
	key := config.CacheKey.CurriculumKey(acronym, term)
	cc.mu.Lock()
	html, ok := cc.pages[key]
	cc.mu.Unlock()
	if ok {
		return html, nil
	}

	pageURL := cc.client.baseURL + "/cursos/" + url.PathEscape(strings.ToLower(acronym)) + "/curriculo"
	body, err := cc.client.get(ctx, pageURL, "text/html")
	if err != nil {
		return "", fmt.Errorf("fetch curriculum of %s: %w", acronym, err)
	}
	html = string(body)

	if year := selectYear(html, term); year != "" {
		body, err := cc.client.get(ctx, pageURL+"?year="+url.QueryEscape(year), "text/html")
		if err != nil {
			cc.client.log.Warn().Err(err).Str("degree", acronym).Str("year", year).
				Msg("Curriculum year page unavailable, using default page")
		} else {
			html = string(body)
		}
	}

	cc.mu.Lock()
	cc.pages[key] = html
	cc.mu.Unlock()
	return html, nil
}

// selectYear finds the year parameter of the dropdown entry mentioning term.
func selectYear(html, term string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var year string
	doc.Find("div#content-block ul.dropdown-menu a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(a.Text()), term) {
			return true
		}
		href, _ := a.Attr("href")
		if m := yearParam.FindStringSubmatch(href); m != nil {
			year = m[1]
			return false
		}
		return true
	})
	return year
}
