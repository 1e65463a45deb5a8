// Package fenix reads the public Fenix REST API and curriculum pages.
package fenix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/model"
)

const (
	userAgent   = "fenix-enroller/1.0"
	maxBodySize = 16 << 20
)

var (
	ErrNotFound         = errors.New("fenix: not found")
	ErrUnexpectedStatus = errors.New("fenix: unexpected status")
)

// Client talks to the Fenix API. It is safe for concurrent use.
type Client struct {
	apiURL     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu      sync.Mutex
	details map[string]CourseDetail
}

// NewClient creates a new Client. apiURL is the REST root
// (".../api/fenix/v1"), baseURL the site root used for curriculum pages.
func NewClient(apiURL, baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log.With().Str("component", "fenix_client").Logger(),
		details:    make(map[string]CourseDetail),
	}
}

// DefaultHTTPClient returns the HTTP client used against the portal.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Degrees lists every degree offered in term. An empty term lists all.
func (c *Client) Degrees(ctx context.Context, lang, term string) ([]model.Degree, error) {
	var raw []rawDegree
	if err := c.getJSON(ctx, "/degrees/all", url.Values{"lang": {lang}}, &raw); err != nil {
		return nil, fmt.Errorf("list degrees: %w", err)
	}
	out := make([]model.Degree, 0, len(raw))
	for _, d := range raw {
		if term != "" && !d.offeredIn(term) {
			continue
		}
		out = append(out, d.toModel())
	}
	return out, nil
}

// Courses lists the courses of a degree in an academic term.
func (c *Client) Courses(ctx context.Context, degreeID, term, lang string) ([]CourseRef, error) {
	var raw []rawCourse
	q := url.Values{"academicTerm": {term}, "lang": {lang}}
	if err := c.getJSON(ctx, "/degrees/"+url.PathEscape(degreeID)+"/courses", q, &raw); err != nil {
		return nil, fmt.Errorf("list courses of degree %s: %w", degreeID, err)
	}
	out := make([]CourseRef, 0, len(raw))
	for _, rc := range raw {
		ref := rc.toRef()
		if ref.ID == "" {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

// Schedule fetches the shifts and course loads of one course.
func (c *Client) Schedule(ctx context.Context, courseID, lang string) (Schedule, error) {
	var raw rawSchedule
	if err := c.getJSON(ctx, "/courses/"+url.PathEscape(courseID)+"/schedule", url.Values{"lang": {lang}}, &raw); err != nil {
		return Schedule{}, fmt.Errorf("schedule of course %s: %w", courseID, err)
	}
	return raw.toSchedule(), nil
}

// CourseDetail returns the name and page URL of a course in lang. Results,
// including failures, are cached for the life of the client.
func (c *Client) CourseDetail(ctx context.Context, courseID, lang string) (CourseDetail, error) {
	key := config.CacheKey.CourseNameKey(courseID, lang)
	c.mu.Lock()
	d, ok := c.details[key]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	var raw struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	err := c.getJSON(ctx, "/courses/"+url.PathEscape(courseID), url.Values{"lang": {lang}}, &raw)
	if err != nil && ctx.Err() != nil {
		return CourseDetail{}, err
	}
	if err != nil {
		c.log.Debug().Err(err).Str("course_id", courseID).Msg("Course detail unavailable")
	}
	d = CourseDetail{Name: strings.TrimSpace(raw.Name), URL: raw.URL}

	c.mu.Lock()
	c.details[key] = d
	c.mu.Unlock()
	return d, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	body, err := c.get(ctx, c.apiURL+path+"?"+q.Encode(), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
