package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/worker"
)

const (
	enrollmentPath   = "/student/enroll/shift-enrollment"
	navigateRetries  = 5
	afterClickPause  = 3 * time.Second
	afterActionPause = 2 * time.Second
)

// OpenEnrollment loads the shift enrollment page.
func (s *Session) OpenEnrollment(ctx context.Context) error {
	url := strings.TrimRight(s.opts.BaseURL, "/") + enrollmentPath
	var err error
	for attempt := 1; attempt <= navigateRetries; attempt++ {
		if err = s.navigate(ctx, url); err == nil {
			s.snapshot(ctx, "shift_enrollment_landing")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Enrollment page did not load")
		if attempt < navigateRetries {
			if err := s.clock.Sleep(ctx, retryPause); err != nil {
				return err
			}
		}
	}
	return err
}

const continueJS = `(() => {
  const form = document.querySelector("form[action$='studentShiftEnrollmentManager.do']");
  if (!form) return false;
  const btn = Array.from(document.querySelectorAll("input[type=submit]"))
    .find(b => b.value.includes("Continue") || b.value.includes("Continuar"));
  if (btn) { btn.click(); } else { form.submit(); }
  return true;
})()`

// ContinueEnrollment submits the intermediate Continue form when present.
func (s *Session) ContinueEnrollment(ctx context.Context) (bool, error) {
	var submitted bool
	if err := s.run(ctx, chromedp.Evaluate(continueJS, &submitted)); err != nil {
		return false, fmt.Errorf("continue form: %w", err)
	}
	if !submitted {
		return false, nil
	}
	if err := s.clock.Sleep(ctx, afterActionPause); err != nil {
		return true, err
	}
	if err := s.runFor(ctx, s.opts.PageLoadTimeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return true, fmt.Errorf("continue form: %w", err)
	}
	s.snapshot(ctx, "shift_enrollment_after_continue")
	s.log.Info().Msg("Submitted enrollment Continue form")
	return true, nil
}

// PageText returns the visible text of the current page.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// URL returns the current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	return s.runFor(ctx, s.opts.PageLoadTimeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

const linksJS = `Array.from(document.querySelectorAll("a")).map(a => ({href: a.href || "", text: a.innerText || ""}))`

// Attempt scans the page for the goal's registration link and follows it,
// confirming the dialog when one appears. Until opts.RetryWindow elapses it
// reloads the last registration link (or the page) every RetryInterval and
// tries again.
func (s *Session) Attempt(ctx context.Context, goal model.RegistrationGoal, opts worker.AttemptOptions) (bool, error) {
	deadline := s.clock.Now().Add(opts.RetryWindow)
	s.snapshot(ctx, "enroll_search_start")

	var lastHref string
	for {
		ok, href, err := s.tryLinks(ctx, goal)
		if href != "" {
			lastHref = href
		}
		if ok {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			s.log.Debug().Err(err).Str("shift", goal.ShiftName).Msg("Link scan failed")
		}
		if !s.clock.Now().Before(deadline) {
			return false, nil
		}

		if err := s.clock.Sleep(ctx, opts.RetryInterval); err != nil {
			return false, err
		}
		if lastHref != "" {
			err = s.navigate(ctx, lastHref)
		} else {
			err = s.Refresh(ctx)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("shift", goal.ShiftName).Msg("Reload before retry failed")
			return false, nil
		}
	}
}

// tryLinks follows every matching link once. It returns the last href it
// followed so a retry can reload it directly.
func (s *Session) tryLinks(ctx context.Context, goal model.RegistrationGoal) (bool, string, error) {
	var links []Link
	if err := s.run(ctx, chromedp.Evaluate(linksJS, &links)); err != nil {
		return false, "", fmt.Errorf("read links: %w", err)
	}

	var followed string
	for _, l := range MatchLinks(links, goal) {
		followed = l.Href
		ok, err := s.follow(ctx, l)
		if ok {
			return true, followed, nil
		}
		if ctx.Err() != nil {
			return false, followed, ctx.Err()
		}
		if err != nil {
			s.log.Debug().Err(err).Str("href", l.Href).Msg("Registration link failed")
		}
		if err := s.run(ctx, chromedp.NavigateBack()); err != nil {
			s.log.Debug().Err(err).Str("href", l.Href).Msg("Navigating back failed")
		}
		if err := s.clock.Sleep(ctx, afterActionPause); err != nil {
			return false, followed, err
		}
	}
	return false, followed, nil
}

const confirmJS = `(() => {
  const btn = Array.from(document.querySelectorAll("button")).find(b => b.innerText.includes("Confirmar"));
  if (!btn) return false;
  btn.click();
  return true;
})()`

func (s *Session) follow(ctx context.Context, l Link) (bool, error) {
	href, err := json.Marshal(l.Href)
	if err != nil {
		return false, err
	}
	click := fmt.Sprintf(`(() => {
  const a = Array.from(document.querySelectorAll("a")).find(a => a.href === %s);
  if (!a) return false;
  a.scrollIntoView(true);
  a.click();
  return true;
})()`, href)

	var clicked bool
	if err := s.run(ctx, chromedp.Evaluate(click, &clicked)); err != nil {
		return false, err
	}
	if !clicked {
		return false, nil
	}
	if err := s.clock.Sleep(ctx, afterClickPause); err != nil {
		return false, err
	}
	s.snapshot(ctx, "enroll_after_click")

	var confirmed bool
	if err := s.run(ctx, chromedp.Evaluate(confirmJS, &confirmed)); err == nil && confirmed {
		if err := s.clock.Sleep(ctx, afterActionPause); err != nil {
			return false, err
		}
	}

	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return false, err
	}
	return IsEnrollSuccess(html), nil
}
