// Package browser drives the Fenix portal through a headless Chrome session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/config"
)

var (
	ErrLoginRejected = errors.New("portal rejected the credentials")
	ErrLoginFailed   = errors.New("portal login did not complete")
)

const (
	loginPolls     = 10
	loginPollEvery = time.Second
	retryPause     = 3 * time.Second
	initPause      = 2 * time.Second
	settlePause    = 2 * time.Second
)

// Options configure a portal session.
type Options struct {
	BaseURL         string
	Headless        bool
	ChromeBin       string
	Timeout         time.Duration
	PageLoadTimeout time.Duration
	InitRetries     int
	LoginRetries    int
}

// OptionsFrom maps application config onto session options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		BaseURL:         cfg.FenixBaseURL,
		Headless:        cfg.Browser.Headless,
		ChromeBin:       cfg.Browser.ChromeBin,
		Timeout:         cfg.Browser.Timeout,
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		InitRetries:     max(1, cfg.Browser.InitRetries),
		LoginRetries:    max(1, cfg.Browser.LoginRetries),
	}
}

// Session is one logged-in browser tab. It is not safe for concurrent
// navigation; callers serialize access through the portal service.
type Session struct {
	opts        Options
	clock       clock.Clock
	log         zerolog.Logger
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc

	mu         sync.Mutex
	captureDir string
}

// Open starts Chrome and logs into the portal.
func Open(ctx context.Context, opts Options, username, password string, clk clock.Clock, log zerolog.Logger) (*Session, error) {
	s, err := start(ctx, opts, clk, log.With().Str("component", "browser").Logger())
	if err != nil {
		return nil, err
	}
	if err := s.Login(ctx, username, password); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.ChromeBin != "" {
		out = append(out, chromedp.ExecPath(opts.ChromeBin))
	}
	return out
}

func start(ctx context.Context, opts Options, clk clock.Clock, log zerolog.Logger) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= max(1, opts.InitRetries); attempt++ {
		// The browser outlives the request that opened it.
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
		tab, tabCancel := chromedp.NewContext(allocCtx,
			chromedp.WithLogf(func(format string, args ...any) { log.Debug().Msgf(format, args...) }),
			chromedp.WithErrorf(func(format string, args ...any) { log.Warn().Msgf(format, args...) }),
		)
		err := chromedp.Run(tab)
		if err == nil {
			log.Info().Int("attempt", attempt).Bool("headless", opts.Headless).Msg("Browser started")
			return &Session{opts: opts, clock: clk, log: log, allocCancel: allocCancel, tab: tab, tabCancel: tabCancel}, nil
		}
		lastErr = err
		tabCancel()
		allocCancel()
		log.Warn().Err(err).Int("attempt", attempt).Msg("Browser failed to start")
		if attempt < opts.InitRetries {
			if err := clk.Sleep(ctx, initPause); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("failed to initialize browser: %w", lastErr)
}

// Login submits the CAS form and polls until the portal accepts or rejects
// the credentials.
func (s *Session) Login(ctx context.Context, username, password string) error {
	for attempt := 1; attempt <= s.opts.LoginRetries; attempt++ {
		state, err := s.tryLogin(ctx, username, password)
		switch {
		case state == loginOK:
			s.log.Info().Str("username", username).Msg("Logged into portal")
			return nil
		case state == loginRejected:
			return ErrLoginRejected
		case ctx.Err() != nil:
			return ctx.Err()
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Portal login incomplete, retrying")
		if attempt < s.opts.LoginRetries {
			if err := s.clock.Sleep(ctx, retryPause); err != nil {
				return err
			}
		}
	}
	return ErrLoginFailed
}

const submitLoginJS = `(() => {
  const sel = ["[name=submit]", "button[type=submit]", "input[type=submit]"];
  for (const q of sel) {
    const el = document.querySelector(q);
    if (el && el.offsetParent !== null) { el.click(); return true; }
  }
  return false;
})()`

const loginFieldsJS = `document.getElementById("username") !== null || document.getElementById("password") !== null`

func (s *Session) tryLogin(ctx context.Context, username, password string) (loginState, error) {
	if err := s.navigate(ctx, s.opts.BaseURL); err != nil {
		return loginPending, err
	}
	var clicked bool
	err := s.run(ctx,
		chromedp.WaitVisible("#username", chromedp.ByQuery),
		chromedp.SetValue("#username", "", chromedp.ByQuery),
		chromedp.SendKeys("#username", username, chromedp.ByQuery),
		chromedp.SetValue("#password", "", chromedp.ByQuery),
		chromedp.SendKeys("#password", password, chromedp.ByQuery),
		chromedp.Evaluate(submitLoginJS, &clicked),
	)
	if err != nil {
		return loginPending, fmt.Errorf("fill login form: %w", err)
	}
	if !clicked {
		if err := s.run(ctx, chromedp.SendKeys("#password", kb.Enter, chromedp.ByQuery)); err != nil {
			return loginPending, fmt.Errorf("submit login form: %w", err)
		}
	}

	for range loginPolls {
		if err := s.clock.Sleep(ctx, loginPollEvery); err != nil {
			return loginPending, err
		}
		var page loginPage
		err := s.run(ctx,
			chromedp.Location(&page.URL),
			chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
			chromedp.Evaluate(loginFieldsJS, &page.LoginFields),
		)
		if err != nil {
			continue
		}
		if state := classifyLogin(page); state != loginPending {
			return state, nil
		}
	}
	return loginPending, errors.New("no login outcome within poll window")
}

// SetCaptureDir points page snapshots at dir. Empty disables capture.
func (s *Session) SetCaptureDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureDir = dir
}

// Close shuts the tab and the browser.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
	s.log.Info().Msg("Browser closed")
}

// run executes actions on the tab, bounded by the browser timeout and by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	return s.runFor(ctx, s.opts.Timeout, actions...)
}

func (s *Session) runFor(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) navigate(ctx context.Context, url string) error {
	err := s.runFor(ctx, s.opts.PageLoadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// snapshot saves the current page under the capture directory. Failures
// only cost the snapshot.
func (s *Session) snapshot(ctx context.Context, label string) {
	s.mu.Lock()
	dir := s.captureDir
	s.mu.Unlock()
	if dir == "" {
		return
	}

	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		s.log.Debug().Err(err).Str("label", label).Msg("Snapshot skipped")
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Debug().Err(err).Str("dir", dir).Msg("Snapshot skipped")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, label+".html"), []byte(html), 0o644); err != nil {
		s.log.Debug().Err(err).Str("label", label).Msg("Snapshot skipped")
	}
}
