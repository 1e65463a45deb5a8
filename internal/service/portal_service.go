package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/worker"
)

var (
	ErrPortalNotReady = errors.New("portal session is not logged in")
	ErrPortalBusy     = errors.New("portal session is in use by a run")
)

// PortalSession is a logged-in portal browser session.
type PortalSession interface {
	worker.Portal
	worker.PageOracle
	worker.Attempter
	// SetCaptureDir points page snapshots at dir. Empty disables capture.
	SetCaptureDir(dir string)
	Close()
}

// SessionOpener starts a browser and logs into the portal.
type SessionOpener func(ctx context.Context, username, password string) (PortalSession, error)

// PortalStatus is the externally visible session state.
type PortalStatus struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
	InUse    bool   `json:"in_use"`
}

// PortalService holds the single portal session shared by runs.
type PortalService struct {
	open SessionOpener
	log  zerolog.Logger

	mu       sync.Mutex
	session  PortalSession
	username string
	inUse    bool
	released chan struct{}
}

// NewPortalService creates a new PortalService.
func NewPortalService(open SessionOpener, log zerolog.Logger) *PortalService {
	return &PortalService{
		open: open,
		log:  log.With().Str("component", "portal_service").Logger(),
	}
}

// Login replaces the current session with a fresh one for username.
func (s *PortalService) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse {
		return ErrPortalBusy
	}
	if s.session != nil {
		s.session.Close()
		s.session = nil
		s.username = ""
	}

	session, err := s.open(ctx, username, password)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("Portal login failed")
		return err
	}
	s.session = session
	s.username = username
	s.log.Info().Str("username", username).Msg("Portal session ready")
	return nil
}

// Acquire hands the session to one run. The returned func releases it.
func (s *PortalService) Acquire() (PortalSession, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.session == nil:
		return nil, nil, ErrPortalNotReady
	case s.inUse:
		return nil, nil, ErrPortalBusy
	}
	s.inUse = true
	released := make(chan struct{})
	s.released = released
	var once sync.Once
	return s.session, func() {
		once.Do(func() {
			s.mu.Lock()
			s.inUse = false
			s.released = nil
			s.mu.Unlock()
			close(released)
		})
	}, nil
}

// Status reports whether a session is available.
func (s *PortalService) Status() PortalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PortalStatus{LoggedIn: s.session != nil, Username: s.username, InUse: s.inUse}
}

// Close ends the session, if any. While a run holds the session Close waits
// for it to be released, or for ctx to end.
func (s *PortalService) Close(ctx context.Context) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released != nil {
		select {
		case <-released:
		case <-ctx.Done():
			s.log.Warn().Msg("Closing portal session while a run still holds it")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
		s.username = ""
	}
}
