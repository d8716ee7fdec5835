// Package harness owns browser session lifecycle for the to-do page suite.
//
// A Launcher holds the process-wide automation backend. Every Launch starts a
// fresh browser process with a fresh profile, opens the page under test and
// returns a Session that exclusively owns those resources until Close.
package harness

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/todolist-e2e/internal/config"
	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
	"github.com/kuitang/todolist-e2e/internal/wait"
)

// backend opens browser sessions for one automation library.
type backend interface {
	Name() string
	// Open starts a browser, navigates to pageURL and registers every resource it
	// creates on s, so a failure part-way through can be unwound by s.Close.
	Open(ctx context.Context, s *Session, pageURL string) (todopage.Driver, error)
	Close() error
}

// Launcher creates sessions. It is safe for sequential use by one runner.
type Launcher struct {
	cfg     config.Config
	pageURL string
	backend backend
	sel     todopage.Selectors
}

// NewLauncher starts the backend named by cfg.Driver.
func NewLauncher(cfg config.Config) (*Launcher, error) {
	var (
		b   backend
		err error
	)
	switch cfg.Driver {
	case config.DriverPlaywright, "":
		b, err = startPlaywright(cfg)
	case config.DriverRod:
		b = newRodBackend(cfg)
	default:
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, err
	}
	l, err := newLauncher(cfg, b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return l, nil
}

func newLauncher(cfg config.Config, b backend) (*Launcher, error) {
	abs, err := cfg.PageAbsPath()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "resolve page path", err)
	}
	return &Launcher{
		cfg:     cfg,
		pageURL: FileURL(abs),
		backend: b,
		sel:     todopage.DefaultSelectors(),
	}, nil
}

// FileURL converts an absolute filesystem path to a file:// URL.
func FileURL(absPath string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}
	return u.String()
}

// PageURL returns the URL every session navigates to.
func (l *Launcher) PageURL() string { return l.pageURL }

// Driver returns the backend name.
func (l *Launcher) Driver() string { return l.backend.Name() }

// Launch creates a session pointed at the page under test.
//
// On failure every resource created so far is released in reverse order and
// the returned error has code errs.Session.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	s := &Session{ID: uuid.NewString(), URL: l.pageURL}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{SessionID: s.ID, Driver: l.backend.Name()})
	log := obs.From(ctx)
	start := time.Now()

	driver, err := l.backend.Open(ctx, s, l.pageURL)
	if err != nil {
		closeErr := s.Close()
		log.Warn("session launch failed", "error", err, "teardown_error", closeErr)
		return nil, errs.Wrap(errs.Session, "launch browser session", errors.Join(err, closeErr))
	}

	w := &wait.Waiter{Timeout: l.cfg.DefaultTimeout, Interval: l.cfg.PollInterval}
	s.page = todopage.New(driver, l.sel, w)
	log.Debug("session ready", "url", l.pageURL, "duration_ms", time.Since(start).Milliseconds())
	return s, nil
}

// Close stops the backend. Sessions must be closed first.
func (l *Launcher) Close() error {
	if err := l.backend.Close(); err != nil {
		return errs.Wrap(errs.Session, "stop "+l.backend.Name(), err)
	}
	return nil
}

type closer struct {
	name string
	fn   func() error
}

// Session is one browser process plus the page object driving it.
type Session struct {
	ID  string
	URL string

	page *todopage.Page

	mu      sync.Mutex
	closers []closer
	closed  bool
}

// Page returns the page object. It is nil only for a session that failed to launch.
func (s *Session) Page() *todopage.Page { return s.page }

// onClose registers fn to run at teardown. Closers run last-registered first.
func (s *Session) onClose(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// Close releases every resource the session owns, in reverse creation order.
// All closers run even when some fail. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var failures []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			failures = append(failures, fmt.Errorf("close %s: %w", closers[i].name, err))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errs.Wrap(errs.Session, "tear down session "+s.ID, errors.Join(failures...))
}
