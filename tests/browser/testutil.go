// Package browser runs the to-do suite against ToDoList.html in a real browser.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t).
//
// BROWSER_DRIVER selects playwright (default) or rod. Tests skip when the
// browser cannot be started; run `todo-e2e install` first.
package browser

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/todolist-e2e/internal/config"
	"github.com/kuitang/todolist-e2e/internal/harness"
	"github.com/kuitang/todolist-e2e/internal/scenario"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second
	browserPoll       = 50 * time.Millisecond
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv
var browserFixtureErr error

// BrowserTestEnv is the shared launcher every browser test opens sessions from.
type BrowserTestEnv struct {
	Config   config.Config
	Launcher *harness.Launcher
}

// SetupBrowserTestEnv returns the shared environment, skipping the test when
// no browser is available.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserFixtureErr != nil {
		t.Skip("browser not available:", browserFixtureErr)
	}
	if browserSharedFixture != nil {
		return browserSharedFixture
	}

	env, err := createBrowserTestEnv()
	if err != nil {
		browserFixtureErr = err
		t.Skip("browser not available:", err)
	}
	browserSharedFixture = env
	return env
}

func createBrowserTestEnv() (*BrowserTestEnv, error) {
	cfg := testConfig()
	launcher, err := harness.NewLauncher(cfg)
	if err != nil {
		return nil, err
	}

	// One throwaway session proves the browser binary is installed.
	ctx, cancel := context.WithTimeout(context.Background(), 3*browserMaxTimeout)
	defer cancel()
	check, err := launcher.Launch(ctx)
	if err != nil {
		_ = launcher.Close()
		return nil, err
	}
	if err := check.Close(); err != nil {
		_ = launcher.Close()
		return nil, err
	}
	return &BrowserTestEnv{Config: cfg, Launcher: launcher}, nil
}

func testConfig() config.Config {
	driver := os.Getenv("BROWSER_DRIVER")
	if driver == "" {
		driver = config.DriverPlaywright
	}
	return config.Config{
		PagePath:       filepath.Join(repositoryRoot(), "web", "ToDoList.html"),
		Driver:         driver,
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		BrowserArgs:    config.DefaultBrowserArgs,
		DefaultTimeout: browserMaxTimeout,
		AlertTimeout:   3 * time.Second,
		SubmitSpacing:  500 * time.Millisecond,
		PollInterval:   browserPoll,
	}
}

// Options returns the case options matching the environment's config.
func (env *BrowserTestEnv) Options() scenario.Options {
	return scenario.Options{AlertTimeout: env.Config.AlertTimeout, SubmitSpacing: env.Config.SubmitSpacing}
}

// NewSession launches a fresh browser session that is closed when t ends.
func (env *BrowserTestEnv) NewSession(t *testing.T) *harness.Session {
	t.Helper()

	s, err := env.Launcher.Launch(testContext(t))
	if err != nil {
		t.Fatalf("launch session: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close session: %v", err)
		}
	})
	return s
}

// testContext is cancelled when t ends.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Failed to resolve repository root for test utilities")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()
	if browserSharedFixture == nil {
		return
	}
	_ = browserSharedFixture.Launcher.Close()
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}
