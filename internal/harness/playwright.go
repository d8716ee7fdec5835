package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todolist-e2e/internal/config"
	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
)

// Install downloads the Playwright driver and Chromium.
func Install() error {
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return errs.Wrap(errs.Unavailable, "install playwright", err)
	}
	return nil
}

type playwrightBackend struct {
	cfg config.Config
	pw  *playwright.Playwright
}

func startPlaywright(cfg config.Config) (*playwrightBackend, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright (try `todo-e2e install`)", err)
	}
	return &playwrightBackend{cfg: cfg, pw: pw}, nil
}

func (b *playwrightBackend) Name() string { return config.DriverPlaywright }

func (b *playwrightBackend) Open(ctx context.Context, s *Session, pageURL string) (todopage.Driver, error) {
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.cfg.Headless),
		Args:     b.cfg.BrowserArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	s.onClose("browser", func() error { return browser.Close() })

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: b.cfg.ViewportWidth, Height: b.cfg.ViewportHeight},
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	s.onClose("context", func() error { return bctx.Close() })

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.cfg.DefaultTimeout.Milliseconds()))

	d := &playwrightDriver{page: page, alerts: make(chan todopage.Alert, 16)}
	page.OnDialog(d.onDialog)

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	obs.From(ctx).Debug("playwright page opened", "url", pageURL)
	return d, nil
}

func (b *playwrightBackend) Close() error {
	return b.pw.Stop()
}

type playwrightDriver struct {
	page   playwright.Page
	alerts chan todopage.Alert
}

func (d *playwrightDriver) onDialog(dialog playwright.Dialog) {
	a := todopage.Alert{Type: dialog.Type(), Message: dialog.Message()}
	a.Accepted = dialog.Accept() == nil
	select {
	case d.alerts <- a:
	default:
	}
}

// Playwright calls take no context; each one is bounded by the page default
// timeout, so cancellation is checked before every call instead.
func live(ctx context.Context, op, target string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, target, err)
	}
	return nil
}

// first returns the first match of selector, or a lookup error when none exists.
func (d *playwrightDriver) first(ctx context.Context, op, selector string) (playwright.Locator, error) {
	if err := live(ctx, op, selector); err != nil {
		return nil, err
	}
	loc := d.page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil, pwError("count", selector, err)
	}
	if n == 0 {
		return nil, errs.New(errs.Lookup, fmt.Sprintf("no element matches %q", selector))
	}
	return loc.First(), nil
}

func (d *playwrightDriver) Fill(ctx context.Context, selector, value string) error {
	loc, err := d.first(ctx, "fill", selector)
	if err != nil {
		return err
	}
	return pwError("fill", selector, loc.Fill(value))
}

func (d *playwrightDriver) Click(ctx context.Context, selector string) error {
	loc, err := d.first(ctx, "click", selector)
	if err != nil {
		return err
	}
	return pwError("click", selector, loc.Click())
}

func (d *playwrightDriver) Count(ctx context.Context, selector string) (int, error) {
	if err := live(ctx, "count", selector); err != nil {
		return 0, err
	}
	n, err := d.page.Locator(selector).Count()
	return n, pwError("count", selector, err)
}

func (d *playwrightDriver) Texts(ctx context.Context, selector string) ([]string, error) {
	if err := live(ctx, "read", selector); err != nil {
		return nil, err
	}
	texts, err := d.page.Locator(selector).AllInnerTexts()
	return texts, pwError("read", selector, err)
}

func (d *playwrightDriver) Visible(ctx context.Context, selector string) (bool, error) {
	loc, err := d.first(ctx, "check visibility of", selector)
	if err != nil {
		return false, err
	}
	ok, err := loc.IsVisible()
	return ok, pwError("check visibility of", selector, err)
}

func (d *playwrightDriver) Enabled(ctx context.Context, selector string) (bool, error) {
	loc, err := d.first(ctx, "check enabled state of", selector)
	if err != nil {
		return false, err
	}
	ok, err := loc.IsEnabled()
	return ok, pwError("check enabled state of", selector, err)
}

func (d *playwrightDriver) Reload(ctx context.Context) error {
	if err := live(ctx, "reload", "page"); err != nil {
		return err
	}
	_, err := d.page.Reload(playwright.PageReloadOptions{WaitUntil: playwright.WaitUntilStateLoad})
	return pwError("reload", d.page.URL(), err)
}

func (d *playwrightDriver) NextAlert(ctx context.Context, timeout time.Duration) (todopage.Alert, bool) {
	return nextAlert(ctx, d.alerts, timeout)
}

func pwError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.Timeout, op+" "+target, err)
	}
	return fmt.Errorf("%s %s: %w", op, target, err)
}

func nextAlert(ctx context.Context, alerts <-chan todopage.Alert, timeout time.Duration) (todopage.Alert, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case a := <-alerts:
		return a, true
	case <-timer.C:
		return todopage.Alert{}, false
	case <-ctx.Done():
		return todopage.Alert{}, false
	}
}
