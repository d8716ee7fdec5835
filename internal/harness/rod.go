package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kuitang/todolist-e2e/internal/config"
	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
)

// rodBackend drives Chrome over the DevTools protocol. It has no long-lived
// process of its own; each session launches and kills its own Chrome.
type rodBackend struct {
	cfg config.Config
}

func newRodBackend(cfg config.Config) *rodBackend {
	return &rodBackend{cfg: cfg}
}

func (b *rodBackend) Name() string { return config.DriverRod }

func (b *rodBackend) Close() error { return nil }

func (b *rodBackend) Open(ctx context.Context, s *Session, pageURL string) (todopage.Driver, error) {
	l := launcher.New().Context(ctx).Headless(b.cfg.Headless)
	for _, arg := range b.cfg.BrowserArgs {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	s.onClose("chrome process", func() error {
		l.Kill()
		l.Cleanup()
		return nil
	})

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.onClose("browser", browser.Close)

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	d := &rodDriver{page: page, timeout: b.cfg.DefaultTimeout, alerts: make(chan todopage.Alert, 16)}
	stop := d.watchDialogs()
	s.onClose("dialog watcher", func() error { stop(); return nil })

	bounded := page.Context(ctx).Timeout(b.cfg.DefaultTimeout)
	defer bounded.CancelTimeout()
	if err := bounded.Navigate(pageURL); err != nil {
		return nil, rodError("navigate to", pageURL, err)
	}
	if err := bounded.WaitLoad(); err != nil {
		return nil, rodError("wait for load of", pageURL, err)
	}
	obs.From(ctx).Debug("rod page opened", "url", pageURL)
	return d, nil
}

type rodDriver struct {
	page    *rod.Page
	timeout time.Duration
	alerts  chan todopage.Alert
}

// watchDialogs accepts every native dialog as it opens and records it.
func (d *rodDriver) watchDialogs() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	page := d.page.Context(ctx)
	done := make(chan struct{})
	wait := page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		err := proto.PageHandleJavaScriptDialog{Accept: true}.Call(page)
		a := todopage.Alert{Type: string(e.Type), Message: e.Message, Accepted: err == nil}
		select {
		case d.alerts <- a:
		default:
		}
	})
	go func() {
		defer close(done)
		wait()
	}()
	return func() {
		cancel()
		<-done
	}
}

func (d *rodDriver) elements(ctx context.Context, selector string) (rod.Elements, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, rodError("query", selector, err)
	}
	return els, nil
}

// withFirst runs fn on the first match of selector under the driver timeout.
func (d *rodDriver) withFirst(ctx context.Context, selector string, fn func(el *rod.Element) error) error {
	els, err := d.elements(ctx, selector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return errs.New(errs.Lookup, fmt.Sprintf("no element matches %q", selector))
	}
	return runBounded(els.First(), d.timeout, fn)
}

// runBounded gives el a timeout for fn and releases it when fn returns.
func runBounded(el *rod.Element, timeout time.Duration, fn func(el *rod.Element) error) error {
	el = el.Timeout(timeout)
	defer el.CancelTimeout()
	return fn(el)
}

func (d *rodDriver) Fill(ctx context.Context, selector, value string) error {
	return d.withFirst(ctx, selector, func(el *rod.Element) error {
		// Works for form fields and contenteditable task text alike.
		if _, err := el.Eval(`() => { if ('value' in this) { this.value = '' } else { this.textContent = '' } }`); err != nil {
			return rodError("clear", selector, err)
		}
		if value == "" {
			return nil
		}
		return rodError("fill", selector, el.Input(value))
	})
}

func (d *rodDriver) Click(ctx context.Context, selector string) error {
	return d.withFirst(ctx, selector, func(el *rod.Element) error {
		return rodError("click", selector, el.Click(proto.InputMouseButtonLeft, 1))
	})
}

func (d *rodDriver) Count(ctx context.Context, selector string) (int, error) {
	els, err := d.elements(ctx, selector)
	return len(els), err
}

func (d *rodDriver) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := d.elements(ctx, selector)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, rodError("read", selector, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (d *rodDriver) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	err := d.withFirst(ctx, selector, func(el *rod.Element) error {
		ok, err := el.Visible()
		visible = ok
		return rodError("check visibility of", selector, err)
	})
	return visible, err
}

func (d *rodDriver) Enabled(ctx context.Context, selector string) (bool, error) {
	var enabled bool
	err := d.withFirst(ctx, selector, func(el *rod.Element) error {
		disabled, err := el.Property("disabled")
		if err != nil {
			return rodError("check enabled state of", selector, err)
		}
		enabled = !disabled.Bool()
		return nil
	})
	return enabled, err
}

func (d *rodDriver) Reload(ctx context.Context) error {
	page := d.page.Context(ctx).Timeout(d.timeout)
	defer page.CancelTimeout()
	if err := page.Reload(); err != nil {
		return rodError("reload", "page", err)
	}
	return rodError("wait for load of", "page", page.WaitLoad())
}

func (d *rodDriver) NextAlert(ctx context.Context, timeout time.Duration) (todopage.Alert, bool) {
	return nextAlert(ctx, d.alerts, timeout)
}

func rodError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.Timeout, op+" "+target, err)
	}
	return fmt.Errorf("%s %s: %w", op, target, err)
}
