// Package todopage is the page object for the to-do list page under test.
//
// The page is an external collaborator reached only through its public surface:
// one text input, one submit button, and one task-marker element per task with
// task-content, edit-control and delete-control markers inside it. Everything
// here is phrased against the Driver interface so the same interactions run on
// any browser backend.
package todopage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/wait"
)

// Selectors locate the page's controls structurally.
type Selectors struct {
	Input  string // the single text input
	Submit string // the single submit button
	Task   string // task text content
	Todo   string // task-marker element, one per task
	Edit   string // edit/save toggle inside a task
	Delete string // delete control inside a task
}

// DefaultSelectors matches ToDoList.html.
func DefaultSelectors() Selectors {
	return Selectors{
		Input:  "input",
		Submit: "button",
		Task:   ".task",
		Todo:   ".todo",
		Edit:   ".edit",
		Delete: ".delete",
	}
}

// Alert is a native dialog the page raised.
type Alert struct {
	Type     string // "alert", "confirm", "prompt" or "beforeunload"
	Message  string
	Accepted bool
}

// Driver is the browser surface the page object needs.
//
// Single-element operations act on the first match of selector and return an
// errs.Lookup error when nothing matches. Count and Texts never wait.
type Driver interface {
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	Visible(ctx context.Context, selector string) (bool, error)
	Enabled(ctx context.Context, selector string) (bool, error)
	Reload(ctx context.Context) error
	// NextAlert returns the next dialog raised since the session started,
	// waiting at most timeout. Dialogs are accepted as they open.
	NextAlert(ctx context.Context, timeout time.Duration) (Alert, bool)
}

// Page drives the to-do page through a Driver.
type Page struct {
	driver Driver
	sel    Selectors
	wait   *wait.Waiter
}

// New returns a page object. A nil waiter uses wait.DefaultTimeout.
func New(driver Driver, sel Selectors, w *wait.Waiter) *Page {
	if w == nil {
		w = wait.New(wait.DefaultTimeout)
	}
	return &Page{driver: driver, sel: sel, wait: w}
}

// Selectors returns the selectors in use.
func (p *Page) Selectors() Selectors { return p.sel }

// Waiter returns the page's default bounded-wait helper.
func (p *Page) Waiter() *wait.Waiter { return p.wait }

// Submit types text into the input and activates the submit button.
func (p *Page) Submit(ctx context.Context, text string) error {
	if err := p.requirePresent(ctx, p.sel.Input, "text input"); err != nil {
		return err
	}
	if err := p.driver.Fill(ctx, p.sel.Input, text); err != nil {
		return fmt.Errorf("fill %s: %w", p.sel.Input, err)
	}
	if err := p.requirePresent(ctx, p.sel.Submit, "submit button"); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, p.sel.Submit); err != nil {
		return fmt.Errorf("click %s: %w", p.sel.Submit, err)
	}
	return nil
}

func (p *Page) requirePresent(ctx context.Context, selector, what string) error {
	n, err := p.driver.Count(ctx, selector)
	if err != nil {
		return fmt.Errorf("count %s: %w", selector, err)
	}
	if n == 0 {
		return errs.New(errs.Lookup, fmt.Sprintf("%s %q not found", what, selector))
	}
	return nil
}

// AwaitCondition blocks until cond holds or timeout elapses.
// A zero timeout uses the page's default.
func (p *Page) AwaitCondition(ctx context.Context, what string, timeout time.Duration, cond wait.Condition) error {
	w := p.wait
	if timeout > 0 {
		w = w.Within(timeout)
	}
	return w.Until(ctx, what, cond)
}

// AwaitPresent waits until at least one element matches selector.
func (p *Page) AwaitPresent(ctx context.Context, selector string) error {
	return p.AwaitCondition(ctx, "presence of "+selector, 0, func(ctx context.Context) (bool, error) {
		n, err := p.driver.Count(ctx, selector)
		return n > 0, err
	})
}

// AwaitCount waits until exactly n elements match selector.
func (p *Page) AwaitCount(ctx context.Context, selector string, n int) error {
	return p.AwaitCondition(ctx, fmt.Sprintf("%d of %s", n, selector), 0, func(ctx context.Context) (bool, error) {
		got, err := p.driver.Count(ctx, selector)
		return got == n, err
	})
}

// AwaitInvisible waits until the first match of selector is hidden or gone.
func (p *Page) AwaitInvisible(ctx context.Context, selector string) error {
	return p.AwaitCondition(ctx, "invisibility of "+selector, 0, func(ctx context.Context) (bool, error) {
		visible, err := p.driver.Visible(ctx, selector)
		if errs.Is(err, errs.Lookup) {
			return true, nil
		}
		return !visible, err
	})
}

// AwaitClickable waits until the first match of selector is visible and enabled.
func (p *Page) AwaitClickable(ctx context.Context, selector string) error {
	return p.AwaitCondition(ctx, selector+" to be clickable", 0, func(ctx context.Context) (bool, error) {
		visible, err := p.driver.Visible(ctx, selector)
		if err != nil || !visible {
			return false, err
		}
		return p.driver.Enabled(ctx, selector)
	})
}

// TaskTexts returns the trimmed text of every task-content element.
func (p *Page) TaskTexts(ctx context.Context) ([]string, error) {
	texts, err := p.driver.Texts(ctx, p.sel.Task)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.sel.Task, err)
	}
	for i, text := range texts {
		texts[i] = strings.TrimSpace(text)
	}
	return texts, nil
}

// FirstTaskText returns the text of the first task, or a lookup error.
func (p *Page) FirstTaskText(ctx context.Context) (string, error) {
	texts, err := p.TaskTexts(ctx)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", errs.New(errs.Lookup, fmt.Sprintf("no task %q rendered", p.sel.Task))
	}
	return texts[0], nil
}

// TaskCount returns the number of task-content elements.
func (p *Page) TaskCount(ctx context.Context) (int, error) {
	return p.driver.Count(ctx, p.sel.Task)
}

// TodoCount returns the number of task-marker elements.
func (p *Page) TodoCount(ctx context.Context) (int, error) {
	return p.driver.Count(ctx, p.sel.Todo)
}

// DeleteFirst activates the first task's delete control and waits for the
// task-marker to become invisible.
func (p *Page) DeleteFirst(ctx context.Context) error {
	if err := p.requirePresent(ctx, p.sel.Delete, "delete control"); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, p.sel.Delete); err != nil {
		return fmt.Errorf("click %s: %w", p.sel.Delete, err)
	}
	return p.AwaitInvisible(ctx, p.sel.Todo)
}

// EditFirst toggles the first task into edit mode, replaces its text, and
// activates the same control again to save.
func (p *Page) EditFirst(ctx context.Context, replacement string) error {
	if err := p.AwaitClickable(ctx, p.sel.Edit); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, p.sel.Edit); err != nil {
		return fmt.Errorf("click %s: %w", p.sel.Edit, err)
	}
	if err := p.driver.Fill(ctx, p.sel.Task, replacement); err != nil {
		if ctx.Err() != nil || errs.Is(err, errs.Lookup) {
			return fmt.Errorf("fill %s: %w", p.sel.Task, err)
		}
		// The page rejected typing: the edit control did not make the task editable.
		return errs.Wrap(errs.Assertion, "task is not editable after activating "+p.sel.Edit, err)
	}
	if err := p.requirePresent(ctx, p.sel.Edit, "save control"); err != nil {
		return err
	}
	if err := p.driver.Click(ctx, p.sel.Edit); err != nil {
		return fmt.Errorf("click %s to save: %w", p.sel.Edit, err)
	}
	return nil
}

// Reload forces a full page reload.
func (p *Page) Reload(ctx context.Context) error {
	if err := p.driver.Reload(ctx); err != nil {
		return errs.Wrap(errs.Session, "reload page", err)
	}
	return nil
}

// ExpectAlert reports whether the page raised a dialog within timeout.
// A missing dialog is a normal false result, not an error.
func (p *Page) ExpectAlert(ctx context.Context, timeout time.Duration) (Alert, bool) {
	return p.driver.NextAlert(ctx, timeout)
}
