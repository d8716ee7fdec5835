// Package todopagetest provides an in-memory model of the to-do page for tests
// that should not need a browser.
package todopagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
)

// EmptyTaskMessage is the alert text the real page shows on empty submission.
const EmptyTaskMessage = "Пожалуйста, введите задачу!"

// ErrNotEditable mirrors a browser refusing to type into a read-only element.
var ErrNotEditable = errors.New("todopagetest: element is not editable")

// Faults make the fake misbehave the way a broken page would.
type Faults struct {
	NoAlertOnEmpty bool // empty submission is silently ignored
	AddEmptyTask   bool // empty submission renders an empty task
	ForgetOnReload bool // storage is not written
	DeleteIgnored  bool // delete control does nothing
	EditIgnored    bool // save keeps the original text
	EditNotEnabled bool // the edit control never makes the task editable
	NoInput        bool // the page has no text input
	RenderLag      int  // reads that miss a freshly added task
}

type item struct {
	text     string
	original string // text when edit mode was entered
	editing  bool
	hidden   bool
}

// FakeDriver implements todopage.Driver against an in-memory page.
type FakeDriver struct {
	mu      sync.Mutex
	sel     todopage.Selectors
	faults  Faults
	input   string
	items   []item
	storage []string
	lag     int
	reloads int
	alerts  chan todopage.Alert
	calls   []string
}

// NewFakeDriver returns an empty page using the default selectors.
func NewFakeDriver(faults Faults) *FakeDriver {
	return &FakeDriver{
		sel:    todopage.DefaultSelectors(),
		faults: faults,
		alerts: make(chan todopage.Alert, 16),
	}
}

var _ todopage.Driver = (*FakeDriver)(nil)

// Reloads returns how many times the page was reloaded.
func (f *FakeDriver) Reloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

// Stored returns the persisted task texts.
func (f *FakeDriver) Stored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.storage...)
}

// Calls returns the driver operations performed so far, e.g. "click .edit".
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeDriver) record(op, selector string) {
	f.calls = append(f.calls, op+" "+selector)
}

func (f *FakeDriver) lookup(selector string) error {
	return errs.New(errs.Lookup, fmt.Sprintf("no element matches %q", selector))
}

func (f *FakeDriver) visibleItems() []item {
	out := make([]item, 0, len(f.items))
	for _, it := range f.items {
		if !it.hidden {
			out = append(out, it)
		}
	}
	return out
}

// settle counts one read against the render lag.
func (f *FakeDriver) settle() {
	if f.lag == 0 {
		return
	}
	f.lag--
	if f.lag == 0 {
		for i := range f.items {
			f.items[i].hidden = false
		}
	}
}

func (f *FakeDriver) count(selector string) int {
	switch selector {
	case f.sel.Input:
		if f.faults.NoInput {
			return 0
		}
		return 1
	case f.sel.Submit:
		return 1 + 2*len(f.visibleItems())
	case f.sel.Task, f.sel.Todo, f.sel.Edit, f.sel.Delete:
		return len(f.visibleItems())
	default:
		return 0
	}
}

func (f *FakeDriver) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("fill", selector)

	switch selector {
	case f.sel.Input:
		if f.faults.NoInput {
			return f.lookup(selector)
		}
		f.input = value
		return nil
	case f.sel.Task:
		visible := f.visibleItems()
		if len(visible) == 0 {
			return f.lookup(selector)
		}
		idx := f.firstVisible()
		if !f.items[idx].editing {
			return ErrNotEditable
		}
		f.items[idx].text = value
		return nil
	default:
		return f.lookup(selector)
	}
}

func (f *FakeDriver) firstVisible() int {
	for i, it := range f.items {
		if !it.hidden {
			return i
		}
	}
	return -1
}

func (f *FakeDriver) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click", selector)

	if f.count(selector) == 0 {
		return f.lookup(selector)
	}
	switch selector {
	case f.sel.Submit:
		f.add()
	case f.sel.Edit:
		idx := f.firstVisible()
		it := &f.items[idx]
		if f.faults.EditNotEnabled {
			return nil
		}
		if !it.editing {
			it.editing = true
			it.text = strings.TrimSpace(it.text)
			it.original = it.text
			return nil
		}
		it.editing = false
		if f.faults.EditIgnored {
			it.text = it.original
		}
		f.persist()
	case f.sel.Delete:
		if f.faults.DeleteIgnored {
			return nil
		}
		idx := f.firstVisible()
		f.items = append(f.items[:idx], f.items[idx+1:]...)
		f.persist()
	}
	return nil
}

func (f *FakeDriver) add() {
	text := strings.TrimSpace(f.input)
	if text == "" && !f.faults.AddEmptyTask {
		if !f.faults.NoAlertOnEmpty {
			select {
			case f.alerts <- todopage.Alert{Type: "alert", Message: EmptyTaskMessage, Accepted: true}:
			default:
			}
		}
		return
	}
	f.items = append(f.items, item{text: text, hidden: f.faults.RenderLag > 0})
	f.lag = f.faults.RenderLag
	f.input = ""
	f.persist()
}

func (f *FakeDriver) persist() {
	if f.faults.ForgetOnReload {
		return
	}
	f.storage = f.storage[:0]
	for _, it := range f.items {
		f.storage = append(f.storage, it.text)
	}
}

func (f *FakeDriver) Count(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settle()
	return f.count(selector), nil
}

func (f *FakeDriver) Texts(ctx context.Context, selector string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settle()

	switch selector {
	case f.sel.Task, f.sel.Todo:
		visible := f.visibleItems()
		texts := make([]string, 0, len(visible))
		for _, it := range visible {
			texts = append(texts, it.text)
		}
		return texts, nil
	case f.sel.Edit:
		texts := make([]string, 0, len(f.items))
		for _, it := range f.visibleItems() {
			if it.editing {
				texts = append(texts, "Сохранить")
			} else {
				texts = append(texts, "Редактировать")
			}
		}
		return texts, nil
	default:
		return []string{}, nil
	}
}

func (f *FakeDriver) Visible(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count(selector) == 0 {
		return false, f.lookup(selector)
	}
	return true, nil
}

func (f *FakeDriver) Enabled(ctx context.Context, selector string) (bool, error) {
	return f.Visible(ctx, selector)
}

func (f *FakeDriver) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reload", "")

	f.reloads++
	f.input = ""
	f.lag = 0
	f.items = f.items[:0]
	for _, text := range f.storage {
		f.items = append(f.items, item{text: text})
	}
	return nil
}

func (f *FakeDriver) NextAlert(ctx context.Context, timeout time.Duration) (todopage.Alert, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case a := <-f.alerts:
		return a, true
	case <-timer.C:
		return todopage.Alert{}, false
	case <-ctx.Done():
		return todopage.Alert{}, false
	}
}
