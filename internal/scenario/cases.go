// Package scenario holds the to-do page cases and the runner that executes
// each one in its own browser session.
//
// Cases are plain data so the CLI and the go test suite run the same bodies.
package scenario

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
)

// Texts typed by the cases.
const (
	AddTaskText      = "Тестовая задача 1"
	DeleteTaskText   = "Задача для удаления"
	EditOriginalText = "Исходная задача"
	EditReplaceText  = "Отредактированная задача"
	PersistTaskText  = "Задача для проверки persistence"
)

// MultipleTaskTexts are submitted in order by the MultipleTasks case.
var MultipleTaskTexts = []string{"Задача 1", "Задача 2", "Задача 3"}

// Case is one independent check against a freshly opened page.
type Case struct {
	Name    string
	Summary string
	Run     func(ctx context.Context, p *todopage.Page) error
}

// Options tune the timing-sensitive cases.
type Options struct {
	AlertTimeout  time.Duration // how long to wait for the empty-input alert
	SubmitSpacing time.Duration // pause between consecutive submissions
}

// DefaultOptions returns a 3s alert wait and 500ms submit spacing.
func DefaultOptions() Options {
	return Options{AlertTimeout: 3 * time.Second, SubmitSpacing: 500 * time.Millisecond}
}

// Default returns the six cases in their canonical order.
func Default(opts Options) []Case {
	return []Case{
		AddTask(),
		AddEmptyTask(opts.AlertTimeout),
		DeleteTask(),
		EditTask(),
		MultipleTasks(opts.SubmitSpacing),
		PersistAcrossReload(),
	}
}

// Filter keeps the cases whose name matches pattern. An empty pattern keeps all.
func Filter(cases []Case, pattern string) ([]Case, error) {
	if pattern == "" {
		return cases, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid case filter %q", pattern), err)
	}
	var out []Case
	for _, c := range cases {
		if re.MatchString(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func assertf(format string, args ...any) error {
	return errs.New(errs.Assertion, fmt.Sprintf(format, args...))
}

func expectTodoCount(ctx context.Context, p *todopage.Page, want int) error {
	got, err := p.TodoCount(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return assertf("expected %d %s element(s), found %d", want, p.Selectors().Todo, got)
	}
	return nil
}

func expectFirstTaskContains(ctx context.Context, p *todopage.Page, want string) error {
	got, err := p.FirstTaskText(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(got, want) {
		return assertf("task text %q does not contain %q", got, want)
	}
	return nil
}

// AddTask submits one task and expects exactly one rendered task containing it.
func AddTask() Case {
	return Case{
		Name:    "AddTask",
		Summary: "a submitted task is rendered",
		Run: func(ctx context.Context, p *todopage.Page) error {
			if err := p.Submit(ctx, AddTaskText); err != nil {
				return err
			}
			if err := p.AwaitPresent(ctx, p.Selectors().Task); err != nil {
				return err
			}
			if err := expectFirstTaskContains(ctx, p, AddTaskText); err != nil {
				return err
			}
			return expectTodoCount(ctx, p, 1)
		},
	}
}

// AddEmptyTask submits empty input and expects an alert and no task.
func AddEmptyTask(alertTimeout time.Duration) Case {
	return Case{
		Name:    "AddEmptyTask",
		Summary: "empty input raises an alert and adds nothing",
		Run: func(ctx context.Context, p *todopage.Page) error {
			if err := p.Submit(ctx, ""); err != nil {
				return err
			}
			if _, ok := p.ExpectAlert(ctx, alertTimeout); !ok {
				return assertf("expected an alert for empty task within %s, none appeared", alertTimeout)
			}
			return expectTodoCount(ctx, p, 0)
		},
	}
}

// DeleteTask adds a task, deletes it, and expects the list to be empty.
func DeleteTask() Case {
	return Case{
		Name:    "DeleteTask",
		Summary: "a deleted task disappears",
		Run: func(ctx context.Context, p *todopage.Page) error {
			if err := p.Submit(ctx, DeleteTaskText); err != nil {
				return err
			}
			if err := p.AwaitPresent(ctx, p.Selectors().Todo); err != nil {
				return err
			}
			if err := p.DeleteFirst(ctx); err != nil {
				return err
			}
			return expectTodoCount(ctx, p, 0)
		},
	}
}

// EditTask replaces a task's text through the edit control.
//
// Only the saved result is checked: the displayed text must equal the
// replacement exactly, so no part of the original text may remain.
func EditTask() Case {
	return Case{
		Name:    "EditTask",
		Summary: "an edited task shows only the new text",
		Run: func(ctx context.Context, p *todopage.Page) error {
			if err := p.Submit(ctx, EditOriginalText); err != nil {
				return err
			}
			if err := p.AwaitPresent(ctx, p.Selectors().Task); err != nil {
				return err
			}
			if err := p.EditFirst(ctx, EditReplaceText); err != nil {
				return err
			}
			got, err := p.FirstTaskText(ctx)
			if err != nil {
				return err
			}
			if got != EditReplaceText {
				return assertf("edited task shows %q, want %q", got, EditReplaceText)
			}
			return nil
		},
	}
}

// MultipleTasks submits several tasks and expects all of them.
func MultipleTasks(spacing time.Duration) Case {
	return Case{
		Name:    "MultipleTasks",
		Summary: "every submitted task is rendered",
		Run: func(ctx context.Context, p *todopage.Page) error {
			return SubmitAll(ctx, p, MultipleTaskTexts, spacing)
		},
	}
}

// SubmitAll submits texts with spacing between them, then expects exactly
// those texts to be rendered, in any order.
func SubmitAll(ctx context.Context, p *todopage.Page, texts []string, spacing time.Duration) error {
	for i, text := range texts {
		if i > 0 {
			if err := pause(ctx, spacing); err != nil {
				return err
			}
		}
		if err := p.Submit(ctx, text); err != nil {
			return err
		}
	}
	if err := p.AwaitCount(ctx, p.Selectors().Task, len(texts)); err != nil {
		return err
	}
	got, err := p.TaskTexts(ctx)
	if err != nil {
		return err
	}
	want := slices.Clone(texts)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		return assertf("rendered tasks %q, want %q", got, want)
	}
	return nil
}

// PersistAcrossReload expects a task to survive a full page reload.
func PersistAcrossReload() Case {
	return Case{
		Name:    "PersistAcrossReload",
		Summary: "tasks survive a page reload",
		Run: func(ctx context.Context, p *todopage.Page) error {
			if err := p.Submit(ctx, PersistTaskText); err != nil {
				return err
			}
			if err := p.AwaitPresent(ctx, p.Selectors().Task); err != nil {
				return err
			}
			if err := p.Reload(ctx); err != nil {
				return err
			}
			if err := p.AwaitPresent(ctx, p.Selectors().Task); err != nil {
				return err
			}
			return expectFirstTaskContains(ctx, p, PersistTaskText)
		},
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
