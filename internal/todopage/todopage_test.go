package todopage_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/todopage"
	"github.com/kuitang/todolist-e2e/internal/todopage/todopagetest"
	"github.com/kuitang/todolist-e2e/internal/wait"
)

func newTestPage(faults todopagetest.Faults) (*todopage.Page, *todopagetest.FakeDriver) {
	driver := todopagetest.NewFakeDriver(faults)
	w := &wait.Waiter{Timeout: 200 * time.Millisecond, Interval: time.Millisecond}
	return todopage.New(driver, todopage.DefaultSelectors(), w), driver
}

func TestSubmit_AddsTask(t *testing.T) {
	ctx := context.Background()
	page, driver := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, "Тестовая задача 1"))
	require.NoError(t, page.AwaitPresent(ctx, ".task"))

	text, err := page.FirstTaskText(ctx)
	require.NoError(t, err)
	require.Equal(t, "Тестовая задача 1", text)

	n, err := page.TodoCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"fill input", "click button"}, driver.Calls())
}

func TestSubmit_MissingInputIsLookupError(t *testing.T) {
	page, driver := newTestPage(todopagetest.Faults{NoInput: true})

	err := page.Submit(context.Background(), "x")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Lookup), "got %v", err)
	require.Empty(t, driver.Calls(), "nothing should be typed when the input is absent")
}

func TestAwaitPresent_ToleratesRenderLag(t *testing.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{RenderLag: 5})

	require.NoError(t, page.Submit(ctx, "later"))
	n, err := page.TaskCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "task should not be rendered on the first read")

	require.NoError(t, page.AwaitPresent(ctx, ".task"))
}

func TestAwaitCount_TimesOut(t *testing.T) {
	page, _ := newTestPage(todopagetest.Faults{})

	err := page.AwaitCount(context.Background(), ".todo", 2)
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
	require.Contains(t, errs.MessageOf(err), "2 of .todo")
}

func TestExpectAlert_EmptySubmission(t *testing.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, ""))
	alert, ok := page.ExpectAlert(ctx, 100*time.Millisecond)
	require.True(t, ok)
	require.True(t, alert.Accepted)
	require.Equal(t, "alert", alert.Type)

	n, err := page.TodoCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExpectAlert_NoDialogIsFalseNotError(t *testing.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{NoAlertOnEmpty: true})

	require.NoError(t, page.Submit(ctx, ""))
	start := time.Now()
	_, ok := page.ExpectAlert(ctx, 30*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDeleteFirst_RemovesTask(t *testing.T) {
	ctx := context.Background()
	page, driver := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, "Задача для удаления"))
	require.NoError(t, page.AwaitPresent(ctx, ".todo"))
	require.NoError(t, page.DeleteFirst(ctx))

	n, err := page.TodoCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, driver.Stored())
}

func TestDeleteFirst_IgnoredDeleteTimesOut(t *testing.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{DeleteIgnored: true})

	require.NoError(t, page.Submit(ctx, "stuck"))
	err := page.DeleteFirst(ctx)
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
}

func TestEditFirst_ReplacesText(t *testing.T) {
	ctx := context.Background()
	page, driver := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, "Исходная задача"))
	require.NoError(t, page.EditFirst(ctx, "Отредактированная задача"))

	text, err := page.FirstTaskText(ctx)
	require.NoError(t, err)
	require.Equal(t, "Отредактированная задача", text)
	require.Equal(t, []string{"Отредактированная задача"}, driver.Stored())
}

func TestEditFirst_NotEditableIsAssertion(t *testing.T) {
	ctx := context.Background()
	page, driver := newTestPage(todopagetest.Faults{EditNotEnabled: true})

	require.NoError(t, page.Submit(ctx, "Исходная задача"))
	err := page.EditFirst(ctx, "Отредактированная задача")
	require.True(t, errs.Is(err, errs.Assertion), "got %v", err)
	require.True(t, errs.Failure(err))
	require.ErrorIs(t, err, todopagetest.ErrNotEditable)
	require.Contains(t, err.Error(), "task is not editable after activating .edit")
	require.Equal(t, []string{"Исходная задача"}, driver.Stored())
}

func TestSubmit_ManyEmptySubmissionsDoNotBlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	page, _ := newTestPage(todopagetest.Faults{})

	// Nobody drains the dialog queue here.
	for i := 0; i < 40; i++ {
		require.NoError(t, page.Submit(ctx, ""))
	}
	require.NoError(t, page.Submit(ctx, "после диалогов"))
	require.NoError(t, page.AwaitCount(ctx, ".todo", 1))
}

func TestReload_RestoresStoredTasks(t *testing.T) {
	ctx := context.Background()
	page, driver := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, "persist me"))
	require.NoError(t, page.Reload(ctx))
	require.Equal(t, 1, driver.Reloads())

	texts, err := page.TaskTexts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"persist me"}, texts)
}

func TestTaskTexts_TrimsWhitespace(t *testing.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{})

	require.NoError(t, page.Submit(ctx, "  padded  "))
	texts, err := page.TaskTexts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"padded"}, texts)
}

func TestFirstTaskText_EmptyPageIsLookupError(t *testing.T) {
	page, _ := newTestPage(todopagetest.Faults{})
	_, err := page.FirstTaskText(context.Background())
	require.True(t, errs.Is(err, errs.Lookup), "got %v", err)
}

func testSubmit_CountMatchesSubmissions(t *rapid.T) {
	ctx := context.Background()
	page, _ := newTestPage(todopagetest.Faults{})

	words := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Zа-яА-Я0-9]{1,20}`), 0, 8).Draw(t, "words")
	empties := 0
	for _, w := range words {
		if err := page.Submit(ctx, w); err != nil {
			t.Fatalf("Submit(%q): %v", w, err)
		}
	}
	if rapid.Bool().Draw(t, "submit_empty") {
		if err := page.Submit(ctx, "   "); err != nil {
			t.Fatalf("Submit(blank): %v", err)
		}
		empties++
		if _, ok := page.ExpectAlert(ctx, 50*time.Millisecond); !ok {
			t.Fatal("blank submission raised no alert")
		}
	}

	texts, err := page.TaskTexts(ctx)
	if err != nil {
		t.Fatalf("TaskTexts: %v", err)
	}
	if len(texts) != len(words) {
		t.Fatalf("got %d tasks after %d submissions (+%d blank)", len(texts), len(words), empties)
	}
	if strings.Join(texts, "\x00") != strings.Join(words, "\x00") {
		t.Fatalf("texts %q != submitted %q", texts, words)
	}
}

func TestSubmit_CountMatchesSubmissions(t *testing.T) {
	rapid.Check(t, testSubmit_CountMatchesSubmissions)
}
