package history

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/report"
)

const testKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 64 hex chars = 32 bytes

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t testing.TB, key string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func runReport(id string, offset time.Duration, outcomes ...report.Outcome) *report.Report {
	r := &report.Report{
		RunID:      id,
		Driver:     "playwright",
		PageURL:    "file:///ToDoList.html",
		StartedAt:  baseTime.Add(offset),
		FinishedAt: baseTime.Add(offset + 5*time.Second),
	}
	names := []string{"AddTask", "AddEmptyTask", "DeleteTask"}
	for i, o := range outcomes {
		r.Cases = append(r.Cases, report.CaseResult{
			Name:     names[i%len(names)],
			Outcome:  o,
			Duration: time.Duration(i+1) * 100 * time.Millisecond,
		})
	}
	return r
}

func TestRecordAndRecent(t *testing.T) {
	s, _ := openTestStore(t, "")
	ctx := context.Background()

	older := runReport("run-1", 0, report.Passed, report.Failed)
	newer := runReport("run-2", time.Hour, report.Passed, report.Passed, report.Error)
	for _, r := range []*report.Report{older, newer} {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s): %v", r.RunID, err)
		}
	}

	runs, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("Recent order wrong: %+v", runs)
	}
	want := report.Summary{Total: 3, Passed: 2, Errors: 1}
	if diff := cmp.Diff(want, runs[0].Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if !runs[0].StartedAt.Equal(newer.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", runs[0].StartedAt, newer.StartedAt)
	}

	limited, err := s.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Recent(1) = %v, %v", limited, err)
	}
}

func TestCases_PreservesOrderAndMessages(t *testing.T) {
	s, _ := openTestStore(t, "")
	ctx := context.Background()
	r := runReport("run-1", 0, report.Passed, report.Failed)
	r.Cases[1].Message = "expected an alert for empty task within 3s, none appeared"
	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Cases(ctx, "run-1")
	if err != nil {
		t.Fatalf("Cases: %v", err)
	}
	if diff := cmp.Diff(r.Cases, got); diff != "" {
		t.Fatalf("cases mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Cases(ctx, "missing"); !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("Cases(missing) error = %v, want invalid_argument", err)
	}
}

func TestRecord_RejectsDuplicateRun(t *testing.T) {
	s, _ := openTestStore(t, "")
	ctx := context.Background()
	r := runReport("run-1", 0, report.Passed)
	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, r); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	runs, _ := s.Recent(ctx, 10)
	if len(runs) != 1 {
		t.Fatalf("duplicate insert leaked rows: %d runs", len(runs))
	}
}

func TestRecord_RequiresRunID(t *testing.T) {
	s, _ := openTestStore(t, "")
	if err := s.Record(context.Background(), &report.Report{}); !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

func TestFlaky(t *testing.T) {
	s, _ := openTestStore(t, "")
	ctx := context.Background()
	// AddTask: pass, fail, pass (2 flips); AddEmptyTask: always pass; DeleteTask: error, skipped, pass (1 flip).
	history := [][]report.Outcome{
		{report.Passed, report.Passed, report.Error},
		{report.Failed, report.Passed, report.Skipped},
		{report.Passed, report.Passed, report.Passed},
	}
	for i, outcomes := range history {
		if err := s.Record(ctx, runReport(fmt.Sprintf("run-%d", i), time.Duration(i)*time.Hour, outcomes...)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	flakes, err := s.Flaky(ctx, 10)
	if err != nil {
		t.Fatalf("Flaky: %v", err)
	}
	want := []Flake{
		{Case: "AddTask", Runs: 3, Passed: 2, NotPassed: 1, Flips: 2, LastOutcome: report.Passed},
		{Case: "DeleteTask", Runs: 2, Passed: 1, NotPassed: 1, Flips: 1, LastOutcome: report.Passed},
	}
	if diff := cmp.Diff(want, flakes); diff != "" {
		t.Fatalf("flakes mismatch (-want +got):\n%s", diff)
	}

	// Only the newest run: nothing can have flipped.
	flakes, err = s.Flaky(ctx, 1)
	if err != nil {
		t.Fatalf("Flaky(1): %v", err)
	}
	if len(flakes) != 0 {
		t.Fatalf("Flaky(1) = %+v, want none", flakes)
	}
}

func TestFlaky_StableCasesNeverReported(t *testing.T) {
	dir := t.TempDir()
	iteration := 0
	rapid.Check(t, func(rt *rapid.T) {
		iteration++
		s, err := Open(filepath.Join(dir, fmt.Sprintf("history-%d.db", iteration)), "")
		if err != nil {
			rt.Fatalf("Open: %v", err)
		}
		defer s.Close()

		ctx := context.Background()
		n := rapid.IntRange(1, 6).Draw(rt, "runs")
		stable := rapid.SampledFrom([]report.Outcome{report.Passed, report.Failed, report.Error}).Draw(rt, "stable")
		for i := 0; i < n; i++ {
			r := runReport(fmt.Sprintf("run-%d", i), time.Duration(i)*time.Minute, stable)
			if err := s.Record(ctx, r); err != nil {
				rt.Fatalf("Record: %v", err)
			}
		}
		flakes, err := s.Flaky(ctx, n)
		if err != nil {
			rt.Fatalf("Flaky: %v", err)
		}
		if len(flakes) != 0 {
			rt.Fatalf("stable outcome %s reported as flaky: %+v", stable, flakes)
		}
	})
}

func TestOpen_EncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	ctx := context.Background()

	s, err := Open(path, testKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.Encrypted() {
		t.Fatal("store should report encryption")
	}
	if err := s.Record(ctx, runReport("run-1", 0, report.Passed)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	header := make([]byte, 16)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open db file: %v", err)
	}
	_, err = f.Read(header)
	f.Close()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if bytes.HasPrefix(header, []byte("SQLite format 3")) {
		t.Fatal("encrypted database has a plaintext SQLite header")
	}

	reopened, err := Open(path, testKey)
	if err != nil {
		t.Fatalf("reopen with key: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.Recent(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Recent after reopen = %v, %v", runs, err)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, testKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	wrong := strings.Repeat("b", 64)
	if _, err := Open(path, wrong); err == nil {
		t.Fatal("expected wrong key to fail")
	}
}

func TestOpen_RejectsBadInput(t *testing.T) {
	if _, err := Open("", ""); !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("empty path: %v", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "h.db"), "abc"); !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("short key: %v", err)
	}
}

func TestOpen_UnencryptedHasPlainHeader(t *testing.T) {
	s, path := openTestStore(t, "")
	if s.Encrypted() {
		t.Fatal("store without key should not report encryption")
	}
	if err := s.Record(context.Background(), runReport("run-1", 0, report.Passed)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read db: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("SQLite format 3")) {
		t.Fatal("unencrypted database should have a plaintext header")
	}
}
