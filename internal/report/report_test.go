package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/s3client"
)

func sampleReport() *Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Report{
		RunID:      "0b8f5d2e-4a7c-4f0e-9d0b-5a1c2e3f4a5b",
		Driver:     "playwright",
		PageURL:    "file:///srv/web/ToDoList.html",
		StartedAt:  start,
		FinishedAt: start.Add(7 * time.Second),
		Cases: []CaseResult{
			{Name: "AddTask", Outcome: Passed, Duration: 1230 * time.Millisecond},
			{Name: "AddEmptyTask", Outcome: Failed, Duration: 3 * time.Second, Message: "expected an alert | none appeared"},
			{Name: "DeleteTask", Outcome: Error, Duration: 10 * time.Millisecond, Message: "launch browser session: chromium missing"},
			{Name: "EditTask", Outcome: Skipped},
		},
	}
}

func TestSummary(t *testing.T) {
	r := sampleReport()
	got := r.Summary()
	want := Summary{Total: 4, Passed: 1, Failed: 1, Errors: 1, Skipped: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Summary mismatch (-want +got):\n%s", diff)
	}
	require.False(t, r.OK())
	require.Equal(t, "1 passed, 1 failed, 1 errors, 1 skipped", got.String())
	require.Equal(t, 7*time.Second, r.Duration())
}

func testSummary_CountsPartitionCases(t *rapid.T) {
	outcomes := []Outcome{Passed, Failed, Error, Skipped}
	n := rapid.IntRange(0, 30).Draw(t, "n")
	r := &Report{}
	for i := 0; i < n; i++ {
		o := rapid.SampledFrom(outcomes).Draw(t, "outcome")
		r.Cases = append(r.Cases, CaseResult{Name: "c", Outcome: o})
	}
	s := r.Summary()
	if s.Total != n || s.Passed+s.Failed+s.Errors+s.Skipped != n {
		t.Fatalf("summary %+v does not partition %d cases", s, n)
	}
	if r.OK() != (s.Failed == 0 && s.Errors == 0) {
		t.Fatalf("OK()=%v inconsistent with %+v", r.OK(), s)
	}
}

func TestSummary_CountsPartitionCases(t *testing.T) {
	rapid.Check(t, testSummary_CountsPartitionCases)
}

func TestMarkdown(t *testing.T) {
	md := sampleReport().Markdown()
	for _, want := range []string{
		"# To-do list E2E report",
		"`0b8f5d2e-4a7c-4f0e-9d0b-5a1c2e3f4a5b`",
		"**1 passed, 1 failed, 1 errors, 1 skipped** (4 total)",
		"| AddTask | passed | 1.23s |  |",
		`expected an alert \| none appeared`,
		"- **Duration:** 7.00s",
	} {
		require.Contains(t, md, want)
	}
}

func TestMarkdown_NoCases(t *testing.T) {
	r := sampleReport()
	r.Cases = nil
	require.Contains(t, r.Markdown(), "No cases ran.")
	require.True(t, r.OK())
}

func TestHTML_SanitizesPageText(t *testing.T) {
	r := sampleReport()
	r.Cases[0].Message = `<script>alert("x")</script><img src=x onerror=alert(1)>`
	out, err := r.HTML()
	require.NoError(t, err)
	page := string(out)

	require.Contains(t, page, "<table>")
	require.Contains(t, page, `class="status fail">FAIL`)
	require.NotContains(t, page, "<script>alert")
	require.NotContains(t, page, "onerror")
}

func TestHTML_PassBadge(t *testing.T) {
	r := sampleReport()
	r.Cases = r.Cases[:1]
	out, err := r.HTML()
	require.NoError(t, err)
	require.Contains(t, string(out), `class="status pass">PASS`)
}

func TestJSON_IncludesSummary(t *testing.T) {
	data, err := sampleReport().JSON()
	require.NoError(t, err)

	var decoded struct {
		RunID   string       `json:"run_id"`
		Cases   []CaseResult `json:"cases"`
		Summary Summary      `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "0b8f5d2e-4a7c-4f0e-9d0b-5a1c2e3f4a5b", decoded.RunID)
	require.Equal(t, 4, decoded.Summary.Total)
	if diff := cmp.Diff(sampleReport().Cases, decoded.Cases); diff != "" {
		t.Fatalf("cases mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "out", "report.html")
	jsonPath := filepath.Join(dir, "out", "report.json")

	require.NoError(t, sampleReport().WriteFiles(htmlPath, jsonPath))
	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(html), "<!DOCTYPE html>"))
	_, err = os.Stat(jsonPath)
	require.NoError(t, err)
}

func TestWriteFiles_SkipsJSONWhenUnset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleReport().WriteFiles(filepath.Join(dir, "report.html"), ""))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPublish(t *testing.T) {
	store := s3client.TestClient(t, "ci-reports")
	ctx := context.Background()
	r := sampleReport()

	pub, err := Publish(ctx, store, "/reports/", r)
	require.NoError(t, err)

	htmlKey, jsonKey := r.Keys("reports")
	require.Equal(t, "reports/"+r.RunID+"/report.html", htmlKey)
	require.Equal(t, store.GetPublicURL(htmlKey), pub.HTMLURL)
	require.Equal(t, store.GetPublicURL(jsonKey), pub.JSONURL)

	html, err := store.GetObject(ctx, htmlKey)
	require.NoError(t, err)
	require.Contains(t, string(html), r.RunID)

	data, err := store.GetObject(ctx, jsonKey)
	require.NoError(t, err)
	require.Contains(t, string(data), `"summary"`)
}

func TestPublish_RequiresRunID(t *testing.T) {
	r := sampleReport()
	r.RunID = ""
	_, err := Publish(context.Background(), s3client.TestClient(t, "ci-reports"), "reports", r)
	require.True(t, errs.Is(err, errs.InvalidArgument))
}
