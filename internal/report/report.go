// Package report models the outcome of a suite run and renders it as the
// Markdown, HTML and JSON artifacts CI keeps.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Outcome is the result category of one case.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"  // the page misbehaved
	Error   Outcome = "error"   // the harness could not run the case
	Skipped Outcome = "skipped" // the run was cancelled before the case started
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration_ns"`
	Message  string        `json:"message,omitempty"`
}

// Report is the outcome of one suite run.
type Report struct {
	RunID      string       `json:"run_id"`
	Driver     string       `json:"driver"`
	PageURL    string       `json:"page_url"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cases      []CaseResult `json:"cases"`
}

// Summary counts cases by outcome.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

// Summary counts the report's cases by outcome.
func (r *Report) Summary() Summary {
	var s Summary
	for _, c := range r.Cases {
		s.Total++
		switch c.Outcome {
		case Passed:
			s.Passed++
		case Failed:
			s.Failed++
		case Error:
			s.Errors++
		case Skipped:
			s.Skipped++
		}
	}
	return s
}

// OK reports whether no case failed or errored.
func (r *Report) OK() bool {
	s := r.Summary()
	return s.Failed == 0 && s.Errors == 0
}

// Duration is the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (s Summary) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d errors, %d skipped", s.Passed, s.Failed, s.Errors, s.Skipped)
}

// JSON encodes the report with its summary.
func (r *Report) JSON() ([]byte, error) {
	out := struct {
		*Report
		Summary Summary `json:"summary"`
	}{Report: r, Summary: r.Summary()}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(b, '\n'), nil
}

// WriteFiles writes the HTML report to htmlPath and, when jsonPath is not
// empty, the JSON report to jsonPath. Parent directories are created.
func (r *Report) WriteFiles(htmlPath, jsonPath string) error {
	html, err := r.HTML()
	if err != nil {
		return err
	}
	if err := writeFile(htmlPath, html); err != nil {
		return err
	}
	if jsonPath == "" {
		return nil
	}
	data, err := r.JSON()
	if err != nil {
		return err
	}
	return writeFile(jsonPath, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// FormatDuration renders d the way go test does, e.g. "1.23s".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
