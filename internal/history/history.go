// Package history keeps a SQLite ledger of suite runs so repeated CI runs can
// surface cases whose outcome keeps changing.
//
// The database is optionally encrypted with SQLCipher when a 32-byte hex key
// is supplied.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/logutil"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/report"
)

const (
	driverName = "sqlite3"

	// DefaultRecentLimit is how many runs Recent returns when limit <= 0.
	DefaultRecentLimit = 10
)

// Store is an open history database.
type Store struct {
	db        *sql.DB
	encrypted bool
}

// Run is one recorded suite run.
type Run struct {
	RunID      string
	Driver     string
	PageURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    report.Summary
}

// Flake is a case that both passed and did not pass within the window.
type Flake struct {
	Case        string
	Runs        int // runs in the window that executed the case
	Passed      int
	NotPassed   int // failed or errored
	Flips       int // outcome changes between consecutive runs
	LastOutcome report.Outcome
}

// Open opens (creating if needed) the ledger at path. A non-empty keyHex must
// be 64 hex characters and enables SQLCipher encryption.
func Open(path, keyHex string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errs.New(errs.InvalidArgument, "history path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := path
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, errs.New(errs.InvalidArgument, "history key must be 64 hex characters")
		}
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, keyHex)
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	obs.Pkg("history").Debug("opening history database", "dsn", logutil.RedactDSN(dsn))
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.InvalidArgument, "failed to initialize history schema (wrong HISTORY_KEY?)", err)
	}
	return &Store{db: db, encrypted: keyHex != ""}, nil
}

func sqliteCommonParams() string {
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Encrypted reports whether the store was opened with a key.
func (s *Store) Encrypted() bool { return s.encrypted }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores r and its case results in one transaction.
func (s *Store) Record(ctx context.Context, r *report.Report) error {
	if r.RunID == "" {
		return errs.New(errs.InvalidArgument, "report has no run id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	sum := r.Summary()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, driver, page_url, started_at, finished_at, passed, failed, errors, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Driver, r.PageURL, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		sum.Passed, sum.Failed, sum.Errors, sum.Skipped,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO case_results (run_id, position, case_name, outcome, duration_ms, message)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare case insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range r.Cases {
		if _, err := stmt.ExecContext(ctx, r.RunID, i, c.Name, string(c.Outcome), c.Duration.Milliseconds(), c.Message); err != nil {
			return fmt.Errorf("insert case %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, driver, page_url, started_at, finished_at, passed, failed, errors, skipped
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run               Run
			started, finished int64
		)
		if err := rows.Scan(&run.RunID, &run.Driver, &run.PageURL, &started, &finished,
			&run.Summary.Passed, &run.Summary.Failed, &run.Summary.Errors, &run.Summary.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		run.FinishedAt = time.UnixMilli(finished).UTC()
		run.Summary.Total = run.Summary.Passed + run.Summary.Failed + run.Summary.Errors + run.Summary.Skipped
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Cases returns the recorded case results of one run in execution order.
func (s *Store) Cases(ctx context.Context, runID string) ([]report.CaseResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_name, outcome, duration_ms, message FROM case_results
		 WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cases of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []report.CaseResult
	for rows.Next() {
		var (
			c       report.CaseResult
			outcome string
			ms      int64
		)
		if err := rows.Scan(&c.Name, &outcome, &ms, &c.Message); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c.Outcome = report.Outcome(outcome)
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("no run %q in history", runID))
		}
		if err != nil {
			return nil, fmt.Errorf("look up run %s: %w", runID, err)
		}
	}
	return out, nil
}

// Flaky returns the cases that both passed and failed or errored within the
// last window runs, most flips first. Skipped results are ignored.
func (s *Store) Flaky(ctx context.Context, window int) ([]Flake, error) {
	if window <= 0 {
		window = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.case_name, c.outcome
		 FROM case_results c
		 JOIN (SELECT run_id, started_at FROM runs ORDER BY started_at DESC LIMIT ?) r ON r.run_id = c.run_id
		 ORDER BY r.started_at ASC, c.position ASC`, window)
	if err != nil {
		return nil, fmt.Errorf("query case history: %w", err)
	}
	defer rows.Close()

	byCase := make(map[string]*Flake)
	for rows.Next() {
		var name, outcome string
		if err := rows.Scan(&name, &outcome); err != nil {
			return nil, fmt.Errorf("scan case history: %w", err)
		}
		o := report.Outcome(outcome)
		if o == report.Skipped {
			continue
		}
		f, ok := byCase[name]
		if !ok {
			f = &Flake{Case: name}
			byCase[name] = f
		}
		if f.Runs > 0 && (f.LastOutcome == report.Passed) != (o == report.Passed) {
			f.Flips++
		}
		f.Runs++
		if o == report.Passed {
			f.Passed++
		} else {
			f.NotPassed++
		}
		f.LastOutcome = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var flakes []Flake
	for _, f := range byCase {
		if f.Passed > 0 && f.NotPassed > 0 {
			flakes = append(flakes, *f)
		}
	}
	sort.Slice(flakes, func(i, j int) bool {
		if flakes[i].Flips != flakes[j].Flips {
			return flakes[i].Flips > flakes[j].Flips
		}
		return flakes[i].Case < flakes[j].Case
	})
	return flakes, nil
}
