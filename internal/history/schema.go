package history

// Schema is the run-history ledger: one runs row per report and one
// case_results row per case, in execution order.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    driver TEXT NOT NULL,
    page_url TEXT NOT NULL,
    started_at INTEGER NOT NULL,   -- unix milliseconds
    finished_at INTEGER NOT NULL,  -- unix milliseconds
    passed INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    errors INTEGER NOT NULL,
    skipped INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS case_results (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    case_name TEXT NOT NULL,
    outcome TEXT NOT NULL,          -- passed, failed, error, skipped
    duration_ms INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_case_results_case_name ON case_results(case_name);
`
