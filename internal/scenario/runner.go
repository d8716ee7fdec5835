package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/todolist-e2e/internal/errs"
	"github.com/kuitang/todolist-e2e/internal/harness"
	"github.com/kuitang/todolist-e2e/internal/logutil"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/report"
	"github.com/kuitang/todolist-e2e/internal/todopage"
)

// maxLoggedMessage bounds case messages in log lines; the report keeps them whole.
const maxLoggedMessage = 500

// Session is a browser session owned by exactly one case.
type Session interface {
	Page() *todopage.Page
	Close() error
}

// LaunchFunc opens a fresh session for one case.
type LaunchFunc func(ctx context.Context) (Session, error)

// FromLauncher adapts a harness launcher to a LaunchFunc.
func FromLauncher(l *harness.Launcher) LaunchFunc {
	return func(ctx context.Context) (Session, error) {
		s, err := l.Launch(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Runner executes cases sequentially, one fresh session per case.
type Runner struct {
	Launch  LaunchFunc
	Out     io.Writer // verbose progress lines; nil discards them
	Driver  string
	PageURL string
}

// Run executes every case and returns the report. Once ctx is cancelled the
// case in flight is reported as error and the rest as skipped.
func (r *Runner) Run(ctx context.Context, cases []Case) *report.Report {
	rep := &report.Report{
		RunID:     uuid.NewString(),
		Driver:    r.Driver,
		PageURL:   r.PageURL,
		StartedAt: time.Now().UTC(),
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: rep.RunID, Driver: r.Driver})
	log := obs.From(ctx)
	log.Info("run started", "cases", len(cases), "page", r.PageURL)

	for _, c := range cases {
		rep.Cases = append(rep.Cases, r.RunCase(ctx, c))
	}
	rep.FinishedAt = time.Now().UTC()

	summary := rep.Summary()
	status := "PASS"
	if !rep.OK() {
		status = "FAIL"
	}
	r.printf("%s\n%s (%s)\n", status, summary, report.FormatDuration(rep.Duration()))
	log.Info("run finished",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"errors", summary.Errors,
		"skipped", summary.Skipped,
		"duration_ms", rep.Duration().Milliseconds(),
	)
	return rep
}

// RunCase executes one case in its own session. The session is closed
// whatever the outcome, including a panic in the case body.
func (r *Runner) RunCase(ctx context.Context, c Case) (res report.CaseResult) {
	ctx = obs.WithCase(ctx, c.Name)
	log := obs.From(ctx)
	start := time.Now()
	res.Name = c.Name

	defer func() {
		res.Duration = time.Since(start)
		r.printResult(res)
		log.Info("case finished", "outcome", res.Outcome, "duration_ms", res.Duration.Milliseconds(), "message", logutil.TruncateForLog(res.Message, maxLoggedMessage))
	}()

	if err := ctx.Err(); err != nil {
		res.Outcome = report.Skipped
		res.Message = "run cancelled before case started"
		return res
	}
	r.printf("=== RUN   %s\n", c.Name)

	sess, err := r.Launch(ctx)
	if err != nil {
		res.Outcome = report.Error
		res.Message = err.Error()
		return res
	}

	runErr := runGuarded(ctx, c, sess.Page())
	closeErr := closeGuarded(sess)
	res.Outcome, res.Message = classify(ctx, runErr, closeErr)
	return res
}

func runGuarded(ctx context.Context, c Case, p *todopage.Page) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errs.New(errs.Internal, fmt.Sprintf("panic: %v", v))
		}
	}()
	return c.Run(ctx, p)
}

func closeGuarded(sess Session) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errs.New(errs.Internal, fmt.Sprintf("panic: %v", v))
		}
	}()
	return sess.Close()
}

func classify(ctx context.Context, runErr, closeErr error) (report.Outcome, string) {
	var outcome report.Outcome
	var msg string
	switch {
	case runErr == nil:
		outcome = report.Passed
	case ctx.Err() != nil || errors.Is(runErr, context.Canceled):
		outcome, msg = report.Error, "run cancelled: "+runErr.Error()
	case errs.Failure(runErr):
		outcome, msg = report.Failed, runErr.Error()
	default:
		outcome, msg = report.Error, runErr.Error()
	}

	if closeErr != nil {
		if outcome == report.Passed {
			outcome = report.Error
			return outcome, "teardown: " + closeErr.Error()
		}
		msg += "; teardown: " + closeErr.Error()
	}
	return outcome, msg
}

func (r *Runner) printResult(res report.CaseResult) {
	label := map[report.Outcome]string{
		report.Passed:  "PASS",
		report.Failed:  "FAIL",
		report.Error:   "ERROR",
		report.Skipped: "SKIP",
	}[res.Outcome]
	r.printf("--- %s: %s (%s)\n", label, res.Name, report.FormatDuration(res.Duration))
	if res.Message != "" {
		r.printf("    %s\n", res.Message)
	}
}

func (r *Runner) printf(format string, args ...any) {
	if r.Out == nil {
		return
	}
	fmt.Fprintf(r.Out, format, args...)
}
