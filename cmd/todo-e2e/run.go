package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kuitang/todolist-e2e/internal/config"
	"github.com/kuitang/todolist-e2e/internal/harness"
	"github.com/kuitang/todolist-e2e/internal/history"
	"github.com/kuitang/todolist-e2e/internal/obs"
	"github.com/kuitang/todolist-e2e/internal/report"
	"github.com/kuitang/todolist-e2e/internal/s3client"
	"github.com/kuitang/todolist-e2e/internal/scenario"
)

func newRunCommand() *cobra.Command {
	var flags config.Flags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cases and write the report",
		Long: `Run every case (or those matching --run) in its own browser session,
print go test style progress, and write the HTML report.

Example:
  todo-e2e run --page web/ToDoList.html
  todo-e2e run --driver rod --run 'Task$' --json report.json`,
		Args: cobra.NoArgs,
		RunE: runSuiteE(&flags),
	}
	config.RegisterFlags(cmd.Flags(), &flags)
	return cmd
}

// runSuiteE loads the config from flags once cobra has parsed them.
func runSuiteE(flags *config.Flags) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(*flags)
		if err != nil {
			return err
		}
		return runSuite(cmd.Context(), cfg)
	}
}

func runSuite(ctx context.Context, cfg *config.Config) error {
	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	log := obs.Pkg("main")
	cfg.PrintStartupSummary()

	cases, err := scenario.Filter(scenario.Default(scenario.Options{
		AlertTimeout:  cfg.AlertTimeout,
		SubmitSpacing: cfg.SubmitSpacing,
	}), cfg.CaseFilter)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no case matches %q", cfg.CaseFilter)
	}

	launcher, err := harness.NewLauncher(*cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Warn("failed to stop browser driver", "error", err)
		}
	}()

	runner := &scenario.Runner{
		Launch:  scenario.FromLauncher(launcher),
		Out:     os.Stdout,
		Driver:  launcher.Driver(),
		PageURL: launcher.PageURL(),
	}
	rep := runner.Run(ctx, cases)

	if err := rep.WriteFiles(cfg.ReportPath, cfg.ReportJSONPath); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "report written to %s\n", cfg.ReportPath)

	// Bookkeeping below uses a fresh context so an interrupted run is still recorded.
	if cfg.HistoryPath != "" {
		if err := recordHistory(context.WithoutCancel(ctx), cfg, rep); err != nil {
			log.Error("failed to record run history", "error", err)
		}
	}
	if cfg.Publish {
		pub, err := publishReport(context.WithoutCancel(ctx), cfg, rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "report published to %s\n", pub.HTMLURL)
	}

	if !rep.OK() {
		return errSuiteFailed
	}
	return nil
}

func recordHistory(ctx context.Context, cfg *config.Config, rep *report.Report) error {
	store, err := history.Open(cfg.HistoryPath, cfg.HistoryKey)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rep)
}

func publishReport(ctx context.Context, cfg *config.Config, rep *report.Report) (report.Published, error) {
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		PublicURL:       cfg.AWSPublicURL,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return report.Published{}, err
	}
	return report.Publish(ctx, client, cfg.ReportPrefix, rep)
}
