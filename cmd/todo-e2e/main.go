// Command todo-e2e drives the to-do list page through a real browser and
// reports which behaviours hold.
//
// Usage:
//
//	todo-e2e install
//	todo-e2e --page web/ToDoList.html
//	todo-e2e run --page web/ToDoList.html --report report.html
//	todo-e2e history --history runs.db
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuitang/todolist-e2e/internal/config"
)

// errSuiteFailed signals a completed run with failed or errored cases.
var errSuiteFailed = errors.New("suite failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errSuiteFailed) {
			fmt.Fprintf(os.Stderr, "todo-e2e: %v\n", err)
		}
		os.Exit(1)
	}
}

// newRootCommand runs the suite when invoked without a subcommand.
func newRootCommand() *cobra.Command {
	var flags config.Flags
	cmd := &cobra.Command{
		Use:   "todo-e2e",
		Short: "End-to-end checks for the to-do list page",
		Long: `todo-e2e opens the to-do list page in a fresh browser session per case
and checks adding, editing, deleting and persisting tasks.`,
		Args:          cobra.NoArgs,
		RunE:          runSuiteE(&flags),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd.Flags(), &flags)
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newInstallCommand())
	return cmd
}
