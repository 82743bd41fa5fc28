package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/report"
	"github.com/pideploy/pideploy/internal/runner"
)

type runOptions struct {
	suites   []string
	checks   []string
	format   string
	progress bool
	history  bool
}

func newRunCommand(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run deployment checks and report the outcome",
		Long: `Run the selected checks against the configured PI Web API.

Checks run one at a time. The command exits with status 1 when any check
fails or errors; skipped checks do not fail the run.`,
		Example: `  pideploy run
  pideploy run --suite preliminary --suite pida
  pideploy run --check piwebapi/omf --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChecks(ctx, g, opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.suites, "suite", "s", nil, "suites to run (repeatable)")
	cmd.Flags().StringSliceVar(&opts.checks, "check", nil, "checks to run, as id or suite/id (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", report.FormatConsole, "output format: console or json")
	cmd.Flags().BoolVar(&opts.progress, "progress", true, "print each result as it completes (console format)")
	cmd.Flags().BoolVar(&opts.history, "history", false, "store the run in the configured run history")
	return cmd
}

func runChecks(ctx context.Context, g *globalOptions, opts *runOptions) error {
	if opts.format != report.FormatConsole && opts.format != report.FormatJSON {
		return fmt.Errorf("%w: %s", report.ErrUnknownFormat, opts.format)
	}

	a, err := loadApp(g)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("Failed to close backends", "error", err.Error())
		}
	}()

	deps, err := a.checkDeps(ctx)
	if err != nil {
		return err
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(a.log.Named("runner")),
		runner.WithCheckTimeout(a.cfg.Polling.CheckTimeout),
	}
	if opts.history {
		repo, err := a.runRepository(ctx)
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, runner.WithRepository(repo))
	}
	if pub := a.publisher(); pub != nil {
		runnerOpts = append(runnerOpts, runner.WithPublisher(pub))
	}
	if opts.progress && opts.format == report.FormatConsole {
		runnerOpts = append(runnerOpts, runner.WithResultHook(func(res models.CheckResult) {
			fmt.Fprintln(g.stdout, report.ResultLine(res))
		}))
	}

	r := runner.New(checks.Default(), deps, runnerOpts...)
	run, err := r.Run(ctx, runner.Selection{Suites: opts.suites, Checks: opts.checks, TriggeredBy: "cli"})
	if err != nil {
		return err
	}

	if opts.progress && opts.format == report.FormatConsole {
		fmt.Fprintln(g.stdout)
	}
	if err := report.Render(g.stdout, run, opts.format); err != nil {
		return err
	}
	if run.Status.Failed() {
		return ErrChecksFailed
	}
	return nil
}
