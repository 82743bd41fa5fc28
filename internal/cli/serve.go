package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/database"
	"github.com/pideploy/pideploy/internal/handlers"
	"github.com/pideploy/pideploy/internal/runner"
	"github.com/pideploy/pideploy/internal/server"
	"github.com/pideploy/pideploy/internal/services"
)

func newServeCommand(g *globalOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the verification API",
		Long: `Serve an HTTP API that starts runs in the background and exposes their
results, together with health, readiness and Prometheus endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, g, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, g *globalOptions, migrate bool) error {
	a, err := loadApp(g)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("Failed to close backends", "error", err.Error())
		}
	}()

	a.log.Info("Starting pideploy", "version", Version, "env", a.cfg.App.Env, "target", a.cfg.PI.BaseURL())

	if migrate && a.cfg.DatabaseEnabled() {
		if err := migrateUp(ctx, a); err != nil {
			return err
		}
	}

	deps, err := a.checkDeps(ctx)
	if err != nil {
		return err
	}
	repo, err := a.runRepository(ctx)
	if err != nil {
		return err
	}

	runnerOpts := []runner.Option{
		runner.WithRepository(repo),
		runner.WithLogger(a.log.Named("runner")),
		runner.WithCheckTimeout(a.cfg.Polling.CheckTimeout),
	}
	if pub := a.publisher(); pub != nil {
		runnerOpts = append(runnerOpts, runner.WithPublisher(pub))
	}
	svc := services.NewRunService(runner.New(checks.Default(), deps, runnerOpts...), repo, a.log.Named("runs"))

	srv := server.New(a.cfg, a.log.Named("server"))
	srv.SetRunHandler(handlers.NewRunHandler(svc))
	srv.HealthHandler().AddCheck("runs", repo.HealthCheck)
	if a.cfg.RedisEnabled() {
		srv.HealthHandler().AddCheck("cache", a.cache.Ping)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func migrateUp(ctx context.Context, a *app) error {
	pool, err := a.database(ctx)
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(pool)
	if err != nil {
		return err
	}
	n, err := m.Up(ctx)
	if err != nil {
		return err
	}
	a.log.Info("Migrations applied", "count", n)
	return nil
}
