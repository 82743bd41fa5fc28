package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/database"
)

func newMigrateCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run history schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, g, func(a *app, m *database.Migrator) error {
					n, err := m.Up(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(g.stdout, "Applied %d migration(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, g, func(a *app, m *database.Migrator) error {
					if err := m.Down(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(g.stdout, "Rolled back one migration")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, g, func(a *app, m *database.Migrator) error {
					status, err := m.Status(cmd.Context())
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(g.stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
					for _, s := range status {
						applied := "pending"
						if s.AppliedAt != nil {
							applied = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, s.Name, applied)
					}
					return tw.Flush()
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, g *globalOptions, fn func(*app, *database.Migrator) error) error {
	a, err := loadApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := a.database(cmd.Context())
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(pool)
	if err != nil {
		return err
	}
	return fn(a, m)
}
