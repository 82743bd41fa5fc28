// Package cli implements the pideploy command line.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ErrChecksFailed is returned by run when any check failed or errored.
var ErrChecksFailed = errors.New("one or more checks failed")

type globalOptions struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{stdout: os.Stdout, stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "pideploy",
		Short: "Verify a PI System deployment through PI Web API",
		Long: `pideploy exercises a PI Web API deployment end to end: it reads and writes
AF and Data Archive objects, publishes OMF messages and waits for stream data to
become visible, tolerating the eventual consistency of the PI System.

Settings come from environment variables, optionally overlaid by a YAML file
given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML settings file")

	cmd.AddCommand(
		newRunCommand(opts),
		newListCommand(opts),
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUploadCommand(opts),
		newEncryptCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, ErrChecksFailed) {
			cmd.PrintErrln("Error:", err)
		}
		return 1
	}
	return 0
}
