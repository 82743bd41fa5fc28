package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/checks"
)

func newListCommand(g *globalOptions) *cobra.Command {
	var asJSON bool
	var suite string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var suites []string
			if suite != "" {
				suites = []string{suite}
			}
			selected, err := checks.Default().Select(suites, nil)
			if err != nil {
				return err
			}

			if asJSON {
				type entry struct {
					ID          string `json:"id"`
					Suite       string `json:"suite"`
					Description string `json:"description"`
				}
				entries := make([]entry, 0, len(selected))
				for _, c := range selected {
					entries = append(entries, entry{ID: c.ID, Suite: c.Suite, Description: c.Description})
				}
				enc := json.NewEncoder(g.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			tw := tabwriter.NewWriter(g.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SUITE\tCHECK\tDESCRIPTION")
			for _, c := range selected {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Suite, c.ID, c.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().StringVarP(&suite, "suite", "s", "", "only list one suite")
	return cmd
}
