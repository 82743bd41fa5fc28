package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/internal/upload"
)

type uploadOptions struct {
	tagsFile     string
	dataFile     string
	databaseXML  string
	databaseName string
	replace      bool
	streams      int
}

func newUploadCommand(g *globalOptions) *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Load sample AF and Data Archive content for the checks",
		Long: `Create the PI Points listed in a tag definition CSV, write the values from
a data CSV and, optionally, import an AF database from an XML export.

Tag CSV columns: name, point type, point class.
Data CSV columns: tag, value, (ignored), timestamp.`,
		Example: `  pideploy upload --tags tags.csv --data data.csv
  pideploy upload --database-xml OSIsoftTests.xml --replace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.tagsFile == "" && opts.dataFile == "" && opts.databaseXML == "" {
				return errors.New("nothing to upload: pass --tags, --data or --database-xml")
			}
			return runUpload(cmd.Context(), g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.tagsFile, "tags", "", "tag definition CSV")
	cmd.Flags().StringVar(&opts.dataFile, "data", "", "recorded values CSV")
	cmd.Flags().StringVar(&opts.databaseXML, "database-xml", "", "AF database XML export")
	cmd.Flags().StringVar(&opts.databaseName, "database-name", "", "AF database name (default: configured af_database)")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "replace an existing AF database")
	cmd.Flags().IntVar(&opts.streams, "streams-per-request", upload.DefaultStreamsPerRequest, "streams per streamsets request")
	return cmd
}

func runUpload(ctx context.Context, g *globalOptions, opts *uploadOptions) error {
	in, err := readUploadInput(opts)
	if err != nil {
		return err
	}

	a, err := loadApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Validate(); err != nil {
		return err
	}
	required := []string{"PIWebAPI"}
	if in.Database != nil {
		required = append(required, "AFServer")
		if in.Database.Name == "" {
			in.Database.Name = a.cfg.PI.AFDatabase
			required = append(required, "AFDatabase")
		}
	}
	if len(in.Tags) > 0 || len(in.Data) > 0 {
		required = append(required, "PIDataArchive")
	}
	if err := a.cfg.PI.Require(required...); err != nil {
		return err
	}

	client, err := piwebapi.NewFromConfig(ctx, &a.cfg.PI, a.log)
	if err != nil {
		return err
	}

	poll := eventually.Config{Timeout: a.cfg.Polling.Timeout, Interval: a.cfg.Polling.Interval}
	u := upload.New(client, a.cfg.PI.AFServer, a.cfg.PI.DataArchive,
		upload.WithPolling(poll),
		upload.WithStreamsPerRequest(opts.streams),
		upload.WithLogger(a.log.Named("upload")),
	)

	summary, err := u.Upload(ctx, in)
	if summary != nil {
		printUploadSummary(g, summary)
	}
	return err
}

func readUploadInput(opts *uploadOptions) (upload.Input, error) {
	var in upload.Input

	if opts.tagsFile != "" {
		f, err := os.Open(opts.tagsFile)
		if err != nil {
			return in, fmt.Errorf("failed to open tag file: %w", err)
		}
		defer f.Close()
		if in.Tags, err = upload.ReadTagDefinitions(f); err != nil {
			return in, fmt.Errorf("%s: %w", opts.tagsFile, err)
		}
	}

	if opts.dataFile != "" {
		f, err := os.Open(opts.dataFile)
		if err != nil {
			return in, fmt.Errorf("failed to open data file: %w", err)
		}
		defer f.Close()
		if in.Data, err = upload.ReadData(f); err != nil {
			return in, fmt.Errorf("%s: %w", opts.dataFile, err)
		}
	}

	if opts.databaseXML != "" {
		xml, err := os.ReadFile(opts.databaseXML)
		if err != nil {
			return in, fmt.Errorf("failed to read database export: %w", err)
		}
		in.Database = &upload.Database{Name: opts.databaseName, XML: xml, Replace: opts.replace}
	}
	return in, nil
}

func printUploadSummary(g *globalOptions, s *upload.Summary) {
	if s.DatabaseImported {
		fmt.Fprintln(g.stdout, "AF database imported")
	}
	fmt.Fprintf(g.stdout, "Points created:  %d\n", s.PointsCreated)
	fmt.Fprintf(g.stdout, "Points existing: %d\n", s.PointsExisting)
	fmt.Fprintf(g.stdout, "Values written:  %d\n", s.ValuesWritten)
	if s.SkippedRows > 0 {
		fmt.Fprintf(g.stdout, "Rows skipped:    %d (unknown tag)\n", s.SkippedRows)
	}
}
