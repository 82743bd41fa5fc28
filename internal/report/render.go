// Package report renders run summaries and publishes check results.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pideploy/pideploy/internal/models"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Render writes run to w in format.
func Render(w io.Writer, run *models.Run, format string) error {
	switch format {
	case FormatConsole, "":
		return Console(w, run)
	case FormatJSON:
		return JSON(w, run)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// JSON writes run as indented JSON.
func JSON(w io.Writer, run *models.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// Console writes a results table followed by a summary line.
func Console(w io.Writer, run *models.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "STATUS\tSUITE\tCHECK\tDURATION\tMESSAGE\n"); err != nil {
		return fmt.Errorf("failed to write table header: %w", err)
	}
	for _, res := range run.Results {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			statusLabel(res.Status), res.Suite, res.CheckID, formatDuration(res.Duration), firstLine(res.Message)); err != nil {
			return fmt.Errorf("failed to write table row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s: %d passed, %d failed, %d skipped, %d errored in %s (run %s against %s)\n",
		statusLabel(run.Status), run.Summary.Passed, run.Summary.Failed, run.Summary.Skipped, run.Summary.Errored,
		formatDuration(run.Duration()), run.ID, run.Target)
	return err
}

// ResultLine formats a single result for progress output.
func ResultLine(res models.CheckResult) string {
	line := fmt.Sprintf("%-5s %s/%s (%s)", statusLabel(res.Status), res.Suite, res.CheckID, formatDuration(res.Duration))
	if res.Message != "" {
		line += ": " + firstLine(res.Message)
	}
	return line
}

func statusLabel(s models.Status) string {
	return strings.ToUpper(string(s))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
