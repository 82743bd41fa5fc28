package checks

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

// Analyses shipped with the wind farm test database.
const (
	periodicAnalysis     = "Demo Data - Digital Calcs"
	periodicAnalysisPath = `*wind farm 02*tur02001*demo data - digital calcs*`
	rollupAnalysis       = "Lost Power"
	rollupTarget         = "Region 1"

	maxErrorAnalyses = 10
	// recentOutput is how far before the check an output may have been
	// evaluated and still count as current.
	recentOutput = 10 * time.Second
)

func analysisChecks() []*Check {
	requires := []Condition{RequiresWebAPI(), RequiresSetting("AFServer", "AFDatabase", "PIAnalysisService")}
	return []*Check{
		{
			ID:          "no-error-analyses",
			Suite:       SuiteAnalysis,
			Description: "No analysis in the test database is in error",
			Requires:    requires,
			Run:         checkNoErrorAnalyses,
		},
		{
			ID:          "analyses-evaluating",
			Suite:       SuiteAnalysis,
			Description: "PI Analysis Service keeps evaluating the periodic analysis",
			Requires:    requires,
			Run:         checkAnalysesEvaluating,
		},
		{
			ID:          "periodic-analysis",
			Suite:       SuiteAnalysis,
			Description: "The periodic expression analysis writes digital states to its outputs",
			Requires:    requires,
			Run:         checkPeriodicAnalysis,
		},
		{
			ID:          "rollup-analysis",
			Suite:       SuiteAnalysis,
			Description: "The Lost Power rollup sums the values of its child elements",
			Requires:    requires,
			Run:         checkRollupAnalysis,
		},
	}
}

// checkNoErrorAnalyses lists the analyses of the test database and fails
// when any of them is stopped on an error.
func checkNoErrorAnalyses(c *Context) error {
	ctx, pi := c.Context(), c.PI()
	db, dbPath, err := databaseWebID(c)
	if err != nil {
		return err
	}

	c.Step("List analyses in %s", dbPath)
	analyses, err := c.Client().Analyses(ctx, db, "")
	if err != nil {
		return fmt.Errorf("list analyses in %s: %w", dbPath, err)
	}
	if len(analyses) == 0 {
		return Failf("Can't find any analyses in database %s", pi.AFDatabase)
	}

	var inError []piwebapi.Analysis
	for _, a := range analyses {
		if a.InError() {
			inError = append(inError, a)
		}
	}
	if len(inError) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d analyses in database %s in error status.", len(inError), pi.AFDatabase)
	for i, a := range inError {
		if i == maxErrorAnalyses {
			fmt.Fprintf(&b, " Printed %d analyses out of %d.", maxErrorAnalyses, len(inError))
			break
		}
		fmt.Fprintf(&b, " Analysis %s is in an error state.", a.Path)
	}
	return Failf("%s", b.String())
}

// checkAnalysesEvaluating waits for the output of the periodic analysis on
// TUR02001 to be evaluated again.
func checkAnalysesEvaluating(c *Context) error {
	ctx, client := c.Context(), c.Client()
	analyses, err := findAnalyses(c, periodicAnalysis)
	if err != nil {
		return err
	}

	var matched []piwebapi.Analysis
	for _, a := range analyses {
		if ok, _ := path.Match(periodicAnalysisPath, strings.ToLower(a.Path)); ok {
			matched = append(matched, a)
		}
	}
	if len(matched) != 1 {
		return Failf("Expected 1 analysis matching %s, but %d were found", periodicAnalysisPath, len(matched))
	}
	analysis := matched[0]

	outputs, err := analysisOutputs(c, &analysis, 1)
	if err != nil {
		return err
	}
	output := outputs[0]

	first, err := client.StreamValue(ctx, output.WebID)
	if err != nil {
		return fmt.Errorf("read output %s: %w", output.Path, err)
	}
	c.Step("Output %s was last evaluated at %s", output.Name, first.Timestamp.Format(time.RFC3339))

	cfg := c.StreamPoll().Describe("Expected analysis %s to evaluate after %s", analysis.Name, first.Timestamp.Format(time.RFC3339))
	_, err = eventually.Poll(ctx, cfg, func() (time.Time, error) {
		v, err := client.StreamValue(ctx, output.WebID)
		if err != nil {
			return time.Time{}, err
		}
		return v.Timestamp, nil
	}, func(ts time.Time) bool { return ts.After(first.Timestamp) })
	return err
}

// checkPeriodicAnalysis verifies that the periodic expression analysis is
// enabled and writes current digital states to both of its outputs.
func checkPeriodicAnalysis(c *Context) error {
	analyses, err := findAnalyses(c, periodicAnalysis)
	if err != nil {
		return err
	}
	analysis := analyses[0]
	if !analysis.Enabled() {
		return Failf("Analysis %s is not enabled (status %s)", analysis.Path, analysis.Status)
	}

	outputs, err := analysisOutputs(c, &analysis, 2)
	if err != nil {
		return err
	}

	since := c.Started().Add(-recentOutput)
	codes := make([]int, 0, 2)
	for _, output := range outputs[:2] {
		v, err := waitForOutput(c, &analysis, output, since)
		if err != nil {
			return err
		}
		_, code, ok := v.DigitalState()
		if !ok {
			return Failf("Incorrect output value type for %s: expected a digital state, got %v", output.Path, v.Value)
		}
		codes = append(codes, code)
	}

	if codes[0] == codes[1] {
		return Failf("First output value %d expected to be less than or greater than second output value %d", codes[0], codes[1])
	}
	return nil
}

// checkRollupAnalysis verifies that the Lost Power rollup on Region 1 is
// evaluating and that its output is the sum of the child elements' values.
func checkRollupAnalysis(c *Context) error {
	ctx, client := c.Context(), c.Client()
	analyses, err := findAnalyses(c, rollupAnalysis)
	if err != nil {
		return err
	}

	var (
		analysis *piwebapi.Analysis
		target   *piwebapi.Object
	)
	for i := range analyses {
		t, err := client.AnalysisTarget(ctx, &analyses[i])
		if err != nil {
			return fmt.Errorf("read target of %s: %w", analyses[i].Path, err)
		}
		if strings.EqualFold(t.Name, rollupTarget) {
			analysis, target = &analyses[i], t
			break
		}
	}
	if analysis == nil {
		return Failf("Failed to find analysis %s with target %s", rollupAnalysis, rollupTarget)
	}
	if !analysis.Enabled() {
		return Failf("Analysis %s is not enabled (status %s)", analysis.Path, analysis.Status)
	}

	outputs, err := analysisOutputs(c, analysis, 1)
	if err != nil {
		return err
	}
	output := outputs[0]

	c.Step("Make sure %s is evaluating", analysis.Path)
	if _, err := waitForOutput(c, analysis, output, c.Now().Add(-recentOutput/2)); err != nil {
		return err
	}

	children, err := client.ChildElements(ctx, target.WebID)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", target.Path, err)
	}
	inputs := make([]string, 0, len(children))
	for _, child := range children {
		attr, err := client.AttributeByPath(ctx, child.Path+"|"+output.Name)
		if piwebapi.IsNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("find input %s|%s: %w", child.Path, output.Name, err)
		}
		inputs = append(inputs, attr.WebID)
	}
	if len(inputs) == 0 {
		return Failf("No child of %s has a %s attribute to roll up", target.Path, output.Name)
	}

	c.Step("Compare %s with the sum of %d inputs", output.Path, len(inputs))
	type totals struct{ expected, received float64 }
	cfg := c.StreamPoll().Describe("Analysis %s did not roll up its inputs", analysis.Name)
	last, err := eventually.Poll(ctx, cfg, func() (totals, error) {
		var t totals
		for _, id := range inputs {
			v, err := client.StreamValue(ctx, id)
			if err != nil {
				return t, err
			}
			f, ok := v.Float()
			if !ok {
				return t, Failf("Rollup input %s is not numeric: %v", id, v.Value)
			}
			t.expected += f
		}
		v, err := client.StreamValue(ctx, output.WebID)
		if err != nil {
			return t, err
		}
		f, ok := v.Float()
		if !ok {
			return t, Failf("Rollup output %s is not numeric: %v", output.Path, v.Value)
		}
		t.expected, t.received = round2(t.expected), round2(f)
		return t, nil
	}, func(t totals) bool { return t.expected == t.received })
	if err != nil {
		c.Log().Info("Rollup mismatch", "expected", last.expected, "received", last.received)
	}
	return err
}

func findAnalyses(c *Context, name string) ([]piwebapi.Analysis, error) {
	db, dbPath, err := databaseWebID(c)
	if err != nil {
		return nil, err
	}
	c.Step("Find analyses named %s", name)
	analyses, err := c.Client().Analyses(c.Context(), db, name)
	if err != nil {
		return nil, fmt.Errorf("list analyses in %s: %w", dbPath, err)
	}
	if len(analyses) == 0 {
		return nil, Failf("Failed to find any analyses with name %s", name)
	}
	return analyses, nil
}

func analysisOutputs(c *Context, a *piwebapi.Analysis, want int) ([]piwebapi.Object, error) {
	outputs, err := c.Client().AnalysisOutputs(c.Context(), a)
	if err != nil {
		return nil, fmt.Errorf("resolve outputs of %s: %w", a.Path, err)
	}
	if len(outputs) < want {
		return nil, Failf("Analysis %s has %d outputs, expected at least %d", a.Path, len(outputs), want)
	}
	return outputs, nil
}

// waitForOutput polls an output until it holds a value evaluated after since.
func waitForOutput(c *Context, a *piwebapi.Analysis, output piwebapi.Object, since time.Time) (*piwebapi.TimedValue, error) {
	cfg := c.StreamPoll().Describe("Output %s of %s has not evaluated since %s", output.Name, a.Name, since.Format(time.RFC3339))
	return eventually.Poll(c.Context(), cfg, func() (*piwebapi.TimedValue, error) {
		return c.Client().StreamValue(c.Context(), output.WebID)
	}, func(v *piwebapi.TimedValue) bool { return v.Timestamp.After(since) })
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
