package checks

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/testutil"
)

func TestNoErrorAnalyses_ReportsErrorStatus(t *testing.T) {
	fake, deps := newFakeDeps(t)
	target := fake.AddElement("", "Broken Turbine")
	fake.AddAnalysis(testutil.FakeAnalysis{Name: "Broken Calc", Target: target, Status: "Error"})

	err := runCheck(t, deps, "no-error-analyses")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "Found 1 analyses in database "+testutil.FakeAFDatabase+" in error status.")
	assert.Contains(t, err.Error(), `\Broken Turbine\Analyses[Broken Calc] is in an error state`)
}

func TestNoErrorAnalyses_CapsListing(t *testing.T) {
	fake, deps := newFakeDeps(t)
	target := fake.AddElement("", "Broken Turbine")
	for i := range 12 {
		fake.AddAnalysis(testutil.FakeAnalysis{Name: fmt.Sprintf("Broken Calc %02d", i), Target: target, Status: "Error"})
	}

	err := runCheck(t, deps, "no-error-analyses")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "Printed 10 analyses out of 12.")
	assert.NotContains(t, err.Error(), "Broken Calc 11")
}

func TestPeriodicAnalysis_Disabled(t *testing.T) {
	fake, deps := newFakeDeps(t)
	fake.SetAnalysisStatus(testutil.FakePeriodicAnalysis, "Disabled")

	err := runCheck(t, deps, "periodic-analysis")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "is not enabled (status Disabled)")
}

func TestPeriodicAnalysis_OutputsAgree(t *testing.T) {
	fake, deps := newFakeDeps(t)
	calc, ok := fake.Find(testutil.KindAttribute, "Digital Calc 2")
	require.True(t, ok)
	fake.SetSource(calc.WebID, func() interface{} { return map[string]interface{}{"Name": "Off", "Value": 0} })

	err := runCheck(t, deps, "periodic-analysis")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "First output value 0 expected to be less than or greater than second output value 0")
}

func TestPeriodicAnalysis_NotDigital(t *testing.T) {
	fake, deps := newFakeDeps(t)
	calc, ok := fake.Find(testutil.KindAttribute, "Digital Calc 1")
	require.True(t, ok)
	fake.SetSource(calc.WebID, func() interface{} { return 3.5 })

	err := runCheck(t, deps, "periodic-analysis")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "Incorrect output value type")
}

func TestRollupAnalysis_MissingInput(t *testing.T) {
	fake, deps := newFakeDeps(t)
	region, ok := fake.Find(testutil.KindElement, testutil.FakeRollupTarget)
	require.True(t, ok)
	// the rollup output only sums the farms it was configured with
	farm := fake.AddElement(region.WebID, "Wind Farm 04")
	fake.AddAttribute(farm, testutil.FakeRollupAnalysis, testutil.FakeValue{Value: 3.0})
	deps.Polling.StreamTimeout = 200 * time.Millisecond

	err := runCheck(t, deps, "rollup-analysis")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "did not roll up its inputs")
}

func TestRollupAnalysis_Disabled(t *testing.T) {
	fake, deps := newFakeDeps(t)
	fake.SetAnalysisStatus(testutil.FakeRollupAnalysis, "Disabled")

	err := runCheck(t, deps, "rollup-analysis")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "is not enabled")
}

func TestAnalysisChecks_SkipWithoutAnalysisService(t *testing.T) {
	_, deps := newFakeDeps(t)
	deps.PI.AnalysisService = ""

	for _, check := range Default().All() {
		if check.Suite != SuiteAnalysis {
			continue
		}
		err := runCheck(t, deps, check.ID)
		assert.Equal(t, models.StatusSkip, Classify(err), check.ID)
		assert.Contains(t, err.Error(), "PIAnalysisService", check.ID)
	}
}
