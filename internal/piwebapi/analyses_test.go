package piwebapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/testutil"
)

func TestAnalysisRule_Variables(t *testing.T) {
	rule := AnalysisRule{VariableMapping: "Output1||{3E1C2B4A-0000-0000-0000-000000000001};Unbound||; Output2 || |Lost Power ;junk"}

	assert.Equal(t, []MappedVariable{
		{Name: "Output1", Attribute: "{3E1C2B4A-0000-0000-0000-000000000001}"},
		{Name: "Output2", Attribute: "Lost Power"},
	}, rule.Variables())
	assert.Empty(t, AnalysisRule{}.Variables())
}

func TestAnalysis_Status(t *testing.T) {
	assert.True(t, Analysis{Status: "Enabled"}.Enabled())
	assert.True(t, Analysis{Status: "error"}.InError())
	assert.False(t, Analysis{Status: "Disabled"}.Enabled())
	assert.False(t, Analysis{Status: "Disabled"}.InError())
}

func TestMatchAttribute(t *testing.T) {
	attrs := []Object{{ID: "{ABC}", Name: "Digital Calc 1"}, {ID: "DEF", Name: "Lost Power"}}

	a, ok := matchAttribute(attrs, "abc")
	require.True(t, ok)
	assert.Equal(t, "Digital Calc 1", a.Name)

	a, ok = matchAttribute(attrs, "{DEF}")
	require.True(t, ok)
	assert.Equal(t, "Lost Power", a.Name)

	a, ok = matchAttribute(attrs, "lost power")
	require.True(t, ok)
	assert.Equal(t, "DEF", a.ID)

	_, ok = matchAttribute(attrs, "Missing")
	assert.False(t, ok)
}

func TestClient_Analyses(t *testing.T) {
	client, fake := newTestClient(t)
	fake.SeedAnalyses()
	ctx := context.Background()

	db, err := client.AssetDatabaseByPath(ctx, AssetDatabasePath(testutil.FakeAFServer, testutil.FakeAFDatabase))
	require.NoError(t, err)

	all, err := client.Analyses(ctx, db.WebID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	periodic, err := client.Analyses(ctx, db.WebID, testutil.FakePeriodicAnalysis)
	require.NoError(t, err)
	require.Len(t, periodic, 1)
	analysis := periodic[0]
	assert.True(t, analysis.Enabled())
	assert.Equal(t, "PerformanceEquation", analysis.AnalysisRulePlugInName)
	assert.Contains(t, analysis.Path, `\Wind Farm 02\TUR02001\Analyses[`+testutil.FakePeriodicAnalysis+`]`)

	rule, err := client.AnalysisRule(ctx, &analysis)
	require.NoError(t, err)
	assert.Len(t, rule.Variables(), 2)

	target, err := client.AnalysisTarget(ctx, &analysis)
	require.NoError(t, err)
	assert.Equal(t, testutil.FakePeriodicElement, target.Name)

	outputs, err := client.AnalysisOutputs(ctx, &analysis)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "Digital Calc 1", outputs[0].Name)
	assert.Equal(t, "Digital Calc 2", outputs[1].Name)

	v, err := client.StreamValue(ctx, outputs[1].WebID)
	require.NoError(t, err)
	name, code, ok := v.DigitalState()
	require.True(t, ok)
	assert.Equal(t, "On", name)
	assert.Equal(t, 1, code)
}

func TestClient_AnalysisOutputsByName(t *testing.T) {
	client, fake := newTestClient(t)
	fake.SeedAnalyses()
	ctx := context.Background()

	db, err := client.AssetDatabaseByPath(ctx, AssetDatabasePath(testutil.FakeAFServer, testutil.FakeAFDatabase))
	require.NoError(t, err)
	rollups, err := client.Analyses(ctx, db.WebID, testutil.FakeRollupAnalysis)
	require.NoError(t, err)
	require.Len(t, rollups, 2)

	for _, a := range rollups {
		outputs, err := client.AnalysisOutputs(ctx, &a)
		require.NoError(t, err)
		require.Len(t, outputs, 1)
		assert.Equal(t, testutil.FakeRollupAnalysis, outputs[0].Name)
	}

	region, ok := fake.Find(testutil.KindElement, testutil.FakeRollupTarget)
	require.True(t, ok)
	children, err := client.ChildElements(ctx, region.WebID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestClient_AnalysisWithoutLinks(t *testing.T) {
	client, _ := newTestClient(t)
	a := &Analysis{Name: "Orphan"}

	_, err := client.AnalysisRule(context.Background(), a)
	assert.ErrorIs(t, err, ErrNoAnalysisLink)
	_, err = client.AnalysisTarget(context.Background(), a)
	assert.ErrorIs(t, err, ErrNoAnalysisLink)
	_, err = client.AnalysisOutputs(context.Background(), a)
	assert.ErrorIs(t, err, ErrNoAnalysisLink)
}

func TestTimedValue_DigitalState(t *testing.T) {
	name, code, ok := TimedValue{Value: map[string]interface{}{"Name": "Pt Created", "Value": float64(247)}}.DigitalState()
	require.True(t, ok)
	assert.Equal(t, "Pt Created", name)
	assert.Equal(t, 247, code)

	_, _, ok = TimedValue{Value: 3.5}.DigitalState()
	assert.False(t, ok)
	_, _, ok = TimedValue{Value: map[string]interface{}{"Name": "Bad"}}.DigitalState()
	assert.False(t, ok)
}
