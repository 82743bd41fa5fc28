package testutil

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Analyses seeded by SeedAnalyses.
const (
	FakePeriodicAnalysis = "Demo Data - Digital Calcs"
	FakePeriodicElement  = "TUR02001"
	FakeRollupAnalysis   = "Lost Power"
	FakeRollupTarget     = "Region 1"
)

// FakeAnalysis describes an analysis added with AddAnalysis.
type FakeAnalysis struct {
	Name string
	// Target is the WebId of the element the analysis runs against.
	Target   string
	Status   string
	PlugIn   string
	TimeRule string
	// Outputs are attribute ids or names bound in the variable mapping.
	Outputs []string
}

// AddElement creates an element under parent, or at the root of the test
// database when parent is empty, and returns its WebId.
func (f *FakePIWebAPI) AddElement(parent, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if parent == "" {
		parent = f.findLocked(KindAssetDatabase, FakeAFDatabase).WebID
	}
	return f.add(&FakeObject{Kind: KindElement, Name: name, Parent: parent}).WebID
}

// AddAttribute creates an attribute on an element and returns its WebId.
func (f *FakePIWebAPI) AddAttribute(element, name string, values ...FakeValue) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(&FakeObject{Kind: KindAttribute, Name: name, Parent: element, Values: values}).WebID
}

// SetSource makes the object report a fresh value from source on every
// read.
func (f *FakePIWebAPI) SetSource(webID string, source func() interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[webID]
	o.Live = true
	o.Source = source
}

// AddAnalysis creates an analysis in the test database and returns its WebId.
func (f *FakePIWebAPI) AddAnalysis(a FakeAnalysis) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	mapping := make([]string, 0, len(a.Outputs))
	for i, out := range a.Outputs {
		mapping = append(mapping, "Output"+strconv.Itoa(i+1)+"||"+out)
	}
	if a.Status == "" {
		a.Status = "Enabled"
	}
	db := f.findLocked(KindAssetDatabase, FakeAFDatabase)
	return f.add(&FakeObject{
		Kind:            KindAnalysis,
		Name:            a.Name,
		Parent:          db.WebID,
		Target:          a.Target,
		Status:          a.Status,
		PlugIn:          a.PlugIn,
		TimeRule:        a.TimeRule,
		VariableMapping: strings.Join(mapping, ";"),
	}).WebID
}

// SetAnalysisStatus changes the status of every analysis named name.
func (f *FakePIWebAPI) SetAnalysisStatus(name, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.objects {
		if o.Kind == KindAnalysis && strings.EqualFold(o.Name, name) {
			o.Status = status
		}
	}
}

// SeedAnalyses adds the wind farm elements and analyses the analysis checks
// look for: a periodic expression with two digital outputs on
// Region 1\Wind Farm 02\TUR02001 and a Lost Power rollup on every region.
func (f *FakePIWebAPI) SeedAnalyses() {
	region0 := f.AddElement("", "Region 0")
	region1 := f.AddElement("", FakeRollupTarget)
	farm2 := f.AddElement(region1, "Wind Farm 02")
	farm3 := f.AddElement(region1, "Wind Farm 03")
	turbine := f.AddElement(farm2, FakePeriodicElement)

	calc1 := f.AddAttribute(turbine, "Digital Calc 1")
	calc2 := f.AddAttribute(turbine, "Digital Calc 2")
	f.SetSource(calc1, func() interface{} { return digitalState("Off", 0) })
	f.SetSource(calc2, func() interface{} { return digitalState("On", 1) })
	f.AddAnalysis(FakeAnalysis{
		Name:     FakePeriodicAnalysis,
		Target:   turbine,
		PlugIn:   "PerformanceEquation",
		TimeRule: "Periodic",
		Outputs:  []string{calc1, calc2},
	})

	f.AddAttribute(region0, FakeRollupAnalysis, FakeValue{Value: 0.0})
	f.AddAnalysis(FakeAnalysis{Name: FakeRollupAnalysis, Target: region0, PlugIn: "Rollup", TimeRule: "Periodic", Outputs: []string{FakeRollupAnalysis}})

	inputs := []string{
		f.AddAttribute(farm2, FakeRollupAnalysis, FakeValue{Value: 12.5}),
		f.AddAttribute(farm3, FakeRollupAnalysis, FakeValue{Value: 7.25}),
	}
	total := f.AddAttribute(region1, FakeRollupAnalysis)
	f.SetSource(total, func() interface{} {
		sum := 0.0
		for _, id := range inputs {
			if in := f.objects[id]; in != nil && len(in.Values) > 0 {
				if v, ok := in.Values[len(in.Values)-1].Value.(float64); ok {
					sum += v
				}
			}
		}
		return math.Round(sum*100) / 100
	})
	f.AddAnalysis(FakeAnalysis{Name: FakeRollupAnalysis, Target: region1, PlugIn: "Rollup", TimeRule: "Periodic", Outputs: []string{FakeRollupAnalysis}})
}

func digitalState(name string, code int) map[string]interface{} {
	return map[string]interface{}{"Name": name, "Value": code, "IsSystem": false}
}

func (f *FakePIWebAPI) renderAnalysis(o *FakeObject, out map[string]interface{}) {
	out["Status"] = o.Status
	out["AnalysisRulePlugInName"] = o.PlugIn
	out["TimeRulePlugInName"] = o.TimeRule
	links := out["Links"].(map[string]string)
	links["AnalysisRule"] = f.BaseURL() + "/analysisrules/" + analysisRuleWebID(o.WebID)
	if target := f.objects[o.Target]; target != nil {
		links["Target"] = f.location(target)
	}
}

func analysisRuleWebID(analysis string) string {
	return "F1AR" + strings.TrimPrefix(analysis, "F1"+kindCodes[KindAnalysis])
}

func (f *FakePIWebAPI) handleAnalysisRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("webId")
	analysis := "F1" + kindCodes[KindAnalysis] + strings.TrimPrefix(id, "F1AR")

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[analysis]
	if o == nil || o.Kind != KindAnalysis || !strings.HasPrefix(id, "F1AR") {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"WebId":           id,
		"Name":            o.Name,
		"PlugInName":      o.PlugIn,
		"VariableMapping": o.VariableMapping,
	})
}
