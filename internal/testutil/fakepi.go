package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Names seeded into every FakePIWebAPI.
const (
	FakeAFServer      = "AF01"
	FakeAFDatabase    = "OSIsoftTests"
	FakeOMFDatabase   = "OMF"
	FakeDataArchive   = "DA01"
	FakeTestPoint     = "OSIsoftTests.Region 0.Wind Farm 00.TUR00000.Random"
	FakeBasePath      = "/piwebapi"
	fakeConfiguration = "system/configuration"
)

// Object kinds held by the fake.
const (
	KindAssetServer   = "assetserver"
	KindAssetDatabase = "assetdatabase"
	KindDataServer    = "dataserver"
	KindElement       = "element"
	KindAttribute     = "attribute"
	KindEventFrame    = "eventframe"
	KindPoint         = "point"
	KindCategory      = "category"
	KindTemplate      = "template"
	KindAnalysis      = "analysis"
)

var resourceKinds = map[string]string{
	"assetservers":      KindAssetServer,
	"assetdatabases":    KindAssetDatabase,
	"dataservers":       KindDataServer,
	"elements":          KindElement,
	"attributes":        KindAttribute,
	"eventframes":       KindEventFrame,
	"points":            KindPoint,
	"elementcategories": KindCategory,
	"elementtemplates":  KindTemplate,
	"analyses":          KindAnalysis,
}

var kindResources = func() map[string]string {
	m := make(map[string]string, len(resourceKinds))
	for r, k := range resourceKinds {
		m[k] = r
	}
	return m
}()

var kindCodes = map[string]string{
	KindAssetServer:   "RS",
	KindAssetDatabase: "RD",
	KindDataServer:    "DS",
	KindElement:       "EM",
	KindAttribute:     "AT",
	KindEventFrame:    "FM",
	KindPoint:         "DP",
	KindCategory:      "EC",
	KindTemplate:      "ET",
	KindAnalysis:      "XS",
}

// FakeSettings controls how the fake behaves.
type FakeSettings struct {
	DisableWrites         bool
	AuthenticationMethods []string
	RequireAuth           bool
	Search                bool
	OMF                   bool
	// Live makes the test point report a fresh value on every read.
	Live bool
	// ReadOnlyPoints names points whose streamset writes are rejected.
	ReadOnlyPoints []string
	// SilentChannels is how many channel connections open without sending
	// a message.
	SilentChannels int
}

// FakeValue is a stored stream value.
type FakeValue struct {
	Timestamp time.Time
	Value     interface{}
}

// FakeObject is an AF or Data Archive object held by the fake.
type FakeObject struct {
	WebID         string
	Kind          string
	Name          string
	Description   string
	Parent        string
	TemplateName  string
	PointClass    string
	PointType     string
	StartTime     string
	CategoryNames []string
	Values        []FakeValue
	Live          bool
	// Source produces live values instead of random numbers. It runs with
	// the fake locked.
	Source func() interface{}

	// Analysis fields. Target is the WebId of the element analysed.
	Target          string
	Status          string
	PlugIn          string
	TimeRule        string
	VariableMapping string
}

// RecordedRequest is a request the fake received.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Header        http.Header
}

// FakePIWebAPI is an in-memory PI Web API served over httptest.
type FakePIWebAPI struct {
	Server *httptest.Server

	mu        sync.Mutex
	settings  FakeSettings
	objects   map[string]*FakeObject
	seq       int
	markers   map[string]fakeMarker
	omfTypes  map[string][]string
	omfIndex  map[string]string
	omfConts  map[string]string
	requests  []RecordedRequest
	imports   map[string][]byte
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
	testPoint string
}

type fakeMarker struct {
	webID string
	seen  int
}

// NewFakePIWebAPI starts a fake seeded with an AF server, database, data
// archive and live test point. It is closed when the test ends.
func NewFakePIWebAPI(t testing.TB) *FakePIWebAPI {
	t.Helper()

	f := &FakePIWebAPI{
		settings: FakeSettings{
			AuthenticationMethods: []string{"Basic"},
			RequireAuth:           true,
			Search:                true,
			OMF:                   true,
			Live:                  true,
		},
		objects:  make(map[string]*FakeObject),
		markers:  make(map[string]fakeMarker),
		omfTypes: make(map[string][]string),
		omfIndex: make(map[string]string),
		omfConts: make(map[string]string),
		imports:  make(map[string][]byte),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	af := f.add(&FakeObject{Kind: KindAssetServer, Name: FakeAFServer})
	f.add(&FakeObject{Kind: KindAssetDatabase, Name: FakeAFDatabase, Parent: af.WebID})
	f.add(&FakeObject{Kind: KindAssetDatabase, Name: FakeOMFDatabase, Parent: af.WebID})
	da := f.add(&FakeObject{Kind: KindDataServer, Name: FakeDataArchive})
	tp := f.add(&FakeObject{Kind: KindPoint, Name: FakeTestPoint, Parent: da.WebID, PointClass: "classic", PointType: "Float64", Live: true})
	f.testPoint = tp.WebID

	f.routes()
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL returns the PI Web API home page URL.
func (f *FakePIWebAPI) BaseURL() string {
	return f.Server.URL + FakeBasePath
}

// Configure changes the fake's settings.
func (f *FakePIWebAPI) Configure(fn func(*FakeSettings)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.settings)
}

// TestPointWebID returns the WebId of the live test point.
func (f *FakePIWebAPI) TestPointWebID() string {
	return f.testPoint
}

// Requests returns a copy of the received requests.
func (f *FakePIWebAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Count returns the number of objects of a kind.
func (f *FakePIWebAPI) Count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.objects {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Find returns a copy of the object of kind with the given name.
func (f *FakePIWebAPI) Find(kind, name string) (FakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.objects {
		if o.Kind == kind && strings.EqualFold(o.Name, name) {
			return *o, true
		}
	}
	return FakeObject{}, false
}

// AddPoint creates a point on the data archive and returns its WebId.
func (f *FakePIWebAPI) AddPoint(name string, values ...FakeValue) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	da := f.findLocked(KindDataServer, FakeDataArchive)
	o := f.add(&FakeObject{Kind: KindPoint, Name: name, Parent: da.WebID, PointClass: "classic", PointType: "Float32", Values: values})
	return o.WebID
}

func (f *FakePIWebAPI) findLocked(kind, name string) *FakeObject {
	for _, o := range f.objects {
		if o.Kind == kind && strings.EqualFold(o.Name, name) {
			return o
		}
	}
	return nil
}

func (f *FakePIWebAPI) add(o *FakeObject) *FakeObject {
	f.seq++
	o.WebID = fmt.Sprintf("F1%s%06d", kindCodes[o.Kind], f.seq)
	f.objects[o.WebID] = o
	return o
}

func (f *FakePIWebAPI) pathOf(o *FakeObject) string {
	parent := f.objects[o.Parent]
	switch o.Kind {
	case KindAssetServer:
		return `\\` + o.Name
	case KindDataServer:
		return `\\PIServers[` + o.Name + `]`
	case KindPoint:
		return `\\` + parent.Name + `\` + o.Name
	case KindAttribute:
		return f.pathOf(parent) + `|` + o.Name
	case KindEventFrame:
		return f.pathOf(parent) + `\EventFrames[` + o.Name + `]`
	case KindCategory:
		return f.pathOf(parent) + `\ElementCategories[` + o.Name + `]`
	case KindTemplate:
		return f.pathOf(parent) + `\ElementTemplates[` + o.Name + `]`
	case KindAnalysis:
		if target := f.objects[o.Target]; target != nil {
			return f.pathOf(target) + `\Analyses[` + o.Name + `]`
		}
		return f.pathOf(parent) + `\Analyses[` + o.Name + `]`
	default:
		return f.pathOf(parent) + `\` + o.Name
	}
}

func (f *FakePIWebAPI) location(o *FakeObject) string {
	return f.BaseURL() + "/" + kindResources[o.Kind] + "/" + o.WebID
}

func (f *FakePIWebAPI) render(o *FakeObject) map[string]interface{} {
	out := map[string]interface{}{
		"WebId": o.WebID,
		"Id":    o.WebID,
		"Name":  o.Name,
		"Path":  f.pathOf(o),
		"Links": map[string]string{"Self": f.location(o)},
	}
	if o.Description != "" {
		out["Description"] = o.Description
	}
	if o.TemplateName != "" {
		out["TemplateName"] = o.TemplateName
	}
	if o.PointClass != "" {
		out["PointClass"] = o.PointClass
		out["PointType"] = o.PointType
	}
	if o.StartTime != "" {
		out["StartTime"] = o.StartTime
	}
	if len(o.CategoryNames) > 0 {
		out["CategoryNames"] = o.CategoryNames
	}
	if o.Kind == KindAnalysis {
		f.renderAnalysis(o, out)
	}
	return out
}

func (f *FakePIWebAPI) deleteLocked(webID string) {
	delete(f.objects, webID)
	for id, o := range f.objects {
		if o.Parent == webID {
			f.deleteLocked(id)
		}
	}
}

func (f *FakePIWebAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Header:        r.Header.Clone(),
	})
	settings := f.settings
	f.mu.Unlock()

	if settings.RequireAuth && r.Header.Get("Authorization") == "" {
		writeErrors(w, http.StatusUnauthorized, "Authorization has been denied for this request.")
		return
	}
	if r.Method != http.MethodGet && r.Header.Get("X-Requested-With") == "" {
		writeErrors(w, http.StatusBadRequest, "Missing X-Requested-With header.")
		return
	}
	if settings.DisableWrites && r.Method != http.MethodGet && r.URL.Path != FakeBasePath+"/batch" {
		writeErrors(w, http.StatusForbidden, "Write actions are disabled by configuration.")
		return
	}
	f.mux.ServeHTTP(w, r)
}

func (f *FakePIWebAPI) routes() {
	mux := http.NewServeMux()
	b := FakeBasePath
	mux.HandleFunc("GET "+b, f.handleHome)
	mux.HandleFunc("GET "+b+"/"+fakeConfiguration, f.handleConfiguration)
	mux.HandleFunc("GET "+b+"/system/instanceconfiguration", f.handleInstanceConfiguration)
	mux.HandleFunc("GET "+b+"/search/query", f.handleSearch)
	mux.HandleFunc("POST "+b+"/batch", f.handleBatch)
	mux.HandleFunc("POST "+b+"/omf", f.handleOMF)
	mux.HandleFunc("POST "+b+"/streamsets/recorded", f.handleStreamSetRecorded)
	mux.HandleFunc("POST "+b+"/assetdatabases/{webId}/import", f.handleImport)
	mux.HandleFunc("GET "+b+"/analysisrules/{webId}", f.handleAnalysisRule)
	mux.HandleFunc("GET "+b+"/{resource}", f.handleByPath)
	mux.HandleFunc("GET "+b+"/{resource}/{webId}", f.handleGet)
	mux.HandleFunc("PATCH "+b+"/{resource}/{webId}", f.handlePatch)
	mux.HandleFunc("DELETE "+b+"/{resource}/{webId}", f.handleDelete)
	mux.HandleFunc("GET "+b+"/{resource}/{webId}/{collection}", f.handleList)
	mux.HandleFunc("POST "+b+"/{resource}/{webId}/{collection}", f.handleCreate)
	mux.HandleFunc("PUT "+b+"/attributes/{webId}/value", f.handleSetAttributeValue)
	mux.HandleFunc("GET "+b+"/streams/{a}/{b}", f.handleStreamGet)
	mux.HandleFunc("POST "+b+"/streams/{webId}/{op}", f.handleStreamPost)
	f.mux = mux
}

func (f *FakePIWebAPI) handleHome(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	settings := f.settings
	f.mu.Unlock()

	base := f.BaseURL()
	links := map[string]string{
		"Self":         base,
		"AssetServers": base + "/assetservers",
		"DataServers":  base + "/dataservers",
		"System":       base + "/system",
	}
	if settings.Search {
		links["Search"] = base + "/search"
	}
	if settings.OMF {
		links["Omf"] = base + "/omf"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"Links": links})
}

func (f *FakePIWebAPI) handleConfiguration(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	settings := f.settings
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"DisableWrites":         settings.DisableWrites,
		"AuthenticationMethods": settings.AuthenticationMethods,
		"CorsOrigins":           "*",
	})
}

func (f *FakePIWebAPI) handleInstanceConfiguration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"OmfAssetServerName":   FakeAFServer,
		"OmfAssetDatabaseName": FakeOMFDatabase,
		"OmfDataArchiveName":   FakeDataArchive,
	})
}

func (f *FakePIWebAPI) handleByPath(w http.ResponseWriter, r *http.Request) {
	kind, ok := resourceKinds[r.PathValue("resource")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "Unknown resource.")
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		writeErrors(w, http.StatusBadRequest, "The 'path' parameter is required.")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.objects {
		if o.Kind == kind && strings.EqualFold(f.pathOf(o), p) {
			writeJSON(w, http.StatusOK, f.render(o))
			return
		}
	}
	writeErrors(w, http.StatusNotFound, fmt.Sprintf("The specified path '%s' was not found.", p))
}

func (f *FakePIWebAPI) lookup(w http.ResponseWriter, r *http.Request) *FakeObject {
	kind, ok := resourceKinds[r.PathValue("resource")]
	o := f.objects[r.PathValue("webId")]
	if !ok || o == nil || o.Kind != kind {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return nil
	}
	return o
}

func (f *FakePIWebAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.lookup(w, r); o != nil {
		writeJSON(w, http.StatusOK, f.render(o))
	}
}

func (f *FakePIWebAPI) handlePatch(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.lookup(w, r)
	if o == nil {
		return
	}
	if name, ok := body["Name"].(string); ok && name != "" {
		o.Name = name
	}
	if desc, ok := body["Description"].(string); ok {
		o.Description = desc
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakePIWebAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.lookup(w, r); o != nil {
		f.deleteLocked(o.WebID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *FakePIWebAPI) handleList(w http.ResponseWriter, r *http.Request) {
	childKind, ok := resourceKinds[r.PathValue("collection")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "Unknown collection.")
		return
	}
	filter := strings.ToLower(r.URL.Query().Get("nameFilter"))
	maxCount, _ := strconv.Atoi(r.URL.Query().Get("maxCount"))

	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.lookup(w, r)
	if parent == nil {
		return
	}

	var children []*FakeObject
	for _, o := range f.objects {
		if o.Parent != parent.WebID || o.Kind != childKind {
			continue
		}
		if filter != "" {
			if matched, _ := path.Match(filter, strings.ToLower(o.Name)); !matched {
				continue
			}
		}
		children = append(children, o)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].WebID < children[j].WebID })
	if maxCount > 0 && len(children) > maxCount {
		children = children[:maxCount]
	}

	items := make([]map[string]interface{}, 0, len(children))
	for _, o := range children {
		items = append(items, f.render(o))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"Items": items})
}

func (f *FakePIWebAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	childKind, ok := resourceKinds[r.PathValue("collection")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "Unknown collection.")
		return
	}
	var spec struct {
		Name          string   `json:"Name"`
		Description   string   `json:"Description"`
		TemplateName  string   `json:"TemplateName"`
		PointClass    string   `json:"PointClass"`
		PointType     string   `json:"PointType"`
		StartTime     string   `json:"StartTime"`
		CategoryNames []string `json:"CategoryNames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}
	if spec.Name == "" {
		writeErrors(w, http.StatusBadRequest, "The 'Name' property is required.")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.lookup(w, r)
	if parent == nil {
		return
	}
	for _, o := range f.objects {
		if o.Parent == parent.WebID && o.Kind == childKind && strings.EqualFold(o.Name, spec.Name) {
			writeErrors(w, http.StatusConflict, fmt.Sprintf("An object named '%s' already exists.", spec.Name))
			return
		}
	}
	if childKind == KindPoint && spec.PointClass == "" {
		spec.PointClass = "classic"
	}
	if childKind == KindPoint && spec.PointType == "" {
		spec.PointType = "Float32"
	}

	o := f.add(&FakeObject{
		Kind:          childKind,
		Name:          spec.Name,
		Description:   spec.Description,
		Parent:        parent.WebID,
		TemplateName:  spec.TemplateName,
		PointClass:    spec.PointClass,
		PointType:     spec.PointType,
		StartTime:     spec.StartTime,
		CategoryNames: spec.CategoryNames,
	})
	w.Header().Set("Location", f.location(o))
	w.WriteHeader(http.StatusCreated)
}

func (f *FakePIWebAPI) snapshot(o *FakeObject, live bool) FakeValue {
	if o.Live && live {
		v := FakeValue{Timestamp: time.Now().UTC(), Value: rand.Float64() * 100} //nolint:gosec // test data
		if o.Source != nil {
			v.Value = o.Source()
		}
		o.Values = append(o.Values, v)
		return v
	}
	if len(o.Values) == 0 {
		return FakeValue{Timestamp: time.Unix(0, 0).UTC(), Value: map[string]interface{}{"Name": "Pt Created", "Value": 247}}
	}
	return o.Values[len(o.Values)-1]
}

func renderValue(v FakeValue) map[string]interface{} {
	return map[string]interface{}{
		"Timestamp": v.Timestamp.UTC().Format(time.RFC3339Nano),
		"Value":     v.Value,
		"Good":      true,
	}
}

func (f *FakePIWebAPI) handleStreamGet(w http.ResponseWriter, r *http.Request) {
	a, op := r.PathValue("a"), r.PathValue("b")
	if a == "updates" {
		f.handleUpdates(w, op)
		return
	}
	if op == "channel" {
		f.handleChannel(w, r, a)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[a]
	if o == nil || (o.Kind != KindPoint && o.Kind != KindAttribute) {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}

	switch op {
	case "value":
		writeJSON(w, http.StatusOK, renderValue(f.snapshot(o, f.settings.Live)))
	case "recorded":
		maxCount, _ := strconv.Atoi(r.URL.Query().Get("maxCount"))
		values := o.Values
		if maxCount > 0 && len(values) > maxCount {
			values = values[:maxCount]
		}
		items := make([]map[string]interface{}, 0, len(values))
		for _, v := range values {
			items = append(items, renderValue(v))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"Items": items})
	default:
		writeErrors(w, http.StatusNotFound, "Unknown stream operation.")
	}
}

func (f *FakePIWebAPI) handleUpdates(w http.ResponseWriter, marker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markers[marker]
	if !ok {
		writeErrors(w, http.StatusNotFound, "The marker is not valid or has expired.")
		return
	}
	o := f.objects[m.webID]
	if o == nil {
		writeErrors(w, http.StatusNotFound, "The stream no longer exists.")
		return
	}
	if o.Live && f.settings.Live {
		f.snapshot(o, true)
	}

	events := make([]map[string]interface{}, 0)
	for _, v := range o.Values[m.seen:] {
		e := renderValue(v)
		e["Action"] = "Add"
		events = append(events, e)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"Source":       m.webID,
		"Status":       "Succeeded",
		"LatestMarker": marker,
		"Events":       events,
	})
}

func (f *FakePIWebAPI) handleStreamPost(w http.ResponseWriter, r *http.Request) {
	webID, op := r.PathValue("webId"), r.PathValue("op")

	var values []FakeValue
	switch op {
	case "value":
		v, err := decodeValue(r)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		values = append(values, v)
	case "recorded":
		var raw []map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, item := range raw {
			values = append(values, toFakeValue(item))
		}
	case "updates":
	default:
		writeErrors(w, http.StatusNotFound, "Unknown stream operation.")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[webID]
	if o == nil {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}

	if op == "updates" {
		f.seq++
		marker := fmt.Sprintf("marker-%d", f.seq)
		f.markers[marker] = fakeMarker{webID: webID, seen: len(o.Values)}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"Source":       webID,
			"Status":       "Succeeded",
			"LatestMarker": marker,
		})
		return
	}

	o.Values = append(o.Values, values...)
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakePIWebAPI) handleSetAttributeValue(w http.ResponseWriter, r *http.Request) {
	v, err := decodeValue(r)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[r.PathValue("webId")]
	if o == nil || o.Kind != KindAttribute {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}
	o.Values = append(o.Values, v)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakePIWebAPI) handleStreamSetRecorded(w http.ResponseWriter, r *http.Request) {
	var sets []struct {
		WebID string                   `json:"WebId"`
		Items []map[string]interface{} `json:"Items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&sets); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]map[string]interface{}, 0, len(sets))
	rejected := false
	for _, s := range sets {
		o := f.objects[s.WebID]
		if o == nil {
			writeErrors(w, http.StatusNotFound, fmt.Sprintf("Unknown WebID '%s'.", s.WebID))
			return
		}
		if slices.Contains(f.settings.ReadOnlyPoints, o.Name) {
			rejected = true
			results = append(results, map[string]interface{}{
				"WebId":     s.WebID,
				"Substatus": http.StatusForbidden,
				"Errors":    []string{"Point is not writable"},
			})
			continue
		}
		for _, item := range s.Items {
			o.Values = append(o.Values, toFakeValue(item))
		}
		results = append(results, map[string]interface{}{"WebId": s.WebID, "Substatus": http.StatusAccepted})
	}
	if rejected {
		writeJSON(w, http.StatusMultiStatus, map[string]interface{}{"Items": results})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakePIWebAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "xml") {
		writeErrors(w, http.StatusUnsupportedMediaType, "The import expects an XML document.")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[r.PathValue("webId")]
	if o == nil || o.Kind != KindAssetDatabase {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}
	f.imports[o.Name] = body
	w.WriteHeader(http.StatusNoContent)
}

// Imported returns the XML imported into the named database.
func (f *FakePIWebAPI) Imported(database string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.imports[database]
	return data, ok
}

func (f *FakePIWebAPI) handleChannel(w http.ResponseWriter, r *http.Request, webID string) {
	f.mu.Lock()
	o := f.objects[webID]
	var v FakeValue
	var name string
	silent := false
	if o != nil {
		v = f.snapshot(o, f.settings.Live)
		name = o.Name
		if f.settings.SilentChannels > 0 {
			f.settings.SilentChannels--
			silent = true
		}
	}
	f.mu.Unlock()

	if o == nil {
		writeErrors(w, http.StatusNotFound, "Unknown or invalid WebID format.")
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if silent {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	msg := map[string]interface{}{
		"Items": []map[string]interface{}{{
			"WebId": webID,
			"Name":  name,
			"Items": []map[string]interface{}{renderValue(v)},
		}},
	}
	if err := conn.WriteJSON(msg); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *FakePIWebAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settings.Search {
		writeErrors(w, http.StatusNotFound, "Indexed search is not installed.")
		return
	}

	term := r.URL.Query().Get("q")
	term = strings.TrimPrefix(term, "name:")
	term = strings.ToLower(strings.Trim(term, `*"' `))
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))

	var hits []*FakeObject
	for _, o := range f.objects {
		if term == "" || strings.Contains(strings.ToLower(o.Name), term) {
			hits = append(hits, o)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].WebID < hits[j].WebID })
	total := len(hits)
	if count > 0 && len(hits) > count {
		hits = hits[:count]
	}

	items := make([]map[string]string, 0, len(hits))
	for _, o := range hits {
		items = append(items, map[string]string{"Name": o.Name, "ItemType": o.Kind, "WebId": o.WebID})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"TotalHits": total, "Items": items})
}

func decodeValue(r *http.Request) (FakeValue, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return FakeValue{}, err
	}
	return toFakeValue(raw), nil
}

func toFakeValue(raw map[string]interface{}) FakeValue {
	v := FakeValue{Timestamp: time.Now().UTC(), Value: raw["Value"]}
	if ts, ok := raw["Timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			v.Timestamp = t.UTC()
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	writeJSON(w, status, map[string][]string{"Errors": msgs})
}
