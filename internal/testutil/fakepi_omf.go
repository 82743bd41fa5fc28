package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type fakeBatchRequest struct {
	Method     string            `json:"Method"`
	Resource   string            `json:"Resource"`
	Content    string            `json:"Content"`
	Parameters []string          `json:"Parameters"`
	ParentIDs  []string          `json:"ParentIds"`
	Headers    map[string]string `json:"Headers"`
}

type fakeBatchResponse struct {
	Status  int               `json:"Status"`
	Headers map[string]string `json:"Headers,omitempty"`
	Content json.RawMessage   `json:"Content,omitempty"`
}

func (f *FakePIWebAPI) handleBatch(w http.ResponseWriter, r *http.Request) {
	var requests map[string]fakeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	ids := make([]string, 0, len(requests))
	for id := range requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	done := make(map[string]fakeBatchResponse, len(requests))
	for len(done) < len(requests) {
		progressed := false
		for _, id := range ids {
			if _, ok := done[id]; ok {
				continue
			}
			req := requests[id]
			ready := true
			for _, parent := range req.ParentIDs {
				if _, ok := done[parent]; !ok {
					ready = false
				}
			}
			if !ready {
				continue
			}
			done[id] = f.dispatchBatch(r, req, done)
			progressed = true
		}
		if !progressed {
			writeErrors(w, http.StatusBadRequest, "Batch request contains a dependency cycle or unknown parent.")
			return
		}
	}

	writeJSON(w, http.StatusMultiStatus, done)
}

func (f *FakePIWebAPI) dispatchBatch(outer *http.Request, req fakeBatchRequest, done map[string]fakeBatchResponse) fakeBatchResponse {
	for _, parent := range req.ParentIDs {
		if s := done[parent].Status; s < 200 || s >= 300 {
			return fakeBatchResponse{Status: http.StatusFailedDependency}
		}
	}

	resource := req.Resource
	for i, param := range req.Parameters {
		value, err := resolveJSONPath(param, done)
		if err != nil {
			body, _ := json.Marshal(map[string][]string{"Errors": {err.Error()}})
			return fakeBatchResponse{Status: http.StatusBadRequest, Content: body}
		}
		resource = strings.ReplaceAll(resource, "{"+strconv.Itoa(i)+"}", value)
	}

	u, err := url.Parse(resource)
	if err != nil {
		return fakeBatchResponse{Status: http.StatusBadRequest}
	}
	target := u.RequestURI()
	if !u.IsAbs() && !strings.HasPrefix(target, "/") {
		target = FakeBasePath + "/" + target
	}

	var body io.Reader
	if req.Content != "" && req.Method != http.MethodGet {
		body = strings.NewReader(req.Content)
	}
	sub := httptest.NewRequest(req.Method, target, body)
	sub.Header = outer.Header.Clone()
	for k, v := range req.Headers {
		sub.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.serve(rec, sub)

	resp := fakeBatchResponse{Status: rec.Code, Headers: map[string]string{}}
	if loc := rec.Header().Get("Location"); loc != "" {
		resp.Headers["Location"] = loc
	}
	if content := bytes.TrimSpace(rec.Body.Bytes()); len(content) > 0 {
		resp.Content = json.RawMessage(content)
	}
	return resp
}

// resolveJSONPath evaluates the $.{id}.Content.Field[.Field] subset used by
// batch parameters.
func resolveJSONPath(expr string, done map[string]fakeBatchResponse) (string, error) {
	parts := strings.Split(strings.TrimPrefix(expr, "$."), ".")
	if len(parts) < 3 || parts[1] != "Content" {
		return "", fmt.Errorf("unsupported parameter %q", expr)
	}
	parent, ok := done[parts[0]]
	if !ok {
		return "", fmt.Errorf("unknown parent in %q", expr)
	}

	var node interface{}
	if err := json.Unmarshal(parent.Content, &node); err != nil {
		return "", fmt.Errorf("parent %s has no JSON content", parts[0])
	}
	for _, key := range parts[2:] {
		name, index := key, -1
		if open := strings.Index(key, "["); open > 0 && strings.HasSuffix(key, "]") {
			name = key[:open]
			index, _ = strconv.Atoi(key[open+1 : len(key)-1])
		}
		m, ok := node.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("cannot resolve %q", expr)
		}
		node = m[name]
		if index >= 0 {
			arr, ok := node.([]interface{})
			if !ok || index >= len(arr) {
				return "", fmt.Errorf("cannot resolve %q", expr)
			}
			node = arr[index]
		}
	}
	s, ok := node.(string)
	if !ok {
		return "", fmt.Errorf("%q is not a string", expr)
	}
	return s, nil
}

type omfTypeMessage struct {
	ID         string                            `json:"id"`
	Properties map[string]map[string]interface{} `json:"properties"`
}

type omfContainerMessage struct {
	ID     string `json:"id"`
	TypeID string `json:"typeid"`
}

type omfDataMessage struct {
	ContainerID string                   `json:"containerid"`
	Values      []map[string]interface{} `json:"values"`
}

func (f *FakePIWebAPI) handleOMF(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	enabled := f.settings.OMF
	f.mu.Unlock()
	if !enabled {
		writeErrors(w, http.StatusNotFound, "OMF is not installed.")
		return
	}

	messageType := r.Header.Get("messagetype")
	action := r.Header.Get("action")
	if r.Header.Get("messageformat") != "json" || r.Header.Get("omfversion") == "" {
		writeErrors(w, http.StatusBadRequest, "Missing or invalid OMF headers.")
		return
	}
	if action != "create" && action != "delete" {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("Unsupported action '%s'.", action))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch messageType {
	case "type":
		var types []omfTypeMessage
		if err := json.Unmarshal(body, &types); err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, t := range types {
			f.omfTypeLocked(t, action)
		}
	case "container":
		var containers []omfContainerMessage
		if err := json.Unmarshal(body, &containers); err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, c := range containers {
			if err := f.omfContainerLocked(c, action); err != nil {
				writeErrors(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	case "data":
		var data []omfDataMessage
		if err := json.Unmarshal(body, &data); err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		if action == "create" {
			for _, d := range data {
				if err := f.omfDataLocked(d); err != nil {
					writeErrors(w, http.StatusBadRequest, err.Error())
					return
				}
			}
		}
	default:
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("Unsupported message type '%s'.", messageType))
		return
	}

	f.seq++
	writeJSON(w, http.StatusAccepted, map[string]string{"OperationId": fmt.Sprintf("omf-operation-%d", f.seq)})
}

func (f *FakePIWebAPI) omfTypeLocked(t omfTypeMessage, action string) {
	db := f.findLocked(KindAssetDatabase, FakeOMFDatabase)
	if action == "delete" {
		if tmpl := f.findLocked(KindTemplate, t.ID); tmpl != nil {
			f.deleteLocked(tmpl.WebID)
		}
		delete(f.omfTypes, t.ID)
		delete(f.omfIndex, t.ID)
		return
	}

	var props []string
	for name, def := range t.Properties {
		if isIndex, _ := def["isindex"].(bool); isIndex {
			f.omfIndex[t.ID] = name
			continue
		}
		props = append(props, name)
	}
	sort.Strings(props)
	f.omfTypes[t.ID] = props
	if f.findLocked(KindTemplate, t.ID) == nil {
		f.add(&FakeObject{Kind: KindTemplate, Name: t.ID, Parent: db.WebID})
	}
}

func (f *FakePIWebAPI) omfContainerLocked(c omfContainerMessage, action string) error {
	da := f.findLocked(KindDataServer, FakeDataArchive)
	if action == "delete" {
		for _, prop := range f.omfTypes[f.omfConts[c.ID]] {
			if p := f.findLocked(KindPoint, c.ID+"."+prop); p != nil {
				f.deleteLocked(p.WebID)
			}
		}
		delete(f.omfConts, c.ID)
		return nil
	}

	props, ok := f.omfTypes[c.TypeID]
	if !ok {
		return fmt.Errorf("type '%s' does not exist", c.TypeID)
	}
	f.omfConts[c.ID] = c.TypeID
	for _, prop := range props {
		if f.findLocked(KindPoint, c.ID+"."+prop) == nil {
			f.add(&FakeObject{Kind: KindPoint, Name: c.ID + "." + prop, Parent: da.WebID, PointClass: "classic", PointType: "Float32"})
		}
	}
	return nil
}

func (f *FakePIWebAPI) omfDataLocked(d omfDataMessage) error {
	typeID, ok := f.omfConts[d.ContainerID]
	if !ok {
		return fmt.Errorf("container '%s' does not exist", d.ContainerID)
	}
	index := f.omfIndex[typeID]
	for _, row := range d.Values {
		ts := time.Now().UTC()
		if s, ok := row[index].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
				ts = parsed
			}
		}
		for _, prop := range f.omfTypes[typeID] {
			value, ok := row[prop]
			if !ok {
				continue
			}
			if p := f.findLocked(KindPoint, d.ContainerID+"."+prop); p != nil {
				p.Values = append(p.Values, FakeValue{Timestamp: ts, Value: value})
			}
		}
	}
	return nil
}
