package piwebapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Links is the hypermedia section of a PI Web API object.
type Links map[string]string

// Home is the PI Web API landing page.
type Home struct {
	Links Links `json:"Links"`
}

// HasLink reports whether the home page advertises an endpoint, e.g. "Omf".
func (h *Home) HasLink(name string) bool {
	return h != nil && h.Links[name] != ""
}

// SystemConfiguration holds the settings returned by system/configuration.
type SystemConfiguration map[string]interface{}

// DisableWrites reports whether PI Web API rejects write requests.
func (s SystemConfiguration) DisableWrites() bool {
	switch v := s["DisableWrites"].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// AuthenticationMethods lists the enabled methods in priority order.
func (s SystemConfiguration) AuthenticationMethods() []string {
	raw, ok := s["AuthenticationMethods"].([]interface{})
	if !ok {
		return nil
	}
	methods := make([]string, 0, len(raw))
	for _, m := range raw {
		if str, ok := m.(string); ok {
			methods = append(methods, str)
		}
	}
	return methods
}

// AllowsAnonymous reports whether the first authentication method is Anonymous.
func (s SystemConfiguration) AllowsAnonymous() bool {
	methods := s.AuthenticationMethods()
	return len(methods) > 0 && strings.EqualFold(methods[0], "Anonymous")
}

// InstanceConfiguration describes where OMF writes its objects.
type InstanceConfiguration struct {
	OmfAssetServerName   string `json:"OmfAssetServerName"`
	OmfAssetDatabaseName string `json:"OmfAssetDatabaseName"`
	OmfDataArchiveName   string `json:"OmfDataArchiveName"`
}

// Object is the common shape of AF and Data Archive objects.
type Object struct {
	WebID        string   `json:"WebId"`
	ID           string   `json:"Id,omitempty"`
	Name         string   `json:"Name"`
	Description  string   `json:"Description,omitempty"`
	Path         string   `json:"Path,omitempty"`
	TemplateName string   `json:"TemplateName,omitempty"`
	PointClass   string   `json:"PointClass,omitempty"`
	PointType    string   `json:"PointType,omitempty"`
	StartTime    string   `json:"StartTime,omitempty"`
	EndTime      string   `json:"EndTime,omitempty"`
	HasChildren  bool     `json:"HasChildren,omitempty"`
	Categories   []string `json:"CategoryNames,omitempty"`
	Links        Links    `json:"Links,omitempty"`
}

// Items is a collection response.
type Items[T any] struct {
	Items []T `json:"Items"`
}

// ObjectSpec is the body of a create or update request.
type ObjectSpec struct {
	Name                 string   `json:"Name,omitempty"`
	Description          string   `json:"Description,omitempty"`
	TemplateName         string   `json:"TemplateName,omitempty"`
	CategoryNames        []string `json:"CategoryNames,omitempty"`
	AllowElementToExtend bool     `json:"AllowElementToExtend,omitempty"`
	PointClass           string   `json:"PointClass,omitempty"`
	PointType            string   `json:"PointType,omitempty"`
	Type                 string   `json:"Type,omitempty"`
	DataReferencePlugIn  string   `json:"DataReferencePlugIn,omitempty"`
	ConfigString         string   `json:"ConfigString,omitempty"`
	StartTime            string   `json:"StartTime,omitempty"`
	EndTime              string   `json:"EndTime,omitempty"`
}

// TimedValue is a single stream value.
type TimedValue struct {
	Timestamp         time.Time   `json:"Timestamp,omitzero"`
	Value             interface{} `json:"Value"`
	UnitsAbbreviation string      `json:"UnitsAbbreviation,omitempty"`
	Good              *bool       `json:"Good,omitempty"`
}

// Float returns the value as a number when it is one.
func (v TimedValue) Float() (float64, bool) {
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DigitalState returns the state of an enumeration value, which PI Web API
// renders as {"Name": ..., "Value": ...}.
func (v TimedValue) DigitalState() (string, int, bool) {
	m, ok := v.Value.(map[string]interface{})
	if !ok {
		return "", 0, false
	}
	name, _ := m["Name"].(string)
	code, ok := TimedValue{Value: m["Value"]}.Float()
	if !ok {
		return "", 0, false
	}
	return name, int(code), true
}

// StreamValues is one stream's values in a streamsets request.
type StreamValues struct {
	WebID string       `json:"WebId"`
	Items []TimedValue `json:"Items"`
}

// StreamEvent is a value reported by stream updates.
type StreamEvent struct {
	TimedValue
	Action string `json:"Action,omitempty"`
}

// StreamUpdates is the response of streams/updates/{marker}.
type StreamUpdates struct {
	Source       string        `json:"Source"`
	Status       string        `json:"Status"`
	LatestMarker string        `json:"LatestMarker"`
	Events       []StreamEvent `json:"Events"`
}

// LastEvent returns the most recent event, or nil when there is none.
func (s *StreamUpdates) LastEvent() *StreamEvent {
	if s == nil || len(s.Events) == 0 {
		return nil
	}
	return &s.Events[len(s.Events)-1]
}

// ChannelMessage is a frame received from a stream channel.
type ChannelMessage struct {
	Items []struct {
		WebID string       `json:"WebId"`
		Name  string       `json:"Name"`
		Path  string       `json:"Path"`
		Items []TimedValue `json:"Items"`
	} `json:"Items"`
}

// FirstTimestamp returns the timestamp of the first value in the message.
func (m *ChannelMessage) FirstTimestamp() (time.Time, bool) {
	if m == nil || len(m.Items) == 0 || len(m.Items[0].Items) == 0 {
		return time.Time{}, false
	}
	return m.Items[0].Items[0].Timestamp, true
}

// SearchResult is the response of search/query.
type SearchResult struct {
	TotalHits int          `json:"TotalHits"`
	Items     []SearchItem `json:"Items"`
	Errors    []string     `json:"Errors,omitempty"`
}

// SearchItem is a single indexed search hit.
type SearchItem struct {
	Name     string `json:"Name"`
	ItemType string `json:"ItemType"`
	WebID    string `json:"WebId"`
}
