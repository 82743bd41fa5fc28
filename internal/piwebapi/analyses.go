package piwebapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoAnalysisLink is returned when an analysis lacks the link needed to
// follow it to its rule or target.
var ErrNoAnalysisLink = errors.New("analysis has no link")

// Analysis is an AF analysis as listed by PI Web API.
type Analysis struct {
	WebID                  string `json:"WebId"`
	ID                     string `json:"Id,omitempty"`
	Name                   string `json:"Name"`
	Description            string `json:"Description,omitempty"`
	Path                   string `json:"Path,omitempty"`
	AnalysisTemplateName   string `json:"AnalysisTemplateName,omitempty"`
	AnalysisRulePlugInName string `json:"AnalysisRulePlugInName,omitempty"`
	TimeRulePlugInName     string `json:"TimeRulePlugInName,omitempty"`
	Status                 string `json:"Status,omitempty"`
	Links                  Links  `json:"Links,omitempty"`
}

// Enabled reports whether PI Analysis Service is running the analysis.
func (a Analysis) Enabled() bool {
	return strings.EqualFold(a.Status, "Enabled")
}

// InError reports whether PI Analysis Service stopped the analysis on an
// error.
func (a Analysis) InError() bool {
	return strings.EqualFold(a.Status, "Error")
}

// AnalysisRule is the configuration of an analysis.
type AnalysisRule struct {
	WebID           string `json:"WebId"`
	Name            string `json:"Name"`
	PlugInName      string `json:"PlugInName,omitempty"`
	ConfigString    string `json:"ConfigString,omitempty"`
	VariableMapping string `json:"VariableMapping,omitempty"`
}

// MappedVariable is one analysis variable bound to an attribute.
type MappedVariable struct {
	Name string
	// Attribute is an attribute id or a name relative to the target element.
	Attribute string
}

// Variables parses VariableMapping, "Name||Attribute;Name||Attribute", in
// order. Unbound variables are left out.
func (r AnalysisRule) Variables() []MappedVariable {
	var vars []MappedVariable
	for _, entry := range strings.Split(r.VariableMapping, ";") {
		name, ref, ok := strings.Cut(strings.TrimSpace(entry), "||")
		if !ok {
			continue
		}
		ref = strings.TrimLeft(strings.TrimSpace(ref), "|")
		if ref == "" {
			continue
		}
		vars = append(vars, MappedVariable{Name: strings.TrimSpace(name), Attribute: ref})
	}
	return vars
}

// Analyses lists the analyses of a database whose names match nameFilter.
// An empty filter lists all of them.
func (c *Client) Analyses(ctx context.Context, databaseWebID, nameFilter string) ([]Analysis, error) {
	params := url.Values{}
	if nameFilter != "" {
		params.Set("nameFilter", nameFilter)
	}
	var items Items[Analysis]
	if err := c.Get(ctx, withQuery(fmt.Sprintf("assetdatabases/%s/analyses", databaseWebID), params), &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

// AnalysisRule reads the rule of an analysis.
func (c *Client) AnalysisRule(ctx context.Context, a *Analysis) (*AnalysisRule, error) {
	link := a.Links["AnalysisRule"]
	if link == "" {
		return nil, fmt.Errorf("%w: AnalysisRule of %s", ErrNoAnalysisLink, a.Name)
	}
	var rule AnalysisRule
	if err := c.Get(ctx, link, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// AnalysisTarget reads the element an analysis runs against.
func (c *Client) AnalysisTarget(ctx context.Context, a *Analysis) (*Object, error) {
	link := a.Links["Target"]
	if link == "" {
		return nil, fmt.Errorf("%w: Target of %s", ErrNoAnalysisLink, a.Name)
	}
	return c.GetObject(ctx, link)
}

// AnalysisOutputs resolves the attributes bound in the analysis rule against
// the attributes of its target element, in mapping order.
func (c *Client) AnalysisOutputs(ctx context.Context, a *Analysis) ([]Object, error) {
	rule, err := c.AnalysisRule(ctx, a)
	if err != nil {
		return nil, err
	}
	target, err := c.AnalysisTarget(ctx, a)
	if err != nil {
		return nil, err
	}
	attrs, err := c.Attributes(ctx, target.WebID)
	if err != nil {
		return nil, err
	}

	var outputs []Object
	for _, v := range rule.Variables() {
		attr, ok := matchAttribute(attrs, v.Attribute)
		if !ok {
			return nil, fmt.Errorf("analysis %s maps %s to %s, which is not an attribute of %s", a.Name, v.Name, v.Attribute, target.Path)
		}
		outputs = append(outputs, attr)
	}
	return outputs, nil
}

// ChildElements lists the elements under an element.
func (c *Client) ChildElements(ctx context.Context, elementWebID string) ([]Object, error) {
	var items Items[Object]
	if err := c.Get(ctx, fmt.Sprintf("elements/%s/elements", elementWebID), &items); err != nil {
		return nil, err
	}
	return items.Items, nil
}

func matchAttribute(attrs []Object, ref string) (Object, bool) {
	id := strings.Trim(ref, "{}")
	for _, a := range attrs {
		if strings.EqualFold(strings.Trim(a.ID, "{}"), id) || strings.EqualFold(a.Name, ref) {
			return a, true
		}
	}
	return Object{}, false
}
