package checks

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

func checkIndexedSearch(c *Context) error {
	pi := c.PI()
	crawler := pi.CrawlerHost()
	query := "name:" + pi.AFDatabase

	c.Step("Run indexed search %q", query)
	result, err := c.Client().Search(c.Context(), query, 10)
	if err != nil {
		return Failf("Indexed search failed; check the PI Crawler service on %s: %v", crawler, err)
	}
	if len(result.Errors) > 0 {
		return Failf("Indexed search reported errors; check the PI Crawler service on %s: %s",
			crawler, strings.Join(result.Errors, "; "))
	}
	if result.TotalHits == 0 {
		return Failf("Indexed search returned no results for %q; check that the PI Crawler on %s has crawled %s",
			query, crawler, pi.AFDatabase)
	}
	c.Step("Indexed search returned %d hits", result.TotalHits)
	return nil
}

// checkBatch creates a temporary PI point, then reads and writes it in one
// batch request whose sub-requests depend on the lookup of the point.
func checkBatch(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	ds, err := dataServerWebID(c, pi.DataArchive)
	if err != nil {
		return err
	}
	name := c.Unique("OSIsoftTestBatchPoint")
	c.Step("Create PI point %s", name)
	loc, err := client.CreatePoint(ctx, ds, piwebapi.ObjectSpec{Name: name, PointClass: "classic", PointType: "Float32"})
	if err != nil {
		return fmt.Errorf("create PI point %s: %w", name, err)
	}
	c.Track("PI point "+name, loc)

	at := c.Now().UTC().Truncate(time.Second)
	recorded := []piwebapi.TimedValue{
		{Timestamp: at.Add(-3 * time.Second), Value: 111.0},
		{Timestamp: at.Add(-2 * time.Second), Value: 222.0},
		{Timestamp: at.Add(-1 * time.Second), Value: 333.0},
	}
	recordedJSON, err := json.Marshal(recorded)
	if err != nil {
		return err
	}
	snapshotJSON, err := json.Marshal(piwebapi.TimedValue{Timestamp: at, Value: 42.5})
	if err != nil {
		return err
	}

	webID := []string{"$.1.Content.WebId"}
	maxCount := url.Values{"maxCount": {"10"}}
	requests := map[string]piwebapi.BatchRequest{
		"1": {Method: http.MethodGet, Resource: client.ResourceURL(piwebapi.ResourcePoints, url.Values{"path": {piwebapi.PointPath(pi.DataArchive, name)}})},
		"2": {Method: http.MethodGet, Resource: client.ResourceURL("streams/{0}/value", nil), Parameters: webID, ParentIDs: []string{"1"}},
		"3": {Method: http.MethodGet, Resource: client.ResourceURL("streams/{0}/recorded", maxCount), Parameters: webID, ParentIDs: []string{"1"}},
		"4": {Method: http.MethodPost, Resource: client.ResourceURL("streams/{0}/value", nil), Content: string(snapshotJSON), Parameters: webID, ParentIDs: []string{"1"}},
		"5": {Method: http.MethodPost, Resource: client.ResourceURL("streams/{0}/recorded", nil), Content: string(recordedJSON), Parameters: webID, ParentIDs: []string{"1"}},
		"6": {
			Method:     http.MethodGet,
			Resource:   client.ResourceURL("streams/{0}/recorded", url.Values{"maxCount": {"10"}, "selectedFields": {"Items.Timestamp;Items.Value"}}),
			Parameters: webID,
			ParentIDs:  []string{"1", "5"},
		},
	}

	c.Step("Send batch of %d requests", len(requests))
	result, err := client.Batch(ctx, requests)
	if err != nil {
		return fmt.Errorf("batch request: %w", err)
	}
	if result.StatusCode != http.StatusMultiStatus {
		return Failf("Batch returned status %d, expected %d", result.StatusCode, http.StatusMultiStatus)
	}
	if failed := result.Failed(); len(failed) > 0 {
		sort.Strings(failed)
		statuses := make([]string, 0, len(failed))
		for _, id := range failed {
			statuses = append(statuses, fmt.Sprintf("%s=%d", id, result.Responses[id].Status))
		}
		return Failf("Batch sub-requests failed: %s", strings.Join(statuses, ", "))
	}

	var point piwebapi.Object
	if err := result.Responses["1"].Decode(&point); err != nil {
		return fmt.Errorf("decode batch point lookup: %w", err)
	}

	c.Step("Wait for the batch writes to be recorded in %s", name)
	cfg := c.Poll().Describe("Recorded values written by the batch were not found in %s", name)
	return eventually.True(ctx, cfg, func() (bool, error) {
		values, err := client.Recorded(ctx, point.WebID, 100)
		if err != nil {
			return false, err
		}
		return countMatching(values, 111, 222, 333) == 3, nil
	})
}

// checkAttributes writes a value to an attribute without a data reference
// and reads it back.
func checkAttributes(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	dbWebID, _, err := databaseWebID(c)
	if err != nil {
		return err
	}

	name := c.Unique("OSIsoftTestAttributes")
	c.Step("Create element %s", name)
	loc, err := client.CreateElement(ctx, dbWebID, piwebapi.ObjectSpec{Name: name})
	if err != nil {
		return fmt.Errorf("create element %s: %w", name, err)
	}
	c.Track("element "+name, loc)

	el, err := client.GetObject(ctx, loc)
	if err != nil {
		return fmt.Errorf("read element %s: %w", name, err)
	}
	if _, err := client.CreateAttribute(ctx, el.WebID, piwebapi.ObjectSpec{Name: "Value", Type: "Double"}); err != nil {
		return fmt.Errorf("create attribute on %s: %w", name, err)
	}

	attrPath := piwebapi.ElementPath(pi.AFServer, pi.AFDatabase, name) + "|Value"
	attr, err := waitForPath(c, piwebapi.ResourceAttributes, attrPath)
	if err != nil {
		return err
	}

	value := math.Round(rand.Float64()*10*10000) / 10000 //nolint:gosec // test data
	c.Step("Write %v to %s", value, attrPath)
	if err := client.SetAttributeValue(ctx, attr.WebID, value); err != nil {
		return fmt.Errorf("write attribute %s: %w", attrPath, err)
	}

	cfg := c.Poll().Describe("Attribute %s did not read back %v", attrPath, value)
	_, err = eventually.Poll(ctx, cfg, func() (float64, error) {
		v, err := client.StreamValue(ctx, attr.WebID)
		if err != nil {
			return 0, err
		}
		f, _ := v.Float()
		return f, nil
	}, func(got float64) bool { return math.Abs(got-value) < 1e-6 })
	return err
}

// checkSandbox builds a database, category, template and element, then
// removes them in reverse order.
func checkSandbox(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	server, err := c.Resolver().WebID(ctx, piwebapi.ResourceAssetServers, piwebapi.AssetServerPath(pi.AFServer))
	if err != nil {
		return Failf("AF server %s was not found: %v", pi.AFServer, err)
	}

	dbName := c.Unique("OSIsoftTestSandbox")
	c.Step("Create AF database %s", dbName)
	dbLoc, err := client.CreateAssetDatabase(ctx, server, piwebapi.ObjectSpec{Name: dbName, Description: "Deployment test sandbox"})
	if err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	removeDB := c.Track("database "+dbName, dbLoc)
	db, err := client.GetObject(ctx, dbLoc)
	if err != nil {
		return fmt.Errorf("read database %s: %w", dbName, err)
	}

	const (
		category = "OSIsoftTestCategory"
		template = "OSIsoftTestTemplate"
		element  = "OSIsoftTestElement"
	)

	c.Step("Create category %s", category)
	catLoc, err := client.CreateCategory(ctx, db.WebID, piwebapi.ObjectSpec{Name: category, Description: "Deployment test category"})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	removeCat := c.Track("category "+category, catLoc)

	c.Step("Create template %s", template)
	tmplLoc, err := client.CreateElementTemplate(ctx, db.WebID, piwebapi.ObjectSpec{
		Name:                 template,
		Description:          "Deployment test template",
		CategoryNames:        []string{category},
		AllowElementToExtend: true,
	})
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	removeTmpl := c.Track("template "+template, tmplLoc)

	c.Step("Create element %s from %s", element, template)
	elLoc, err := client.CreateElement(ctx, db.WebID, piwebapi.ObjectSpec{
		Name:          element,
		TemplateName:  template,
		CategoryNames: []string{category},
	})
	if err != nil {
		return fmt.Errorf("create element: %w", err)
	}
	removeEl := c.Track("element "+element, elLoc)

	el, err := client.GetObject(ctx, elLoc)
	if err != nil {
		return fmt.Errorf("read element: %w", err)
	}
	if !strings.EqualFold(el.TemplateName, template) {
		return Failf("Element %s has template %q, expected %q", element, el.TemplateName, template)
	}

	for _, remove := range []func() error{removeEl, removeTmpl, removeCat, removeDB} {
		if err := remove(); err != nil {
			return err
		}
	}
	return waitGone(c, "database "+dbName, dbLoc)
}

func countMatching(values []piwebapi.TimedValue, want ...float64) int {
	n := 0
	for _, w := range want {
		for _, v := range values {
			if f, ok := v.Float(); ok && math.Abs(f-w) < 1e-6 {
				n++
				break
			}
		}
	}
	return n
}
