package checks

import (
	"fmt"
	"strings"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

func databaseWebID(c *Context) (string, string, error) {
	pi := c.PI()
	path := piwebapi.AssetDatabasePath(pi.AFServer, pi.AFDatabase)
	c.Step("Look up AF database %s", path)
	webID, err := c.Resolver().WebID(c.Context(), piwebapi.ResourceAssetDatabases, path)
	if err != nil {
		return "", path, Failf("AF database %s was not found: %v", path, err)
	}
	return webID, path, nil
}

func dataServerWebID(c *Context, name string) (string, error) {
	path := piwebapi.DataServerPath(name)
	c.Step("Look up PI Data Archive %s", path)
	webID, err := c.Resolver().WebID(c.Context(), piwebapi.ResourceDataServers, path)
	if err != nil {
		return "", Failf("PI Data Archive %s was not found: %v", name, err)
	}
	return webID, nil
}

// findTestPoint returns the WebId of the configured test point, found by
// name filter on the data archive.
func findTestPoint(c *Context) (string, error) {
	pi := c.PI()
	ds, err := dataServerWebID(c, pi.DataArchive)
	if err != nil {
		return "", err
	}

	c.Step("Find test point %s", pi.TestPointName)
	points, err := c.Client().FindPoints(c.Context(), ds, pi.TestPointName)
	if err != nil {
		return "", fmt.Errorf("find test point %s: %w", pi.TestPointName, err)
	}
	if len(points) == 0 {
		return "", Failf("Could not find test PI Point %s on %s", pi.TestPointName, pi.DataArchive)
	}
	return points[0].WebID, nil
}

// waitForPath polls until the object at path exists.
func waitForPath(c *Context, resource, path string) (*piwebapi.Object, error) {
	cfg := c.Poll().Describe("%s was not found", path)
	return eventually.Poll(c.Context(), cfg, func() (*piwebapi.Object, error) {
		obj, err := c.Client().ByPath(c.Context(), resource, path)
		if piwebapi.IsNotFound(err) {
			return nil, nil
		}
		return obj, err
	}, func(obj *piwebapi.Object) bool { return obj != nil })
}

// waitGoneByPath polls until the object at path no longer exists.
func waitGoneByPath(c *Context, resource, path string) error {
	cfg := c.Poll().Describe("%s still exists", path)
	return eventually.True(c.Context(), cfg, func() (bool, error) {
		_, err := c.Client().ByPath(c.Context(), resource, path)
		if piwebapi.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
}

// waitGone polls until the object at location no longer exists.
func waitGone(c *Context, what, location string) error {
	cfg := c.Poll().Describe("%s still exists after delete", what)
	return eventually.True(c.Context(), cfg, func() (bool, error) {
		_, err := c.Client().GetObject(c.Context(), location)
		if piwebapi.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
}

// waitRenamed polls until the object at location reports name.
func waitRenamed(c *Context, what, location, name string) error {
	cfg := c.Poll().Describe("%s was not renamed to %s", what, name)
	_, err := eventually.Poll(c.Context(), cfg, func() (string, error) {
		obj, err := c.Client().GetObject(c.Context(), location)
		if err != nil {
			return "", err
		}
		return obj.Name, nil
	}, func(got string) bool { return strings.EqualFold(got, name) })
	return err
}
