package checks

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

func checkConfiguration(c *Context) error {
	pi := c.PI()
	instance := pi.ConfigurationElement()

	c.Step("Read PI Web API configuration of instance %s", instance)
	cfg, err := c.Client().SystemConfiguration(c.Context())
	if err != nil {
		return Failf("Failed to read the configuration of PI Web API instance %s: %v", instance, err)
	}

	methods := cfg.AuthenticationMethods()
	if len(methods) == 0 {
		return Failf("PI Web API instance %s lists no authentication methods", instance)
	}
	c.Step("Authentication methods %s, writes disabled %t", strings.Join(methods, ", "), cfg.DisableWrites())

	want := map[string]string{
		config.AuthBasic:     "Basic",
		config.AuthAnonymous: "Anonymous",
		config.AuthBearer:    "Bearer",
	}[strings.ToLower(pi.AuthMethod)]
	if want == "" {
		return nil
	}
	for _, m := range methods {
		if strings.EqualFold(m, want) {
			return nil
		}
	}
	return Failf("PI Web API instance %s does not enable %s authentication (enabled: %s)",
		instance, want, strings.Join(methods, ", "))
}

func checkAuthentication(c *Context) error {
	c.Step("Read system configuration without credentials")
	_, err := c.Client().WithoutAuth().SystemConfiguration(c.Context())
	switch {
	case err == nil:
		return Failf("Expected to receive an Unauthorized Http status code, got back %d", http.StatusOK)
	case piwebapi.IsUnauthorized(err):
		return nil
	case piwebapi.StatusCode(err) != 0:
		return Failf("Expected to receive an Unauthorized Http status code, got back %d", piwebapi.StatusCode(err))
	default:
		return fmt.Errorf("unauthenticated request: %w", err)
	}
}

// checkAFReadWrite verifies read access to the test database, then creates,
// renames, reads and deletes an element and an event frame in it.
func checkAFReadWrite(c *Context) error {
	dbWebID, dbPath, err := databaseWebID(c)
	if err != nil {
		return err
	}
	if c.Env().Configuration.DisableWrites() {
		return c.Skip("PI Web API writes are disabled; read access to %s verified", dbPath)
	}

	if err := elementReadWrite(c, dbWebID); err != nil {
		return err
	}
	return eventFrameReadWrite(c, dbWebID)
}

func elementReadWrite(c *Context, dbWebID string) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	name := c.Unique("OSIsoftTestElement")
	c.Step("Create element %s", name)
	loc, err := client.CreateElement(ctx, dbWebID, piwebapi.ObjectSpec{Name: name})
	if err != nil {
		return fmt.Errorf("create element %s: %w", name, err)
	}
	c.Step("Element created at %s", loc)
	remove := c.Track("element "+name, loc)

	renamed := name + "2"
	c.Step("Rename element %s to %s", name, renamed)
	if err := client.Patch(ctx, loc, piwebapi.ObjectSpec{Name: renamed}); err != nil {
		return fmt.Errorf("rename element %s: %w", name, err)
	}
	if err := waitRenamed(c, "element "+name, loc, renamed); err != nil {
		return err
	}

	el, err := waitForPath(c, piwebapi.ResourceElements, piwebapi.ElementPath(pi.AFServer, pi.AFDatabase, renamed))
	if err != nil {
		return err
	}

	c.Step("Create attribute on element %s", renamed)
	if _, err := client.CreateAttribute(ctx, el.WebID, piwebapi.ObjectSpec{Name: "Attribute"}); err != nil {
		return fmt.Errorf("create attribute on %s: %w", renamed, err)
	}
	attrs, err := client.Attributes(ctx, el.WebID)
	if err != nil {
		return fmt.Errorf("list attributes of %s: %w", renamed, err)
	}
	if len(attrs) != 1 {
		return Failf("Element %s has %d attributes, expected 1", renamed, len(attrs))
	}

	if err := remove(); err != nil {
		return err
	}
	return waitGone(c, "element "+renamed, loc)
}

func eventFrameReadWrite(c *Context, dbWebID string) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	name := c.Unique("OSIsoftTestEventFrame")
	c.Step("Create event frame %s", name)
	loc, err := client.CreateEventFrame(ctx, dbWebID, piwebapi.ObjectSpec{Name: name, StartTime: "*"})
	if err != nil {
		return fmt.Errorf("create event frame %s: %w", name, err)
	}
	c.Step("Event frame created at %s", loc)
	remove := c.Track("event frame "+name, loc)

	renamed := name + "2"
	c.Step("Rename event frame %s to %s", name, renamed)
	if err := client.Patch(ctx, loc, piwebapi.ObjectSpec{Name: renamed}); err != nil {
		return fmt.Errorf("rename event frame %s: %w", name, err)
	}
	if err := waitRenamed(c, "event frame "+name, loc, renamed); err != nil {
		return err
	}
	if _, err := waitForPath(c, piwebapi.ResourceEventFrames, piwebapi.EventFramePath(pi.AFServer, pi.AFDatabase, renamed)); err != nil {
		return err
	}

	if err := remove(); err != nil {
		return err
	}
	return waitGone(c, "event frame "+renamed, loc)
}

// checkDAReadWrite verifies read access to the data archive, then creates,
// renames, reads and deletes a PI point.
func checkDAReadWrite(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	ds, err := dataServerWebID(c, pi.DataArchive)
	if err != nil {
		return err
	}
	if c.Env().Configuration.DisableWrites() {
		return c.Skip("PI Web API writes are disabled; read access to %s verified", pi.DataArchive)
	}

	name := c.Unique("OSIsoftTestPoint")
	c.Step("Create PI point %s", name)
	loc, err := client.CreatePoint(ctx, ds, piwebapi.ObjectSpec{Name: name, PointClass: "classic", PointType: "Float32"})
	if err != nil {
		return fmt.Errorf("create PI point %s: %w", name, err)
	}
	c.Step("PI point created at %s", loc)
	remove := c.Track("PI point "+name, loc)

	if _, err := waitForPath(c, piwebapi.ResourcePoints, piwebapi.PointPath(pi.DataArchive, name)); err != nil {
		return err
	}

	renamed := name + "2"
	c.Step("Rename PI point %s to %s", name, renamed)
	if err := client.Patch(ctx, loc, piwebapi.ObjectSpec{Name: renamed}); err != nil {
		return fmt.Errorf("rename PI point %s: %w", name, err)
	}
	if err := waitRenamed(c, "PI point "+name, loc, renamed); err != nil {
		return err
	}
	if _, err := waitForPath(c, piwebapi.ResourcePoints, piwebapi.PointPath(pi.DataArchive, renamed)); err != nil {
		return err
	}

	if err := remove(); err != nil {
		return err
	}
	return waitGone(c, "PI point "+renamed, loc)
}
