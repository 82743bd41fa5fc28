package checks

import (
	"github.com/pideploy/pideploy/internal/piwebapi"
)

func preliminaryChecks() []*Check {
	return []*Check{
		{
			ID:          "webapi-home-page",
			Suite:       SuitePreliminary,
			Description: "PI Web API home page loads and links to itself",
			Requires:    []Condition{RequiresWebAPI()},
			Run:         checkHomePage,
		},
		{
			ID:          "af-database-reachable",
			Suite:       SuitePreliminary,
			Description: "The AF server and test database are reachable through PI Web API",
			Requires:    []Condition{RequiresWebAPI(), RequiresSetting("AFServer", "AFDatabase")},
			Run:         checkAFDatabaseReachable,
		},
		{
			ID:          "data-archive-reachable",
			Suite:       SuitePreliminary,
			Description: "The PI Data Archive and test point are reachable through PI Web API",
			Requires:    []Condition{RequiresWebAPI(), RequiresSetting("PIDataArchive")},
			Run:         checkDataArchiveReachable,
		},
	}
}

func checkHomePage(c *Context) error {
	c.Step("Load PI Web API home page %s", c.Client().BaseURL())
	home, err := c.Client().Home(c.Context())
	if err != nil {
		if piwebapi.IsCertificateError(err) {
			return Failf("Failed to load PI Web API home page: the server certificate is not trusted. "+
				"Install a trusted certificate or enable skip_certificate_validation. (%v)", err)
		}
		return Failf("Failed to load PI Web API home page. The service may be stopped or in a bad state. (%v)", err)
	}
	if !home.HasLink("Self") {
		return Failf("PI Web API home page at %s did not return a Self link", c.Client().BaseURL())
	}
	return nil
}

func checkAFDatabaseReachable(c *Context) error {
	pi := c.PI()

	c.Step("Look up AF server %s", pi.AFServer)
	if _, err := c.Resolver().WebID(c.Context(), piwebapi.ResourceAssetServers, piwebapi.AssetServerPath(pi.AFServer)); err != nil {
		return Failf("AF server %s is not reachable through PI Web API: %v", pi.AFServer, err)
	}

	path := piwebapi.AssetDatabasePath(pi.AFServer, pi.AFDatabase)
	c.Step("Look up AF database %s", path)
	webID, err := c.Resolver().WebID(c.Context(), piwebapi.ResourceAssetDatabases, path)
	if err != nil {
		return Failf("AF database %s was not found: %v", path, err)
	}

	if _, err := c.Client().Elements(c.Context(), webID, 1); err != nil {
		return Failf("Failed to list elements of %s: %v", path, err)
	}
	return nil
}

func checkDataArchiveReachable(c *Context) error {
	pi := c.PI()
	path := piwebapi.DataServerPath(pi.DataArchive)

	c.Step("Look up PI Data Archive %s", pi.DataArchive)
	if _, err := c.Resolver().WebID(c.Context(), piwebapi.ResourceDataServers, path); err != nil {
		return Failf("PI Data Archive %s is not reachable through PI Web API: %v", pi.DataArchive, err)
	}

	if pi.TestPointName == "" {
		return nil
	}
	point := piwebapi.PointPath(pi.DataArchive, pi.TestPointName)
	c.Step("Look up test point %s", point)
	if _, err := c.Resolver().WebID(c.Context(), piwebapi.ResourcePoints, point); err != nil {
		return Failf("Test point %s was not found: %v", point, err)
	}
	return nil
}
