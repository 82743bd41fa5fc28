package checks

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/omf"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

var omfValidator = omf.NewValidator()

// checkOMF sends the tank sample type, container and data, verifies the
// template, points and values PI Web API derived from them, then deletes
// the messages and verifies everything was removed.
func checkOMF(c *Context) error {
	ctx, client := c.Context(), c.Client()

	inst, err := client.InstanceConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("read OMF instance configuration: %w", err)
	}
	if inst.OmfDataArchiveName == "" || inst.OmfAssetDatabaseName == "" {
		return Failf("OMF is not configured: no target data archive or AF database in the instance configuration")
	}

	sample := omf.NewTankSample(Suffix(), c.Now())
	pub := omf.NewPublisher(client, omfValidator)
	templatePath := piwebapi.ElementTemplatePath(inst.OmfAssetServerName, inst.OmfAssetDatabaseName, sample.TypeID)
	pointPaths := make([]string, 0, len(sample.Points()))
	for _, name := range sample.Points() {
		pointPaths = append(pointPaths, piwebapi.PointPath(inst.OmfDataArchiveName, name))
	}

	removed := false
	c.Cleanup("remove OMF sample "+sample.TypeID, func(ctx context.Context) error {
		if removed {
			return nil
		}
		return removeOMFLeftovers(ctx, client, pub, sample, templatePath, pointPaths)
	})

	for _, msg := range sample.Create() {
		c.Step("Send OMF %s message", msg.Type)
		opID, err := pub.Send(ctx, msg, omf.ActionCreate)
		if err != nil {
			return err
		}
		c.Step("OMF operation %s accepted", opID)
	}

	c.Step("Wait for element template %s", templatePath)
	if _, err := waitForPath(c, piwebapi.ResourceTemplates, templatePath); err != nil {
		return err
	}

	var pressure *piwebapi.Object
	for i, path := range pointPaths {
		c.Step("Wait for PI point %s", path)
		point, err := waitForPath(c, piwebapi.ResourcePoints, path)
		if err != nil {
			return err
		}
		if i == 0 {
			pressure = point
		}
	}

	c.Step("Wait for value %v in %s", sample.Pressure, pointPaths[0])
	cfg := c.Poll().Describe("Value %v was not recorded in %s", sample.Pressure, pointPaths[0])
	if err := eventually.True(ctx, cfg, func() (bool, error) {
		values, err := client.Recorded(ctx, pressure.WebID, 100)
		if err != nil {
			return false, err
		}
		for _, v := range values {
			if f, ok := v.Float(); ok && math.Abs(f-sample.Pressure) < 1e-6 {
				return true, nil
			}
		}
		return false, nil
	}); err != nil {
		return err
	}

	for _, msg := range sample.Delete() {
		c.Step("Delete OMF %s message", msg.Type)
		if _, err := pub.Send(ctx, msg, omf.ActionDelete); err != nil {
			return err
		}
	}

	for _, path := range pointPaths {
		if err := waitGoneByPath(c, piwebapi.ResourcePoints, path); err != nil {
			return err
		}
	}
	if err := waitGoneByPath(c, piwebapi.ResourceTemplates, templatePath); err != nil {
		return err
	}
	removed = true
	return nil
}

// removeOMFLeftovers deletes what a failed OMF check may have left behind:
// the messages first, then any points and template still present.
func removeOMFLeftovers(ctx context.Context, client *piwebapi.Client, pub *omf.Publisher, sample omf.TankSample, templatePath string, pointPaths []string) error {
	for _, msg := range sample.Delete() {
		_, _ = pub.Send(ctx, msg, omf.ActionDelete)
	}

	var errs []error
	remove := func(resource, path string) {
		obj, err := client.ByPath(ctx, resource, path)
		if piwebapi.IsNotFound(err) {
			return
		}
		if err != nil {
			errs = append(errs, err)
			return
		}
		if err := client.Delete(ctx, resource+"/"+obj.WebID); err != nil && !piwebapi.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	for _, path := range pointPaths {
		remove(piwebapi.ResourcePoints, path)
	}
	remove(piwebapi.ResourceTemplates, templatePath)
	return errors.Join(errs...)
}
