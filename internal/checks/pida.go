package checks

import (
	"fmt"
	"time"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
)

const recordedValueCount = 10

// checkSnapshotUpdates verifies that something is still writing the test
// point: its snapshot timestamp must advance.
func checkSnapshotUpdates(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()
	path := piwebapi.PointPath(pi.DataArchive, pi.TestPointName)

	webID, err := c.Resolver().WebID(ctx, piwebapi.ResourcePoints, path)
	if err != nil {
		return Failf("Test point %s was not found: %v", path, err)
	}

	first, err := client.StreamValue(ctx, webID)
	if err != nil {
		return fmt.Errorf("read snapshot of %s: %w", path, err)
	}
	c.Step("Snapshot of %s is at %s", pi.TestPointName, first.Timestamp.Format(time.RFC3339))

	cfg := c.StreamPoll().Describe("Snapshot of %s did not advance past %s; check that the analysis or interface writing it is running",
		pi.TestPointName, first.Timestamp.Format(time.RFC3339))
	_, err = eventually.Poll(ctx, cfg, func() (time.Time, error) {
		v, err := client.StreamValue(ctx, webID)
		if err != nil {
			return time.Time{}, err
		}
		return v.Timestamp, nil
	}, func(ts time.Time) bool { return ts.After(first.Timestamp) })
	return err
}

// checkRecordedValues writes a block of recorded values to a temporary
// point and waits until the archive returns all of them.
func checkRecordedValues(c *Context) error {
	ctx, client, pi := c.Context(), c.Client(), c.PI()

	ds, err := dataServerWebID(c, pi.DataArchive)
	if err != nil {
		return err
	}

	name := c.Unique("OSIsoftTestRecorded")
	c.Step("Create PI point %s", name)
	loc, err := client.CreatePoint(ctx, ds, piwebapi.ObjectSpec{Name: name, PointClass: "classic", PointType: "Float64"})
	if err != nil {
		return fmt.Errorf("create PI point %s: %w", name, err)
	}
	c.Track("PI point "+name, loc)

	point, err := client.GetObject(ctx, loc)
	if err != nil {
		return fmt.Errorf("read PI point %s: %w", name, err)
	}

	base := c.Now().UTC().Add(-recordedValueCount * time.Minute).Truncate(time.Second)
	values := make([]piwebapi.TimedValue, recordedValueCount)
	want := make([]float64, recordedValueCount)
	for i := range values {
		want[i] = float64(i + 1)
		values[i] = piwebapi.TimedValue{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: want[i]}
	}

	c.Step("Write %d recorded values to %s", len(values), name)
	if err := client.UpdateRecorded(ctx, point.WebID, values); err != nil {
		return fmt.Errorf("write recorded values to %s: %w", name, err)
	}

	cfg := c.Poll().Describe("Expected %d recorded values in %s", recordedValueCount, name)
	got, err := eventually.Poll(ctx, cfg, func() (int, error) {
		recorded, err := client.RecordedBetween(ctx, point.WebID, base.Format(time.RFC3339), "*")
		if err != nil {
			return 0, err
		}
		return countMatching(recorded, want...), nil
	}, func(n int) bool { return n == recordedValueCount })
	if err != nil {
		return err
	}
	c.Step("Read back %d recorded values", got)
	return nil
}
