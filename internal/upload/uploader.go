package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/pkg/logger"
)

// DefaultStreamsPerRequest bounds the streams sent in one streamsets call.
const DefaultStreamsPerRequest = 50

// Database describes an AF database to (re)create from an XML export.
type Database struct {
	Name        string
	Description string
	XML         []byte
	// Replace deletes an existing database of the same name first.
	Replace bool
}

// Input is everything one upload writes.
type Input struct {
	Tags     []TagDefinition
	Data     []DataRow
	Database *Database
}

// Summary reports what an upload changed.
type Summary struct {
	DatabaseImported bool
	PointsCreated    int
	PointsExisting   int
	ValuesWritten    int
	SkippedRows      int
}

// Uploader writes sample data through PI Web API.
type Uploader struct {
	client            *piwebapi.Client
	afServer          string
	dataServer        string
	poll              eventually.Config
	streamsPerRequest int
	log               *logger.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithPolling sets the budget for waiting on created objects.
func WithPolling(cfg eventually.Config) Option {
	return func(u *Uploader) { u.poll = cfg }
}

// WithStreamsPerRequest sets how many streams go into one request.
func WithStreamsPerRequest(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.streamsPerRequest = n
		}
	}
}

// WithLogger sets the uploader logger.
func WithLogger(log *logger.Logger) Option {
	return func(u *Uploader) { u.log = log }
}

// New creates an Uploader for the given AF server and Data Archive.
func New(client *piwebapi.Client, afServer, dataServer string, opts ...Option) *Uploader {
	u := &Uploader{
		client:            client,
		afServer:          afServer,
		dataServer:        dataServer,
		poll:              eventually.Defaults(),
		streamsPerRequest: DefaultStreamsPerRequest,
		log:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload imports the database, creates missing points and writes values.
func (u *Uploader) Upload(ctx context.Context, in Input) (*Summary, error) {
	summary := &Summary{}

	if in.Database != nil {
		if err := u.ImportDatabase(ctx, *in.Database); err != nil {
			return summary, err
		}
		summary.DatabaseImported = true
	}

	webIDs, created, err := u.EnsurePoints(ctx, in.Tags)
	if err != nil {
		return summary, err
	}
	summary.PointsCreated = created
	summary.PointsExisting = len(in.Tags) - created

	written, skipped, err := u.WriteValues(ctx, webIDs, in.Data)
	summary.ValuesWritten = written
	summary.SkippedRows = skipped
	if err != nil {
		return summary, err
	}

	u.log.Info("Upload finished", "points_created", summary.PointsCreated, "points_existing", summary.PointsExisting,
		"values_written", summary.ValuesWritten, "skipped_rows", summary.SkippedRows)
	return summary, nil
}

// ImportDatabase creates the AF database and loads its XML export.
func (u *Uploader) ImportDatabase(ctx context.Context, db Database) error {
	serverPath := piwebapi.AssetServerPath(u.afServer)
	dbPath := piwebapi.AssetDatabasePath(u.afServer, db.Name)

	existing, err := u.client.AssetDatabaseByPath(ctx, dbPath)
	switch {
	case err == nil && db.Replace:
		u.log.Info("Deleting existing AF database", "path", dbPath)
		if err := u.client.Delete(ctx, piwebapi.ResourceAssetDatabases+"/"+existing.WebID); err != nil {
			return fmt.Errorf("delete AF database %s: %w", dbPath, err)
		}
		if err := u.waitGone(ctx, piwebapi.ResourceAssetDatabases, dbPath); err != nil {
			return err
		}
	case err == nil:
		return fmt.Errorf("AF database %s already exists", dbPath)
	case !piwebapi.IsNotFound(err):
		return fmt.Errorf("look up AF database %s: %w", dbPath, err)
	}

	server, err := u.client.AssetServerByPath(ctx, serverPath)
	if err != nil {
		return fmt.Errorf("look up AF server %s: %w", serverPath, err)
	}
	if _, err := u.client.CreateAssetDatabase(ctx, server.WebID, piwebapi.ObjectSpec{
		Name:        db.Name,
		Description: db.Description,
	}); err != nil {
		return fmt.Errorf("create AF database %s: %w", dbPath, err)
	}

	created, err := u.waitFor(ctx, piwebapi.ResourceAssetDatabases, dbPath)
	if err != nil {
		return err
	}
	if len(db.XML) > 0 {
		if err := u.client.ImportDatabase(ctx, created.WebID, db.XML); err != nil {
			return fmt.Errorf("import AF database %s: %w", dbPath, err)
		}
	}
	u.log.Info("AF database imported", "path", dbPath, "bytes", len(db.XML))
	return nil
}

// EnsurePoints creates the tags that do not exist yet and returns the WebId
// of every tag by name.
func (u *Uploader) EnsurePoints(ctx context.Context, tags []TagDefinition) (map[string]string, int, error) {
	webIDs := make(map[string]string, len(tags))
	if len(tags) == 0 {
		return webIDs, 0, nil
	}

	dsPath := piwebapi.DataServerPath(u.dataServer)
	ds, err := u.client.DataServerByPath(ctx, dsPath)
	if err != nil {
		return nil, 0, fmt.Errorf("look up PI Data Archive %s: %w", dsPath, err)
	}

	created := 0
	for _, tag := range tags {
		path := piwebapi.PointPath(u.dataServer, tag.Name)
		point, err := u.client.PointByPath(ctx, path)
		if err == nil {
			webIDs[tag.Name] = point.WebID
			continue
		}
		if !piwebapi.IsNotFound(err) {
			return nil, created, fmt.Errorf("look up point %s: %w", tag.Name, err)
		}

		if _, err := u.client.CreatePoint(ctx, ds.WebID, piwebapi.ObjectSpec{
			Name:       tag.Name,
			PointType:  tag.PointType,
			PointClass: tag.PointClass,
		}); err != nil {
			return nil, created, fmt.Errorf("create point %s: %w", tag.Name, err)
		}
		point, err = u.waitFor(ctx, piwebapi.ResourcePoints, path)
		if err != nil {
			return nil, created, err
		}
		webIDs[tag.Name] = point.WebID
		created++
		u.log.Debug("Point created", "tag", tag.Name, "type", tag.PointType)
	}
	return webIDs, created, nil
}

// WriteValues posts rows to the streams named by their tag. Rows for tags
// without a WebId are skipped and counted. Only values of streams PI Web API
// accepted are counted as written; rejected streams are reported through a
// *piwebapi.StreamWriteError once every chunk has been sent.
func (u *Uploader) WriteValues(ctx context.Context, webIDs map[string]string, rows []DataRow) (int, int, error) {
	byTag := make(map[string][]piwebapi.TimedValue)
	skipped := 0
	for _, row := range rows {
		if _, ok := webIDs[row.Tag]; !ok {
			skipped++
			continue
		}
		byTag[row.Tag] = append(byTag[row.Tag], piwebapi.TimedValue{Timestamp: row.Timestamp, Value: row.Value})
	}
	if skipped > 0 {
		u.log.Warn("Skipping values for unknown tags", "rows", skipped)
	}

	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	written := 0
	rejected := &piwebapi.StreamWriteError{Failed: make(map[string][]string)}
	for start := 0; start < len(tags); start += u.streamsPerRequest {
		end := min(start+u.streamsPerRequest, len(tags))
		sets := make([]piwebapi.StreamValues, 0, end-start)
		for _, tag := range tags[start:end] {
			sets = append(sets, piwebapi.StreamValues{WebID: webIDs[tag], Items: byTag[tag]})
		}

		err := u.client.UpdateStreamSetRecorded(ctx, sets)
		var partial *piwebapi.StreamWriteError
		if err != nil && !errors.As(err, &partial) {
			return written, skipped, fmt.Errorf("write values for %d streams: %w", len(sets), err)
		}
		for _, set := range sets {
			if partial != nil && partial.Rejected(set.WebID) {
				rejected.Failed[set.WebID] = partial.Failed[set.WebID]
				u.log.Warn("Stream rejected its values", "webId", set.WebID, "values", len(set.Items))
				continue
			}
			written += len(set.Items)
		}
	}
	if len(rejected.Failed) > 0 {
		return written, skipped, fmt.Errorf("write values: %w", rejected)
	}
	return written, skipped, nil
}

func (u *Uploader) waitFor(ctx context.Context, resource, path string) (*piwebapi.Object, error) {
	cfg := u.poll.Describe("%s was not found after it was created", path)
	return eventually.Poll(ctx, cfg, func() (*piwebapi.Object, error) {
		obj, err := u.client.ByPath(ctx, resource, path)
		if piwebapi.IsNotFound(err) {
			return nil, nil
		}
		return obj, err
	}, func(obj *piwebapi.Object) bool { return obj != nil })
}

func (u *Uploader) waitGone(ctx context.Context, resource, path string) error {
	cfg := u.poll.Describe("%s still exists after delete", path)
	return eventually.True(ctx, cfg, func() (bool, error) {
		_, err := u.client.ByPath(ctx, resource, path)
		if piwebapi.IsNotFound(err) {
			return true, nil
		}
		return false, err
	})
}
