package upload

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/internal/testutil"
)

const tagCSV = `name,pointType,pointClass
VAVCO 2-09.Predicted Cooling Time,Float32,classic
VAVCO 2-09.Status, Digital ,classic

# trailing comment
`

const dataCSV = `VAVCO 2-09.Predicted Cooling Time,12.5,,2017-10-24T10:00:00Z
VAVCO 2-09.Predicted Cooling Time,13,,10/24/2017 10:05:00 AM
VAVCO 2-09.Status,Active,,2017-10-24 10:00:00
Unknown Tag,1,,2017-10-24T10:00:00Z
`

func TestReadTagDefinitions(t *testing.T) {
	defs, err := ReadTagDefinitions(strings.NewReader(tagCSV))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, TagDefinition{Name: "VAVCO 2-09.Predicted Cooling Time", PointType: "Float32", PointClass: "classic"}, defs[0])
	assert.Equal(t, "Digital", defs[1].PointType)

	_, err = ReadTagDefinitions(strings.NewReader("only,two\n"))
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestReadData(t *testing.T) {
	rows, err := ReadData(strings.NewReader(dataCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, 12.5, rows[0].Value)
	assert.Equal(t, time.Date(2017, 10, 24, 10, 0, 0, 0, time.UTC), rows[0].Timestamp)
	assert.Equal(t, time.Date(2017, 10, 24, 10, 5, 0, 0, time.UTC), rows[1].Timestamp)
	assert.Equal(t, "Active", rows[2].Value)

	_, err = ReadData(strings.NewReader("tag,1,,yesterday\n"))
	assert.ErrorContains(t, err, "unrecognised timestamp")

	_, err = ReadData(strings.NewReader("tag,1\n"))
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func newUploader(t *testing.T) (*Uploader, *testutil.FakePIWebAPI) {
	t.Helper()
	fake := testutil.NewFakePIWebAPI(t)
	client := piwebapi.New(fake.BaseURL(), piwebapi.WithAuthenticator(piwebapi.BasicAuth{User: "piadmin", Password: "pw"}))
	u := New(client, testutil.FakeAFServer, testutil.FakeDataArchive,
		WithPolling(eventually.Defaults().Within(2*time.Second, 10*time.Millisecond)),
		WithStreamsPerRequest(1))
	return u, fake
}

func TestUploader_Upload(t *testing.T) {
	u, fake := newUploader(t)

	defs, err := ReadTagDefinitions(strings.NewReader(tagCSV))
	require.NoError(t, err)
	rows, err := ReadData(strings.NewReader(dataCSV))
	require.NoError(t, err)

	summary, err := u.Upload(context.Background(), Input{
		Tags: defs,
		Data: rows,
		Database: &Database{
			Name:        "Building Example",
			Description: "Example for Building Data",
			XML:         []byte(`<AF><AFElement><Name>VAVCO 2-09</Name></AFElement></AF>`),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, &Summary{DatabaseImported: true, PointsCreated: 2, ValuesWritten: 3, SkippedRows: 1}, summary)

	point, ok := fake.Find(testutil.KindPoint, "VAVCO 2-09.Predicted Cooling Time")
	require.True(t, ok)
	assert.Equal(t, "Float32", point.PointType)
	assert.Len(t, point.Values, 2)

	imported, ok := fake.Imported("Building Example")
	require.True(t, ok)
	assert.Contains(t, string(imported), "VAVCO 2-09")
	posts := 0
	for _, req := range fake.Requests() {
		if req.Method == "POST" && strings.HasSuffix(req.Path, "/streamsets/recorded") {
			posts++
		}
	}
	assert.Equal(t, 2, posts)
}

func TestUploader_ExistingPointsAreReused(t *testing.T) {
	u, fake := newUploader(t)
	existing := fake.AddPoint("Existing")

	webIDs, created, err := u.EnsurePoints(context.Background(), []TagDefinition{{Name: "Existing", PointType: "Float32", PointClass: "classic"}})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, existing, webIDs["Existing"])
}

func TestUploader_ImportDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to overwrite without Replace", func(t *testing.T) {
		u, _ := newUploader(t)
		err := u.ImportDatabase(ctx, Database{Name: testutil.FakeAFDatabase})
		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("replaces an existing database", func(t *testing.T) {
		u, fake := newUploader(t)
		before, ok := fake.Find(testutil.KindAssetDatabase, testutil.FakeAFDatabase)
		require.True(t, ok)

		require.NoError(t, u.ImportDatabase(ctx, Database{Name: testutil.FakeAFDatabase, Replace: true, XML: []byte("<AF/>")}))

		after, ok := fake.Find(testutil.KindAssetDatabase, testutil.FakeAFDatabase)
		require.True(t, ok)
		assert.NotEqual(t, before.WebID, after.WebID)
	})
}

func TestUploader_UnknownDataServer(t *testing.T) {
	fake := testutil.NewFakePIWebAPI(t)
	client := piwebapi.New(fake.BaseURL(), piwebapi.WithAuthenticator(piwebapi.BasicAuth{User: "piadmin", Password: "pw"}))
	u := New(client, testutil.FakeAFServer, "missing")

	_, _, err := u.EnsurePoints(context.Background(), []TagDefinition{{Name: "x"}})
	assert.ErrorContains(t, err, "PI Data Archive")
}

func TestUploader_WriteValuesPartialFailure(t *testing.T) {
	fake := testutil.NewFakePIWebAPI(t)
	fake.Configure(func(s *testutil.FakeSettings) { s.ReadOnlyPoints = []string{"Locked"} })
	client := piwebapi.New(fake.BaseURL(), piwebapi.WithAuthenticator(piwebapi.BasicAuth{User: "piadmin", Password: "pw"}))
	u := New(client, testutil.FakeAFServer, testutil.FakeDataArchive)

	webIDs := map[string]string{
		"Locked":   fake.AddPoint("Locked"),
		"Writable": fake.AddPoint("Writable"),
	}
	ts := time.Date(2017, 10, 24, 10, 0, 0, 0, time.UTC)
	rows := []DataRow{
		{Tag: "Locked", Value: 1.0, Timestamp: ts},
		{Tag: "Locked", Value: 2.0, Timestamp: ts.Add(time.Minute)},
		{Tag: "Writable", Value: 3.0, Timestamp: ts},
	}

	written, skipped, err := u.WriteValues(context.Background(), webIDs, rows)
	require.Error(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 0, skipped)

	var rejected *piwebapi.StreamWriteError
	require.ErrorAs(t, err, &rejected)
	assert.True(t, rejected.Rejected(webIDs["Locked"]))
	assert.False(t, rejected.Rejected(webIDs["Writable"]))
	assert.Contains(t, err.Error(), webIDs["Locked"])
	assert.Contains(t, err.Error(), "Point is not writable")

	locked, ok := fake.Find(testutil.KindPoint, "Locked")
	require.True(t, ok)
	assert.Empty(t, locked.Values)
}
