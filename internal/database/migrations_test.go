package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations(migrationsFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_runs", migrations[0].Name)
	assert.Contains(t, migrations[0].UpSQL, "CREATE TABLE IF NOT EXISTS runs")
	assert.Contains(t, migrations[0].DownSQL, "DROP TABLE IF EXISTS runs")

	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "create_check_results", migrations[1].Name)
	assert.Contains(t, migrations[1].UpSQL, "REFERENCES runs (id)")
}

func TestLoadMigrations_Parsing(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_add_index.up.sql":   {Data: []byte("CREATE INDEX x ON t (a)")},
		"m/002_create_t.up.sql":    {Data: []byte("CREATE TABLE t (a INT)")},
		"m/002_create_t.down.sql":  {Data: []byte("DROP TABLE t")},
		"m/README.md":              {Data: []byte("ignored")},
		"m/notanumber_x.up.sql":    {Data: []byte("ignored")},
		"m/003_sideways.side.sql":  {Data: []byte("ignored")},
		"m/nested/004_deep.up.sql": {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, Migration{Version: 2, Name: "create_t", UpSQL: "CREATE TABLE t (a INT)", DownSQL: "DROP TABLE t"}, migrations[0])
	assert.Equal(t, 10, migrations[1].Version)
	assert.Equal(t, "add_index", migrations[1].Name)
	assert.Empty(t, migrations[1].DownSQL)
}

func TestLoadMigrations_Empty(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"m/README.md": {Data: []byte("x")}}, "m")
	assert.ErrorIs(t, err, ErrNoMigrations)
}

func TestPendingAndStatus(t *testing.T) {
	known := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	appliedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	applied := []MigrationRecord{{Version: 1, Name: "a", AppliedAt: appliedAt}}

	todo := pending(known, applied)
	require.Len(t, todo, 2)
	assert.Equal(t, 2, todo[0].Version)
	assert.Equal(t, 3, todo[1].Version)

	status := mergeStatus(known, applied)
	require.Len(t, status, 3)
	require.NotNil(t, status[0].AppliedAt)
	assert.Equal(t, appliedAt, *status[0].AppliedAt)
	assert.Nil(t, status[1].AppliedAt)
	assert.Nil(t, status[2].AppliedAt)
}

func resetSchema(t *testing.T, pool *Pool) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{"check_results", "runs", "test_table", "test_tx_table", "schema_migrations"} {
		_, _ = pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
	}
}

func TestMigrator_EmbeddedSchema(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	resetSchema(t, pool)
	t.Cleanup(func() { resetSchema(t, pool) })

	migrator, err := NewMigrator(pool)
	require.NoError(t, err)

	applied, err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	status, err := migrator.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.NotNil(t, s.AppliedAt, "migration %d", s.Version)
	}

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'check_results')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, migrator.Down(ctx))
	version, err := migrator.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	resetSchema(t, pool)
	t.Cleanup(func() { resetSchema(t, pool) })

	migrator := NewMigratorWithMigrations(pool, []Migration{
		{Version: 1, Name: "create_test_table", UpSQL: "CREATE TABLE test_table (id SERIAL PRIMARY KEY)", DownSQL: "DROP TABLE test_table"},
		{Version: 2, Name: "add_name", UpSQL: "ALTER TABLE test_table ADD COLUMN name TEXT", DownSQL: "ALTER TABLE test_table DROP COLUMN name"},
	})

	applied, err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = migrator.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}

func TestMigrator_FailedMigrationRollsBack(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	resetSchema(t, pool)
	t.Cleanup(func() { resetSchema(t, pool) })

	migrator := NewMigratorWithMigrations(pool, []Migration{
		{Version: 1, Name: "valid", UpSQL: "CREATE TABLE test_tx_table (id SERIAL PRIMARY KEY)", DownSQL: "DROP TABLE test_tx_table"},
		{Version: 2, Name: "invalid", UpSQL: "THIS IS NOT VALID SQL"},
	})

	applied, err := migrator.Up(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, applied)

	version, err := migrator.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrator_DownWithNothingApplied(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	resetSchema(t, pool)
	t.Cleanup(func() { resetSchema(t, pool) })

	migrator := NewMigratorWithMigrations(pool, nil)
	require.NoError(t, migrator.EnsureMigrationsTable(ctx))
	assert.NoError(t, migrator.Down(ctx))
}
