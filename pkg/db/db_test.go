package db

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrations(stmts map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, sql := range stmts {
		fsys["migrations/"+name] = &fstest.MapFile{Data: []byte(sql)}
	}
	return fsys
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "epos.db")
	ctx := context.Background()

	conn, err := Connect(ctx, path)
	require.NoError(t, err)
	defer conn.Close()

	fsys := migrations(map[string]string{
		"1_notes.up.sql":   `CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT NOT NULL);`,
		"1_notes.down.sql": `DROP TABLE notes;`,
	})
	require.NoError(t, Migrate(path, fsys, "notes"))
	require.NoError(t, Migrate(path, fsys, "notes"))

	_, err = conn.ExecContext(ctx, `INSERT INTO notes (id, body) VALUES ('1', 'x')`)
	require.NoError(t, err)

	var version int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT version FROM schema_migrations_notes`).Scan(&version))
	assert.Equal(t, 1, version)
}

func TestServicesKeepSeparateVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epos.db")

	first := migrations(map[string]string{"1_a.up.sql": `CREATE TABLE a (id TEXT);`})
	second := migrations(map[string]string{"1_b.up.sql": `CREATE TABLE b (id TEXT);`})

	require.NoError(t, Migrate(path, first, "svc-a"))
	require.NoError(t, Migrate(path, second, "svc-b"))

	conn, err := Connect(context.Background(), path)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"a", "b", "schema_migrations_svc_a", "schema_migrations_svc_b"} {
		var n int
		err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestMigrateReportsBadSQL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epos.db")

	err := Migrate(path, migrations(map[string]string{"1_bad.up.sql": `CREATE TABL nope;`}), "bad")
	var migrationErr *MigrationError
	require.ErrorAs(t, err, &migrationErr)
	assert.Equal(t, "failed to apply migration", migrationErr.Description)
}
