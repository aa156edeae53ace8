package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun(t *testing.T) {
	db := openRaw(t)
	require.NoError(t, Run(db))

	latest, err := Latest()
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	version, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, latest, version)

	for _, table := range []string{"kv_store", "chats", "participants", "messages", "digest_runs", "_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openRaw(t)
	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestPending(t *testing.T) {
	db := openRaw(t)
	require.NoError(t, ensureMigrationsTable(db))

	pending, err := Pending(db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pending)

	require.NoError(t, Run(db))
	pending, err = Pending(db)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestVersion_EmptyDB(t *testing.T) {
	db := openRaw(t)
	require.NoError(t, ensureMigrationsTable(db))

	version, err := Version(db)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("002_archive.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = parseVersion("archive.sql")
	assert.Error(t, err)
}
