package data

import (
	"io"
	"os"
	"testing"

	"gorm.io/gorm"
	"gotest.tools/v3/assert"

	"github.com/keyfobhq/keyfob/internal/logging"
)

func setupDB(t *testing.T, driver gorm.Dialector) *DB {
	t.Helper()
	logging.PatchLogger(t, io.Discard)

	db, err := NewDB(driver)
	assert.NilError(t, err)

	t.Cleanup(func() {
		// shared postgres databases are reused across tests
		_, _ = db.Exec("DELETE FROM sessions")
		_, _ = db.Exec("DELETE FROM access_keys")
		assert.NilError(t, db.Close())
	})
	return db
}

func sqliteDriver(t *testing.T) gorm.Dialector {
	t.Helper()
	driver, err := NewSQLiteDriver("file::memory:")
	assert.NilError(t, err)
	return driver
}

var isEnvironmentCI = os.Getenv("CI") != ""

// postgresDriver requires postgres to be available in a CI environment, and
// marks the test as skipped when not in CI.
func postgresDriver(t *testing.T) gorm.Dialector {
	t.Helper()
	dsn := os.Getenv("POSTGRESQL_CONNECTION")
	switch {
	case dsn == "" && isEnvironmentCI:
		t.Fatal("CI must test all drivers, set POSTGRESQL_CONNECTION")
	case dsn == "":
		t.Skip("Set POSTGRESQL_CONNECTION to test against postgresql")
	}
	driver, err := NewPostgresDriver(dsn)
	assert.NilError(t, err)
	return driver
}

// runDBTests against all supported databases. Defaults to only sqlite
// locally, and all supported DBs in CI.
func runDBTests(t *testing.T, run func(t *testing.T, db *DB)) {
	t.Run("sqlite", func(t *testing.T) {
		run(t, setupDB(t, sqliteDriver(t)))
	})
	t.Run("postgres", func(t *testing.T) {
		run(t, setupDB(t, postgresDriver(t)))
	})
}
