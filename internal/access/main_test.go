package access

import (
	"io"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
)

func setupDB(t *testing.T) *data.DB {
	t.Helper()
	logging.PatchLogger(t, io.Discard)

	driver, err := data.NewSQLiteDriver("file::memory:")
	assert.NilError(t, err)

	db, err := data.NewDB(driver)
	assert.NilError(t, err)

	t.Cleanup(func() {
		assert.NilError(t, db.Close())
	})
	return db
}
