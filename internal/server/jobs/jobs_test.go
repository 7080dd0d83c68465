package jobs

import (
	"context"
	"io"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/uid"
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

func TestRemoveExpiredSessions(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	retention := time.Hour

	newSession := func(t *testing.T, expires, revoked *time.Time) *models.Session {
		t.Helper()
		session := &models.Session{
			Credential: models.Credential{
				OwnerID:    uid.New(),
				LookupKey:  generateLookupKey(t),
				SecretHash: []byte("hash"),
				ExpiresAt:  expires,
				RevokedAt:  revoked,
			},
		}
		assert.NilError(t, data.CreateSession(db, session))
		return session
	}

	past := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	swept := newSession(t, &past, nil)
	sweptRevoked := newSession(t, &future, &past)
	recentlyExpired := newSession(t, &recent, nil)
	active := newSession(t, &future, nil)

	assert.NilError(t, RemoveExpiredSessions(ctx, db, retention, now))

	_, err := data.GetSessionByID(db, swept.ID)
	assert.ErrorContains(t, err, "not found")
	_, err = data.GetSessionByID(db, sweptRevoked.ID)
	assert.ErrorContains(t, err, "not found")

	// rows inside the retention window stay
	_, err = data.GetSessionByID(db, recentlyExpired.ID)
	assert.NilError(t, err)
	_, err = data.GetSessionByID(db, active.ID)
	assert.NilError(t, err)

	// a second run with nothing to remove is not an error
	assert.NilError(t, RemoveExpiredSessions(ctx, db, retention, now))
}

func TestRemoveExpiredAccessKeys(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-2 * time.Hour)
	future := now.Add(time.Hour)

	swept := &models.AccessKey{
		Credential: models.Credential{
			OwnerID:    uid.New(),
			LookupKey:  generateLookupKey(t),
			SecretHash: []byte("hash"),
			ExpiresAt:  &past,
		},
	}
	assert.NilError(t, data.CreateAccessKey(db, swept))

	kept := &models.AccessKey{
		Credential: models.Credential{
			OwnerID:    uid.New(),
			LookupKey:  generateLookupKey(t),
			SecretHash: []byte("hash"),
			ExpiresAt:  &future,
		},
	}
	assert.NilError(t, data.CreateAccessKey(db, kept))

	assert.NilError(t, RemoveExpiredAccessKeys(ctx, db, time.Hour, now))

	_, err := data.GetAccessKeyByID(db, swept.ID)
	assert.ErrorContains(t, err, "not found")
	_, err = data.GetAccessKeyByID(db, kept.ID)
	assert.NilError(t, err)
}

func generateLookupKey(t *testing.T) string {
	t.Helper()
	generated, err := token.Generate(token.KindSession)
	assert.NilError(t, err)
	return generated.LookupKey
}
