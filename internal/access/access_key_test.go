package access

import (
	"context"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/uid"
)

func TestIssueAccessKey(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	t.Run("success", func(t *testing.T) {
		expires := time.Now().UTC().Add(24 * time.Hour)
		key, body, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "ci-deploy", []string{"read", "deploy"}, &expires)
		assert.NilError(t, err)
		assert.Equal(t, key.Name, "ci-deploy")
		assert.DeepEqual(t, []string(key.Scopes), []string{"read", "deploy"})
		assert.Assert(t, strings.HasPrefix(body, "ak_"))

		verified, err := Verify(ctx, db, body)
		assert.NilError(t, err)
		assert.Equal(t, verified.OwnerID, owner)
		assert.Equal(t, verified.Name, "ci-deploy")
		assert.DeepEqual(t, verified.Scopes, []string{"read", "deploy"})
	})
	t.Run("default name", func(t *testing.T) {
		key, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "", nil, nil)
		assert.NilError(t, err)
		assert.Equal(t, key.Name, key.OwnerID.String()+"-"+key.ID.String())
	})
	t.Run("default TTL applies when no expiry given", func(t *testing.T) {
		opts := AccessKeyOptions{DefaultTTL: time.Hour}
		key, _, err := IssueAccessKey(ctx, db, opts, owner, "short", nil, nil)
		assert.NilError(t, err)
		assert.Assert(t, key.ExpiresAt != nil)
	})
	t.Run("no expiry without default TTL", func(t *testing.T) {
		key, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "forever", nil, nil)
		assert.NilError(t, err)
		assert.Assert(t, is.Nil(key.ExpiresAt))
	})
	t.Run("missing owner", func(t *testing.T) {
		_, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, 0, "x", nil, nil)
		assert.ErrorContains(t, err, "ownerID is required")
	})
}

func TestIssueAccessKey_EnforcesCap(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()
	opts := AccessKeyOptions{MaxActive: 2}

	var bodies []string
	for i := 0; i < 3; i++ {
		_, body, err := IssueAccessKey(ctx, db, opts, owner, "", nil, nil)
		assert.NilError(t, err)
		bodies = append(bodies, body)
	}

	_, err := Verify(ctx, db, bodies[0])
	assert.ErrorIs(t, err, internal.ErrInvalidCredential)
	for _, body := range bodies[1:] {
		_, err := Verify(ctx, db, body)
		assert.NilError(t, err)
	}
}

func TestRotateAccessKey(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	t.Run("preserves name scopes and expiry", func(t *testing.T) {
		expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
		key, body, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "ci-deploy", []string{"read"}, &expires)
		assert.NilError(t, err)

		replacement, newBody, err := RotateAccessKey(ctx, db, owner, key.ID)
		assert.NilError(t, err)
		assert.Assert(t, replacement.ID != key.ID)
		assert.Equal(t, replacement.Name, "ci-deploy")
		assert.DeepEqual(t, []string(replacement.Scopes), []string{"read"})
		assert.Assert(t, replacement.ExpiresAt != nil)
		assert.Assert(t, replacement.ExpiresAt.Equal(expires))

		// the old body stops verifying, the new one carries the scopes
		_, err = Verify(ctx, db, body)
		assert.ErrorIs(t, err, internal.ErrInvalidCredential)

		verified, err := Verify(ctx, db, newBody)
		assert.NilError(t, err)
		assert.Equal(t, verified.CredentialID, replacement.ID)
		assert.DeepEqual(t, verified.Scopes, []string{"read"})

		old, err := data.GetAccessKeyByID(db.WithContext(ctx), key.ID)
		assert.NilError(t, err)
		assert.Assert(t, old.RevokedAt != nil)
	})
	t.Run("owner mismatch", func(t *testing.T) {
		key, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "mine", nil, nil)
		assert.NilError(t, err)

		_, _, err = RotateAccessKey(ctx, db, uid.New(), key.ID)
		assert.ErrorIs(t, err, internal.ErrOwnerMismatch)

		// the key is untouched
		stored, err := data.GetAccessKeyByID(db.WithContext(ctx), key.ID)
		assert.NilError(t, err)
		assert.Assert(t, is.Nil(stored.RevokedAt))
	})
	t.Run("revoked key", func(t *testing.T) {
		key, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "gone", nil, nil)
		assert.NilError(t, err)
		assert.NilError(t, RevokeAccessKey(ctx, db, owner, key.ID))

		_, _, err = RotateAccessKey(ctx, db, owner, key.ID)
		assert.ErrorIs(t, err, internal.ErrRevoked)
	})
	t.Run("expired key", func(t *testing.T) {
		expires := time.Now().UTC().Add(-time.Minute)
		key, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "stale", nil, &expires)
		assert.NilError(t, err)

		_, _, err = RotateAccessKey(ctx, db, owner, key.ID)
		assert.ErrorIs(t, err, internal.ErrExpired)
	})
	t.Run("unknown key", func(t *testing.T) {
		_, _, err := RotateAccessKey(ctx, db, owner, uid.New())
		assert.ErrorIs(t, err, internal.ErrNotFound)
	})
}

func TestRevokeAccessKey(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	key, body, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "ci", nil, nil)
	assert.NilError(t, err)

	t.Run("owner mismatch", func(t *testing.T) {
		err := RevokeAccessKey(ctx, db, uid.New(), key.ID)
		assert.ErrorIs(t, err, internal.ErrOwnerMismatch)

		_, err = Verify(ctx, db, body)
		assert.NilError(t, err)
	})
	t.Run("success and idempotent", func(t *testing.T) {
		assert.NilError(t, RevokeAccessKey(ctx, db, owner, key.ID))

		_, err := Verify(ctx, db, body)
		assert.ErrorIs(t, err, internal.ErrInvalidCredential)

		assert.NilError(t, RevokeAccessKey(ctx, db, owner, key.ID))
		assert.NilError(t, RevokeAccessKey(ctx, db, owner, uid.New()))
	})
}

func TestListAccessKeys(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	active, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "active", []string{"read"}, nil)
	assert.NilError(t, err)

	expires := time.Now().UTC().Add(-time.Minute)
	expired, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "expired", nil, &expires)
	assert.NilError(t, err)

	revoked, _, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "revoked", nil, nil)
	assert.NilError(t, err)
	assert.NilError(t, RevokeAccessKey(ctx, db, owner, revoked.ID))

	_, _, err = IssueAccessKey(ctx, db, AccessKeyOptions{}, uid.New(), "other-owner", nil, nil)
	assert.NilError(t, err)

	keys, err := ListAccessKeys(ctx, db, owner)
	assert.NilError(t, err)
	assert.Equal(t, len(keys), 3)

	byID := make(map[uid.ID]AccessKeySummary)
	for _, key := range keys {
		byID[key.ID] = key
	}
	assert.Equal(t, byID[active.ID].Status, AccessKeyActive)
	assert.DeepEqual(t, byID[active.ID].Scopes, []string{"read"})
	assert.Equal(t, byID[expired.ID].Status, AccessKeyExpired)
	assert.Equal(t, byID[revoked.ID].Status, AccessKeyRevoked)
	assert.Assert(t, byID[revoked.ID].RevokedAt != nil)
}
