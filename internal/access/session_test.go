package access

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/uid"
)

var testSessionOptions = SessionOptions{
	MaxActive: 3,
	TTL:       time.Hour,
}

func TestIssueSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	t.Run("success", func(t *testing.T) {
		session, body, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "10.1.2.3")
		assert.NilError(t, err)
		assert.Assert(t, session.ID != 0)
		assert.Equal(t, session.OwnerID, owner)
		assert.Equal(t, session.Device, "laptop")
		assert.Assert(t, session.ExpiresAt != nil)

		verified, err := Verify(ctx, db, body)
		assert.NilError(t, err)
		assert.Equal(t, verified.OwnerID, owner)
		assert.Equal(t, verified.CredentialID, session.ID)
	})
	t.Run("missing owner", func(t *testing.T) {
		_, _, err := IssueSession(ctx, db, testSessionOptions, 0, "laptop", "10.1.2.3")
		assert.ErrorContains(t, err, "ownerID is required")
	})
	t.Run("invalid options", func(t *testing.T) {
		_, _, err := IssueSession(ctx, db, SessionOptions{TTL: time.Hour}, owner, "laptop", "")
		assert.ErrorContains(t, err, "max active")

		_, _, err = IssueSession(ctx, db, SessionOptions{MaxActive: 3}, owner, "laptop", "")
		assert.ErrorContains(t, err, "TTL")
	})
}

func TestIssueSession_EnforcesCap(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	var sessions []*models.Session
	var bodies []string
	for i := 0; i < 4; i++ {
		session, body, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "")
		assert.NilError(t, err)
		sessions = append(sessions, session)
		bodies = append(bodies, body)
	}

	active, err := ListActiveSessions(ctx, db, owner)
	assert.NilError(t, err)
	assert.Equal(t, len(active), 3)

	// the oldest session was revoked, the newer three survive in order
	assert.Equal(t, active[0].ID, sessions[1].ID)
	assert.Equal(t, active[1].ID, sessions[2].ID)
	assert.Equal(t, active[2].ID, sessions[3].ID)

	_, err = Verify(ctx, db, bodies[0])
	assert.ErrorIs(t, err, internal.ErrInvalidCredential)

	for _, body := range bodies[1:] {
		_, err := Verify(ctx, db, body)
		assert.NilError(t, err)
	}

	// another owner's sessions do not count against the cap
	other := uid.New()
	_, _, err = IssueSession(ctx, db, testSessionOptions, other, "phone", "")
	assert.NilError(t, err)

	active, err = ListActiveSessions(ctx, db, owner)
	assert.NilError(t, err)
	assert.Equal(t, len(active), 3)
}

func TestRotateSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	t.Run("success", func(t *testing.T) {
		session, body, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "10.1.2.3")
		assert.NilError(t, err)

		replacement, newBody, err := RotateSession(ctx, db, testSessionOptions, session.ID, body)
		assert.NilError(t, err)
		assert.Assert(t, replacement.ID != session.ID)
		assert.Equal(t, replacement.OwnerID, owner)
		assert.Equal(t, replacement.Device, "laptop")
		assert.Equal(t, replacement.ClientAddr, "10.1.2.3")
		assert.Assert(t, newBody != body)

		// the old body no longer verifies, the new one does
		_, err = Verify(ctx, db, body)
		assert.ErrorIs(t, err, internal.ErrInvalidCredential)

		verified, err := Verify(ctx, db, newBody)
		assert.NilError(t, err)
		assert.Equal(t, verified.CredentialID, replacement.ID)

		old, err := data.GetSessionByID(db.WithContext(ctx), session.ID)
		assert.NilError(t, err)
		assert.Assert(t, old.RevokedAt != nil)
	})
	t.Run("wrong secret burns the session", func(t *testing.T) {
		session, body, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "")
		assert.NilError(t, err)

		_, otherBody, err := IssueSession(ctx, db, testSessionOptions, owner, "phone", "")
		assert.NilError(t, err)

		_, _, err = RotateSession(ctx, db, testSessionOptions, session.ID, otherBody)
		assert.ErrorIs(t, err, internal.ErrInvalidCredential)

		stored, err := data.GetSessionByID(db.WithContext(ctx), session.ID)
		assert.NilError(t, err)
		assert.Assert(t, stored.RevokedAt != nil)

		// the burned session can not be rotated even with the right body
		_, _, err = RotateSession(ctx, db, testSessionOptions, session.ID, body)
		assert.ErrorIs(t, err, internal.ErrRevoked)
	})
	t.Run("expired session", func(t *testing.T) {
		opts := SessionOptions{MaxActive: 3, TTL: time.Nanosecond}
		session, body, err := IssueSession(ctx, db, opts, owner, "laptop", "")
		assert.NilError(t, err)

		time.Sleep(time.Millisecond)
		_, _, err = RotateSession(ctx, db, testSessionOptions, session.ID, body)
		assert.ErrorIs(t, err, internal.ErrExpired)
	})
	t.Run("unknown session", func(t *testing.T) {
		_, _, err := RotateSession(ctx, db, testSessionOptions, uid.New(), "st_nosuchbody")
		assert.ErrorIs(t, err, internal.ErrNotFound)
	})
}

func TestRevokeSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	session, body, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "")
	assert.NilError(t, err)

	assert.NilError(t, RevokeSession(ctx, db, session.ID))

	_, err = Verify(ctx, db, body)
	assert.ErrorIs(t, err, internal.ErrInvalidCredential)

	// revoking again, or revoking a session that never existed, is a no-op
	assert.NilError(t, RevokeSession(ctx, db, session.ID))
	assert.NilError(t, RevokeSession(ctx, db, uid.New()))
}

func TestRevokeAllForOwner(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()
	bystander := uid.New()

	_, sessionBody, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "")
	assert.NilError(t, err)
	_, keyBody, err := IssueAccessKey(ctx, db, AccessKeyOptions{}, owner, "ci", []string{"read"}, nil)
	assert.NilError(t, err)

	_, otherBody, err := IssueSession(ctx, db, testSessionOptions, bystander, "phone", "")
	assert.NilError(t, err)

	assert.NilError(t, RevokeAllForOwner(ctx, db, owner))

	_, err = Verify(ctx, db, sessionBody)
	assert.ErrorIs(t, err, internal.ErrInvalidCredential)
	_, err = Verify(ctx, db, keyBody)
	assert.ErrorIs(t, err, internal.ErrInvalidCredential)

	active, err := ListActiveSessions(ctx, db, owner)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(active, 0))

	// the bystander is untouched
	_, err = Verify(ctx, db, otherBody)
	assert.NilError(t, err)
}

func TestListActiveSessions(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	owner := uid.New()

	first, _, err := IssueSession(ctx, db, testSessionOptions, owner, "laptop", "10.1.2.3")
	assert.NilError(t, err)
	second, _, err := IssueSession(ctx, db, testSessionOptions, owner, "phone", "10.4.5.6")
	assert.NilError(t, err)

	assert.NilError(t, RevokeSession(ctx, db, first.ID))

	active, err := ListActiveSessions(ctx, db, owner)
	assert.NilError(t, err)
	assert.Equal(t, len(active), 1)
	assert.Equal(t, active[0].ID, second.ID)
	assert.Equal(t, active[0].Device, "phone")
	assert.Equal(t, active[0].ClientAddr, "10.4.5.6")
}
