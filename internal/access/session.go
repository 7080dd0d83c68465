// Package access implements the credential managers: session issuance and
// rotation, access key management, and verification of presented secrets.
// Callers are expected to have authenticated the owner already; this package
// trusts the owner identity it is given.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/metrics"
	"github.com/keyfobhq/keyfob/uid"
)

// SessionOptions configure session issuance. Both fields are required; there
// are no built-in defaults.
type SessionOptions struct {
	// MaxActive is the highest number of concurrently active sessions one
	// owner may hold. Issuing past the cap revokes the oldest sessions.
	MaxActive int
	// TTL is how long a new session lasts before it expires.
	TTL time.Duration
}

func (o SessionOptions) validate() error {
	if o.MaxActive < 1 {
		return fmt.Errorf("session max active must be at least 1")
	}
	if o.TTL <= 0 {
		return fmt.Errorf("session TTL is required")
	}
	return nil
}

// IssueSession creates a session for ownerID and returns it along with the
// bearer body. The body can not be retrieved again.
//
// The cap on active sessions is enforced after the insert, by revoking the
// oldest active sessions until the owner is back within MaxActive. Checking
// before the insert would race concurrent logins: both could pass the check
// and both could land. Trimming after the fact is idempotent, so no matter
// how many concurrent issuances land, the next one converges the count.
func IssueSession(ctx context.Context, db *data.DB, opts SessionOptions, ownerID uid.ID, device, clientAddr string) (*models.Session, string, error) {
	if err := opts.validate(); err != nil {
		return nil, "", err
	}
	if ownerID == 0 {
		return nil, "", fmt.Errorf("ownerID is required")
	}

	generated, err := token.Generate(token.KindSession)
	if err != nil {
		return nil, "", fmt.Errorf("generate session secret: %w", err)
	}

	expires := time.Now().UTC().Add(opts.TTL)
	session := &models.Session{
		Credential: models.Credential{
			OwnerID:    ownerID,
			LookupKey:  generated.LookupKey,
			SecretHash: generated.Hash,
			ExpiresAt:  &expires,
		},
		Device:     device,
		ClientAddr: clientAddr,
	}

	err = db.InTransaction(ctx, func(tx data.GormTxn) error {
		if err := data.CreateSession(tx, session); err != nil {
			return err
		}
		return trimSessions(tx, ownerID, opts.MaxActive)
	})
	if err != nil {
		return nil, "", err
	}

	return session, generated.Body, nil
}

// trimSessions revokes the oldest active sessions of ownerID until at most
// maxActive remain.
func trimSessions(tx data.GormTxn, ownerID uid.ID, maxActive int) error {
	active, err := data.ListSessions(tx, data.ListSessionsOptions{
		ByOwnerID:  ownerID,
		ActiveOnly: true,
	})
	if err != nil {
		return fmt.Errorf("%w: count active sessions: %v", internal.ErrCapacityExceeded, err)
	}

	for _, session := range active[:excess(len(active), maxActive)] {
		if err := data.RevokeSession(tx, session.ID); err != nil {
			return fmt.Errorf("%w: trim session: %v", internal.ErrCapacityExceeded, err)
		}
		metrics.SessionsTrimmedTotal.Inc()
	}
	return nil
}

func excess(count, max int) int {
	if count <= max {
		return 0
	}
	return count - max
}

// RotateSession supersedes a session with a new one for the same owner and
// device. The presented body must verify against the existing session. A
// presented body that does not verify revokes the session it named: a failed
// rotation is treated as a signal that the secret may have leaked.
//
// The new session is inserted before the old one is revoked, so a crash in
// between leaves the owner with a working credential, never with none.
func RotateSession(ctx context.Context, db *data.DB, opts SessionOptions, sessionID uid.ID, presented string) (*models.Session, string, error) {
	if err := opts.validate(); err != nil {
		return nil, "", err
	}

	session, err := data.GetSessionByID(db.WithContext(ctx), sessionID)
	if err != nil {
		return nil, "", err
	}

	kind, lookupKey, secret, err := token.Parse(presented)
	if err != nil || kind != token.KindSession ||
		!token.SameLookupKey(lookupKey, session.LookupKey) ||
		!token.Verify(secret, session.SecretHash) {
		// burn the session; a rotation attempt with the wrong secret
		// means someone other than the owner may hold the real one
		if revokeErr := data.RevokeSession(db.WithContext(ctx), session.ID); revokeErr != nil {
			return nil, "", fmt.Errorf("revoke after failed rotation: %w", revokeErr)
		}
		return nil, "", internal.ErrInvalidCredential
	}

	now := time.Now().UTC()
	switch {
	case session.RevokedAt != nil:
		return nil, "", internal.ErrRevoked
	case session.ExpiresAt != nil && !session.ExpiresAt.After(now):
		return nil, "", internal.ErrExpired
	}

	generated, err := token.Generate(token.KindSession)
	if err != nil {
		return nil, "", fmt.Errorf("generate session secret: %w", err)
	}

	expires := now.Add(opts.TTL)
	replacement := &models.Session{
		Credential: models.Credential{
			OwnerID:    session.OwnerID,
			LookupKey:  generated.LookupKey,
			SecretHash: generated.Hash,
			ExpiresAt:  &expires,
		},
		Device:     session.Device,
		ClientAddr: session.ClientAddr,
	}

	err = db.InTransaction(ctx, func(tx data.GormTxn) error {
		// insert the new session first; the old one stays valid until
		// it is explicitly revoked
		if err := data.CreateSession(tx, replacement); err != nil {
			return err
		}
		return data.RevokeSession(tx, session.ID)
	})
	if err != nil {
		return nil, "", err
	}

	return replacement, generated.Body, nil
}

// RevokeSession revokes a session. Revoking a session that is already
// revoked, or that does not exist, is not an error.
func RevokeSession(ctx context.Context, db *data.DB, sessionID uid.ID) error {
	return data.RevokeSession(db.WithContext(ctx), sessionID)
}

// RevokeAllForOwner revokes every credential of the owner, sessions and
// access keys both. The account deletion workflow calls this when a deletion
// is confirmed.
func RevokeAllForOwner(ctx context.Context, db *data.DB, ownerID uid.ID) error {
	return db.InTransaction(ctx, func(tx data.GormTxn) error {
		if err := data.RevokeSessionsByOwner(tx, ownerID); err != nil {
			return err
		}
		return data.RevokeAccessKeysByOwner(tx, ownerID)
	})
}

// SessionSummary describes a session to its owner. It never contains the
// secret or its hash.
type SessionSummary struct {
	ID         uid.ID
	Device     string
	ClientAddr string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
}

// ListActiveSessions returns the owner's active sessions, oldest first, so
// owners can audit and terminate them.
func ListActiveSessions(ctx context.Context, db *data.DB, ownerID uid.ID) ([]SessionSummary, error) {
	sessions, err := data.ListSessions(db.WithContext(ctx), data.ListSessionsOptions{
		ByOwnerID:  ownerID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}

	result := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, SessionSummary{
			ID:         session.ID,
			Device:     session.Device,
			ClientAddr: session.ClientAddr,
			CreatedAt:  session.CreatedAt,
			LastUsedAt: session.LastUsedAt,
			ExpiresAt:  session.ExpiresAt,
		})
	}
	return result, nil
}
