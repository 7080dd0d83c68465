package access

import (
	"context"
	"errors"
	"time"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/metrics"
	"github.com/keyfobhq/keyfob/uid"
)

// lastUsedTimeout bounds the background write that records when a credential
// was last presented. The write is best effort and must not outlive the
// verification by much.
const lastUsedTimeout = 5 * time.Second

// Verified is the result of a successful credential verification.
type Verified struct {
	OwnerID      uid.ID
	Kind         token.Kind
	CredentialID uid.ID

	// Device and ClientAddr are set for sessions.
	Device     string
	ClientAddr string

	// Name and Scopes are set for access keys.
	Name   string
	Scopes []string
}

// Verify authenticates a presented credential body. It dispatches on the
// body's kind prefix, proves the secret against the stored hash, and checks
// that the credential is still usable.
//
// Every client-caused failure comes back as ErrInvalidCredential. Whether the
// credential does not exist, is expired, is revoked, or simply has the wrong
// secret is recorded in metrics and logs, never in the error: an attacker
// probing bodies learns nothing from the response. Store failures are the one
// exception, they surface as ErrStoreUnavailable so the caller can retry.
func Verify(ctx context.Context, db *data.DB, body string) (*Verified, error) {
	kind, lookupKey, secret, err := token.Parse(body)
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, internal.ErrInvalidCredential
	}

	var verified *Verified
	switch kind {
	case token.KindSession:
		verified, err = verifySession(db.WithContext(ctx), lookupKey, secret)
	case token.KindAccessKey:
		verified, err = verifyAccessKey(db.WithContext(ctx), lookupKey, secret)
	default:
		metrics.VerifyTotal.WithLabelValues(kind.String(), "malformed").Inc()
		return nil, internal.ErrInvalidCredential
	}

	if err != nil {
		metrics.VerifyTotal.WithLabelValues(kind.String(), resultLabel(err)).Inc()
		return nil, collapse(err)
	}

	metrics.VerifyTotal.WithLabelValues(kind.String(), "success").Inc()
	touchLastUsed(db, verified)
	return verified, nil
}

func verifySession(tx data.ReadTxn, lookupKey, secret string) (*Verified, error) {
	candidates, err := data.GetSessionsByLookupKey(tx, lookupKey)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		session := &candidates[i]
		if !token.Verify(secret, session.SecretHash) {
			continue
		}
		if err := usable(session.ExpiresAt, session.RevokedAt); err != nil {
			return nil, err
		}
		return &Verified{
			OwnerID:      session.OwnerID,
			Kind:         token.KindSession,
			CredentialID: session.ID,
			Device:       session.Device,
			ClientAddr:   session.ClientAddr,
		}, nil
	}
	return nil, internal.ErrNotFound
}

func verifyAccessKey(tx data.ReadTxn, lookupKey, secret string) (*Verified, error) {
	candidates, err := data.GetAccessKeysByLookupKey(tx, lookupKey)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		key := &candidates[i]
		if !token.Verify(secret, key.SecretHash) {
			continue
		}
		if err := usable(key.ExpiresAt, key.RevokedAt); err != nil {
			return nil, err
		}
		return &Verified{
			OwnerID:      key.OwnerID,
			Kind:         token.KindAccessKey,
			CredentialID: key.ID,
			Name:         key.Name,
			Scopes:       key.Scopes,
		}, nil
	}
	return nil, internal.ErrNotFound
}

func usable(expiresAt, revokedAt *time.Time) error {
	switch {
	case revokedAt != nil:
		return internal.ErrRevoked
	case expiresAt != nil && !expiresAt.After(time.Now().UTC()):
		return internal.ErrExpired
	}
	return nil
}

// collapse hides the distinction between the client-caused failures. Store
// failures pass through so the caller can tell a bad credential from a bad
// day.
func collapse(err error) error {
	switch {
	case errors.Is(err, internal.ErrNotFound),
		errors.Is(err, internal.ErrExpired),
		errors.Is(err, internal.ErrRevoked):
		return internal.ErrInvalidCredential
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, internal.ErrNotFound):
		return "not_found"
	case errors.Is(err, internal.ErrExpired):
		return "expired"
	case errors.Is(err, internal.ErrRevoked):
		return "revoked"
	case errors.Is(err, internal.ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "error"
}

// touchLastUsed records the presentation time off the request path. A failed
// write is logged and otherwise ignored; last used is advisory.
func touchLastUsed(db *data.DB, verified *Verified) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()

		tx := db.WithContext(ctx)
		now := time.Now().UTC()

		var err error
		switch verified.Kind {
		case token.KindSession:
			err = data.SetSessionLastUsed(tx, verified.CredentialID, now)
		case token.KindAccessKey:
			err = data.SetAccessKeyLastUsed(tx, verified.CredentialID, now)
		}
		if err != nil {
			logging.Warnf("failed to update last used time for %v %v: %v",
				verified.Kind, verified.CredentialID, err)
		}
	}()
}
