package models

import (
	"time"

	"github.com/keyfobhq/keyfob/uid"
)

// Credential is the shape shared by both credential kinds. The raw secret is
// never part of this struct; only its bcrypt hash and the non-secret lookup
// key are stored.
type Credential struct {
	// OwnerID is the account this credential authenticates. Immutable.
	OwnerID uid.ID `gorm:"index"`
	// LookupKey is a short non-secret fragment used to locate the row.
	// Collisions are possible, so a row found by lookup key is never a
	// match until the secret hash has been compared. Immutable.
	LookupKey string `gorm:"index"`
	// SecretHash is the bcrypt digest of the secret. Immutable; rotation
	// inserts a new row instead of replacing the hash.
	SecretHash []byte

	LastUsedAt *time.Time
	ExpiresAt  *time.Time `gorm:"index"`
	RevokedAt  *time.Time `gorm:"index"`
}

// Usable reports whether the credential may authenticate at instant now:
// not revoked and, when it carries an expiry, not expired.
func (c Credential) Usable(now time.Time) bool {
	if c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}
