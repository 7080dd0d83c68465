package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/uid"
)

// AccessKeyOptions configure access key issuance.
type AccessKeyOptions struct {
	// MaxActive caps the number of active keys one owner may hold. Zero
	// means uncapped, which is the usual deployment.
	MaxActive int
	// DefaultTTL is applied when the caller does not pass an expiry. Zero
	// means keys without an explicit expiry never expire.
	DefaultTTL time.Duration
}

// IssueAccessKey creates a standing credential for ownerID with the given
// label and scopes, and returns it along with the bearer body. The body can
// not be retrieved again. Scopes are stored and returned verbatim; this
// subsystem does not interpret them.
func IssueAccessKey(ctx context.Context, db *data.DB, opts AccessKeyOptions, ownerID uid.ID, name string, scopes []string, expiresAt *time.Time) (*models.AccessKey, string, error) {
	if ownerID == 0 {
		return nil, "", fmt.Errorf("ownerID is required")
	}

	generated, err := token.Generate(token.KindAccessKey)
	if err != nil {
		return nil, "", fmt.Errorf("generate access key secret: %w", err)
	}

	if expiresAt == nil && opts.DefaultTTL > 0 {
		expiry := time.Now().UTC().Add(opts.DefaultTTL)
		expiresAt = &expiry
	}

	key := &models.AccessKey{
		Credential: models.Credential{
			OwnerID:    ownerID,
			LookupKey:  generated.LookupKey,
			SecretHash: generated.Hash,
			ExpiresAt:  expiresAt,
		},
		Name:   name,
		Scopes: models.CommaSeparatedStrings(scopes),
	}

	err = db.InTransaction(ctx, func(tx data.GormTxn) error {
		if err := data.CreateAccessKey(tx, key); err != nil {
			return err
		}
		if opts.MaxActive > 0 {
			return trimAccessKeys(tx, ownerID, opts.MaxActive)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return key, generated.Body, nil
}

func trimAccessKeys(tx data.GormTxn, ownerID uid.ID, maxActive int) error {
	active, err := data.ListAccessKeys(tx, data.ListAccessKeysOptions{
		ByOwnerID:  ownerID,
		ActiveOnly: true,
	})
	if err != nil {
		return fmt.Errorf("%w: count active keys: %v", internal.ErrCapacityExceeded, err)
	}

	for _, key := range active[:excess(len(active), maxActive)] {
		if err := data.RevokeAccessKey(tx, key.ID); err != nil {
			return fmt.Errorf("%w: trim access key: %v", internal.ErrCapacityExceeded, err)
		}
	}
	return nil
}

// RotateAccessKey supersedes an access key with a new one carrying the same
// label, scopes, and expiry. Rotation is a management action by an already
// authenticated owner, so unlike session rotation it does not require
// presenting the old secret. The old key stays valid until the new one is
// committed.
func RotateAccessKey(ctx context.Context, db *data.DB, ownerID uid.ID, keyID uid.ID) (*models.AccessKey, string, error) {
	key, err := data.GetAccessKeyByID(db.WithContext(ctx), keyID)
	if err != nil {
		return nil, "", err
	}
	if key.OwnerID != ownerID {
		return nil, "", internal.ErrOwnerMismatch
	}

	now := time.Now().UTC()
	switch {
	case key.RevokedAt != nil:
		return nil, "", internal.ErrRevoked
	case key.ExpiresAt != nil && !key.ExpiresAt.After(now):
		return nil, "", internal.ErrExpired
	}

	generated, err := token.Generate(token.KindAccessKey)
	if err != nil {
		return nil, "", fmt.Errorf("generate access key secret: %w", err)
	}

	replacement := &models.AccessKey{
		Credential: models.Credential{
			OwnerID:    key.OwnerID,
			LookupKey:  generated.LookupKey,
			SecretHash: generated.Hash,
			ExpiresAt:  key.ExpiresAt,
		},
		Name:   key.Name,
		Scopes: key.Scopes,
	}

	err = db.InTransaction(ctx, func(tx data.GormTxn) error {
		if err := data.CreateAccessKey(tx, replacement); err != nil {
			return err
		}
		return data.RevokeAccessKey(tx, key.ID)
	})
	if err != nil {
		return nil, "", err
	}

	return replacement, generated.Body, nil
}

// RevokeAccessKey revokes a key owned by ownerID. Revoking a key that is
// already revoked, or that no longer exists, is not an error.
func RevokeAccessKey(ctx context.Context, db *data.DB, ownerID uid.ID, keyID uid.ID) error {
	key, err := data.GetAccessKeyByID(db.WithContext(ctx), keyID)
	switch {
	case errors.Is(err, internal.ErrNotFound):
		return nil
	case err != nil:
		return err
	case key.OwnerID != ownerID:
		return internal.ErrOwnerMismatch
	}

	return data.RevokeAccessKey(db.WithContext(ctx), keyID)
}

// AccessKeyStatus is the lifecycle state shown in key listings.
type AccessKeyStatus string

const (
	AccessKeyActive  AccessKeyStatus = "active"
	AccessKeyExpired AccessKeyStatus = "expired"
	AccessKeyRevoked AccessKeyStatus = "revoked"
)

// AccessKeySummary describes a key to its owner. It never contains the
// secret or its hash.
type AccessKeySummary struct {
	ID         uid.ID
	Name       string
	Scopes     []string
	Status     AccessKeyStatus
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
}

// ListAccessKeys returns all of the owner's keys, including revoked and
// expired ones that the sweeper has not deleted yet, oldest first.
func ListAccessKeys(ctx context.Context, db *data.DB, ownerID uid.ID) ([]AccessKeySummary, error) {
	keys, err := data.ListAccessKeys(db.WithContext(ctx), data.ListAccessKeysOptions{
		ByOwnerID: ownerID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]AccessKeySummary, 0, len(keys))
	for _, key := range keys {
		status := AccessKeyActive
		switch {
		case key.RevokedAt != nil:
			status = AccessKeyRevoked
		case key.ExpiresAt != nil && !key.ExpiresAt.After(now):
			status = AccessKeyExpired
		}

		result = append(result, AccessKeySummary{
			ID:         key.ID,
			Name:       key.Name,
			Scopes:     key.Scopes,
			Status:     status,
			CreatedAt:  key.CreatedAt,
			LastUsedAt: key.LastUsedAt,
			ExpiresAt:  key.ExpiresAt,
			RevokedAt:  key.RevokedAt,
		})
	}
	return result, nil
}
