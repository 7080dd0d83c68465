package data

import (
	"fmt"
	"time"

	"github.com/keyfobhq/keyfob/internal/server/data/querybuilder"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/uid"
)

type accessKeysTable models.AccessKey

func (accessKeysTable) Table() string {
	return "access_keys"
}

func (accessKeysTable) Columns() []string {
	return []string{"created_at", "expires_at", "id", "last_used_at", "lookup_key", "name", "owner_id", "revoked_at", "scopes", "secret_hash", "updated_at"}
}

func (a accessKeysTable) Values() []interface{} {
	return []interface{}{a.CreatedAt, a.ExpiresAt, a.ID, a.LastUsedAt, a.LookupKey, a.Name, a.OwnerID, a.RevokedAt, a.Scopes, a.SecretHash, a.UpdatedAt}
}

func (a *accessKeysTable) ScanFields() []interface{} {
	return []interface{}{&a.CreatedAt, &a.ExpiresAt, &a.ID, &a.LastUsedAt, &a.LookupKey, &a.Name, &a.OwnerID, &a.RevokedAt, &a.Scopes, &a.SecretHash, &a.UpdatedAt}
}

func CreateAccessKey(tx WriteTxn, key *models.AccessKey) error {
	switch {
	case key.OwnerID == 0:
		return fmt.Errorf("ownerID is required")
	case len(key.LookupKey) != token.LookupKeyLength:
		return fmt.Errorf("invalid lookup key length")
	case len(key.SecretHash) == 0:
		return fmt.Errorf("secretHash is required")
	}

	if key.ID == 0 {
		key.ID = uid.New()
	}
	if key.Name == "" {
		// set a default name for look-up and CLI usage
		key.Name = fmt.Sprintf("%s-%s", key.OwnerID, key.ID)
	}
	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	key.UpdatedAt = now

	return insert(tx, (*accessKeysTable)(key))
}

func GetAccessKeyByID(tx ReadTxn, id uid.ID) (*models.AccessKey, error) {
	key := &accessKeysTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(key))
	query.B("FROM access_keys")
	query.B("WHERE id = ?", id)

	err := tx.QueryRow(query.String(), query.Args...).Scan(key.ScanFields()...)
	if err != nil {
		return nil, handleReadError(err)
	}
	return (*models.AccessKey)(key), nil
}

// GetAccessKeysByLookupKey returns every key row that shares lookupKey. All
// candidates must be checked against the secret hash by the caller.
func GetAccessKeysByLookupKey(tx ReadTxn, lookupKey string) ([]models.AccessKey, error) {
	table := &accessKeysTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(table))
	query.B("FROM access_keys")
	query.B("WHERE lookup_key = ?", lookupKey)

	rows, err := tx.Query(query.String(), query.Args...)
	if err != nil {
		return nil, handleError(err)
	}
	result, err := scanRows(rows, func(key *models.AccessKey) []interface{} {
		return (*accessKeysTable)(key).ScanFields()
	})
	return result, handleError(err)
}

type ListAccessKeysOptions struct {
	ByOwnerID uid.ID
	// ActiveOnly excludes revoked keys and keys that expired before the
	// current time.
	ActiveOnly bool
}

// ListAccessKeys returns access keys ordered from oldest to newest.
func ListAccessKeys(tx ReadTxn, opts ListAccessKeysOptions) ([]models.AccessKey, error) {
	table := &accessKeysTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(table))
	query.B("FROM access_keys")
	query.B("WHERE 1=1")
	if opts.ByOwnerID != 0 {
		query.B("AND owner_id = ?", opts.ByOwnerID)
	}
	if opts.ActiveOnly {
		query.B("AND revoked_at IS NULL")
		query.B("AND (expires_at IS NULL OR expires_at > ?)", time.Now().UTC())
	}
	query.B("ORDER BY created_at, id")

	rows, err := tx.Query(query.String(), query.Args...)
	if err != nil {
		return nil, handleError(err)
	}
	result, err := scanRows(rows, func(key *models.AccessKey) []interface{} {
		return (*accessKeysTable)(key).ScanFields()
	})
	return result, handleError(err)
}

// RevokeAccessKey marks the key revoked. Revoking a key that is already
// revoked, or that does not exist, is not an error.
func RevokeAccessKey(tx WriteTxn, id uid.ID) error {
	now := time.Now().UTC()
	query := querybuilder.New("UPDATE access_keys")
	query.B("SET revoked_at = ?, updated_at = ?", now, now)
	query.B("WHERE id = ? AND revoked_at IS NULL", id)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

func RevokeAccessKeysByOwner(tx WriteTxn, ownerID uid.ID) error {
	now := time.Now().UTC()
	query := querybuilder.New("UPDATE access_keys")
	query.B("SET revoked_at = ?, updated_at = ?", now, now)
	query.B("WHERE owner_id = ? AND revoked_at IS NULL", ownerID)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

func SetAccessKeyLastUsed(tx WriteTxn, id uid.ID, used time.Time) error {
	query := querybuilder.New("UPDATE access_keys")
	query.B("SET last_used_at = ?", used.UTC())
	query.B("WHERE id = ?", id)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

// DeleteAccessKeysOlderThan removes rows whose revocation or expiry happened
// before cutoff.
func DeleteAccessKeysOlderThan(tx WriteTxn, cutoff time.Time) (int64, error) {
	query := querybuilder.New("DELETE FROM access_keys")
	query.B("WHERE (revoked_at IS NOT NULL AND revoked_at < ?)", cutoff.UTC())
	query.B("OR (expires_at IS NOT NULL AND expires_at < ?)", cutoff.UTC())

	result, err := tx.Exec(query.String(), query.Args...)
	if err != nil {
		return 0, handleError(err)
	}
	deleted, err := result.RowsAffected()
	return deleted, handleError(err)
}
