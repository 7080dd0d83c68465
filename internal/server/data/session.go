package data

import (
	"fmt"
	"time"

	"github.com/keyfobhq/keyfob/internal/server/data/querybuilder"
	"github.com/keyfobhq/keyfob/internal/server/models"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/uid"
)

type sessionsTable models.Session

func (sessionsTable) Table() string {
	return "sessions"
}

func (sessionsTable) Columns() []string {
	return []string{"client_addr", "created_at", "device", "expires_at", "id", "last_used_at", "lookup_key", "owner_id", "revoked_at", "secret_hash", "updated_at"}
}

func (s sessionsTable) Values() []interface{} {
	return []interface{}{s.ClientAddr, s.CreatedAt, s.Device, s.ExpiresAt, s.ID, s.LastUsedAt, s.LookupKey, s.OwnerID, s.RevokedAt, s.SecretHash, s.UpdatedAt}
}

func (s *sessionsTable) ScanFields() []interface{} {
	return []interface{}{&s.ClientAddr, &s.CreatedAt, &s.Device, &s.ExpiresAt, &s.ID, &s.LastUsedAt, &s.LookupKey, &s.OwnerID, &s.RevokedAt, &s.SecretHash, &s.UpdatedAt}
}

func CreateSession(tx WriteTxn, session *models.Session) error {
	switch {
	case session.OwnerID == 0:
		return fmt.Errorf("ownerID is required")
	case len(session.LookupKey) != token.LookupKeyLength:
		return fmt.Errorf("invalid lookup key length")
	case len(session.SecretHash) == 0:
		return fmt.Errorf("secretHash is required")
	}

	if session.ID == 0 {
		session.ID = uid.New()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	return insert(tx, (*sessionsTable)(session))
}

func GetSessionByID(tx ReadTxn, id uid.ID) (*models.Session, error) {
	session := &sessionsTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(session))
	query.B("FROM sessions")
	query.B("WHERE id = ?", id)

	err := tx.QueryRow(query.String(), query.Args...).Scan(session.ScanFields()...)
	if err != nil {
		return nil, handleReadError(err)
	}
	return (*models.Session)(session), nil
}

// GetSessionsByLookupKey returns every session row that shares lookupKey.
// The lookup key is shorter than the secret, so collisions are possible and
// all candidates must be checked against the secret hash by the caller.
func GetSessionsByLookupKey(tx ReadTxn, lookupKey string) ([]models.Session, error) {
	table := &sessionsTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(table))
	query.B("FROM sessions")
	query.B("WHERE lookup_key = ?", lookupKey)

	rows, err := tx.Query(query.String(), query.Args...)
	if err != nil {
		return nil, handleError(err)
	}
	result, err := scanRows(rows, func(session *models.Session) []interface{} {
		return (*sessionsTable)(session).ScanFields()
	})
	return result, handleError(err)
}

type ListSessionsOptions struct {
	ByOwnerID uid.ID
	// ActiveOnly excludes revoked sessions and sessions that expired
	// before the current time.
	ActiveOnly bool
}

// ListSessions returns sessions ordered from oldest to newest.
func ListSessions(tx ReadTxn, opts ListSessionsOptions) ([]models.Session, error) {
	table := &sessionsTable{}
	query := querybuilder.New("SELECT")
	query.B(columnsForSelect(table))
	query.B("FROM sessions")
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
	result, err := scanRows(rows, func(session *models.Session) []interface{} {
		return (*sessionsTable)(session).ScanFields()
	})
	return result, handleError(err)
}

// RevokeSession marks the session revoked. Revoking a session that is
// already revoked, or that does not exist, is not an error.
func RevokeSession(tx WriteTxn, id uid.ID) error {
	now := time.Now().UTC()
	query := querybuilder.New("UPDATE sessions")
	query.B("SET revoked_at = ?, updated_at = ?", now, now)
	query.B("WHERE id = ? AND revoked_at IS NULL", id)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

func RevokeSessionsByOwner(tx WriteTxn, ownerID uid.ID) error {
	now := time.Now().UTC()
	query := querybuilder.New("UPDATE sessions")
	query.B("SET revoked_at = ?, updated_at = ?", now, now)
	query.B("WHERE owner_id = ? AND revoked_at IS NULL", ownerID)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

func SetSessionLastUsed(tx WriteTxn, id uid.ID, used time.Time) error {
	query := querybuilder.New("UPDATE sessions")
	query.B("SET last_used_at = ?", used.UTC())
	query.B("WHERE id = ?", id)

	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

// DeleteSessionsOlderThan removes rows whose revocation or expiry happened
// before cutoff. Matching zero rows is not an error, so it is safe to run
// concurrently with itself.
func DeleteSessionsOlderThan(tx WriteTxn, cutoff time.Time) (int64, error) {
	query := querybuilder.New("DELETE FROM sessions")
	query.B("WHERE (revoked_at IS NOT NULL AND revoked_at < ?)", cutoff.UTC())
	query.B("OR (expires_at IS NOT NULL AND expires_at < ?)", cutoff.UTC())

	result, err := tx.Exec(query.String(), query.Args...)
	if err != nil {
		return 0, handleError(err)
	}
	deleted, err := result.RowsAffected()
	return deleted, handleError(err)
}
