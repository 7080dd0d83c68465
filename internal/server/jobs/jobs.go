// Package jobs holds the background maintenance jobs run by the server.
package jobs

import (
	"context"
	"time"

	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/token"
	"github.com/keyfobhq/keyfob/metrics"
)

// RemoveExpiredSessions deletes session rows that were revoked or expired
// before currentTime minus retention. Rows inside the retention window are
// kept so recent terminations remain auditable.
func RemoveExpiredSessions(ctx context.Context, tx *data.DB, retention time.Duration, currentTime time.Time) error {
	deleted, err := data.DeleteSessionsOlderThan(tx.WithContext(ctx), currentTime.Add(-retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logging.Infof("removed %d expired or revoked sessions", deleted)
	}
	metrics.SweepDeletedTotal.WithLabelValues(token.KindSession.String()).Add(float64(deleted))
	return nil
}

// RemoveExpiredAccessKeys deletes access key rows that were revoked or
// expired before currentTime minus retention.
func RemoveExpiredAccessKeys(ctx context.Context, tx *data.DB, retention time.Duration, currentTime time.Time) error {
	deleted, err := data.DeleteAccessKeysOlderThan(tx.WithContext(ctx), currentTime.Add(-retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logging.Infof("removed %d expired or revoked access keys", deleted)
	}
	metrics.SweepDeletedTotal.WithLabelValues(token.KindAccessKey.String()).Add(float64(deleted))
	return nil
}
