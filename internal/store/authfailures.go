package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuthFailure is the caller-facing view of a snmpv3_auth_failures row.
type AuthFailure struct {
	Username    string
	Hostname    *string
	NumFailures int
	LastFailure time.Time
}

// RecordAuthFailure upserts a per-username failure counter: on conflict it
// increments num_failures and refreshes hostname/last_failure; the first
// record for a username starts the counter at 1.
func (s *Store) RecordAuthFailure(ctx context.Context, username, hostname string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO snmpv3_auth_failures (id, username, hostname, num_failures, last_failure)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(username) DO UPDATE SET
			num_failures = snmpv3_auth_failures.num_failures + 1,
			hostname = excluded.hostname,
			last_failure = excluded.last_failure
	`, uuid.New().String(), username, hostname, now).Error
}

// ClearAuthFailure deletes the failure row for username. A missing row is
// a no-op, not an error.
func (s *Store) ClearAuthFailure(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).
		Where("username = ?", username).
		Delete(&authFailureRow{}).Error
}

// ListAuthFailures returns every failure row ordered by
// (num_failures DESC, last_failure DESC).
func (s *Store) ListAuthFailures(ctx context.Context) ([]AuthFailure, error) {
	var rows []authFailureRow
	if err := s.db.WithContext(ctx).
		Order("num_failures DESC, last_failure DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]AuthFailure, 0, len(rows))
	for _, r := range rows {
		out = append(out, AuthFailure{
			Username:    r.Username,
			Hostname:    r.Hostname,
			NumFailures: r.NumFailures,
			LastFailure: r.LastFailure,
		})
	}
	return out, nil
}
