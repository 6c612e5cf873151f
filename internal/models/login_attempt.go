// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

// LoginAttemptStore records failed logins per address.
type LoginAttemptStore struct {
	db dbinterface.Querier
}

func NewLoginAttemptStore(db dbinterface.Querier) *LoginAttemptStore {
	return &LoginAttemptStore{db: db}
}

func (s *LoginAttemptStore) RecordFailure(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (ip, attempted_at) VALUES (?, ?)`, ip, now())
	return err
}

func (s *LoginAttemptStore) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE ip = ? AND attempted_at >= ?`, ip, since.UTC(),
	).Scan(&count)
	return count, err
}

// Clear forgets the failures of an address, on successful login or after a ban.
func (s *LoginAttemptStore) Clear(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE ip = ?`, ip)
	return err
}

func (s *LoginAttemptStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
