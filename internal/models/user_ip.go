// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

// UserIP is the last time a user was seen from an address.
type UserIP struct {
	UserID     int       `json:"user_id"`
	IP         string    `json:"ip"`
	SampleTime time.Time `json:"sample_time"`
}

type UserIPStore struct {
	db dbinterface.Querier
}

func NewUserIPStore(db dbinterface.Querier) *UserIPStore {
	return &UserIPStore{db: db}
}

// Record upserts the (user, ip) pair and refreshes its sample time.
func (s *UserIPStore) Record(ctx context.Context, userID int, ip string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_ips (user_id, ip, sample_time) VALUES (?, ?, ?)
		ON CONFLICT (user_id, ip) DO UPDATE SET sample_time = excluded.sample_time
	`, userID, ip, now())
	return err
}

// List returns the addresses of a user, most recently seen first.
func (s *UserIPStore) List(ctx context.Context, userID int) ([]UserIP, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, ip, sample_time FROM user_ips
		WHERE user_id = ?
		ORDER BY sample_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ips := []UserIP{}
	for rows.Next() {
		var ip UserIP
		if err := rows.Scan(&ip.UserID, &ip.IP, &ip.SampleTime); err != nil {
			return nil, err
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}
