// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

// BlacklistEntry blocks an address from RecordTime for Stretch. A zero
// Stretch never expires.
type BlacklistEntry struct {
	IP         string        `json:"ip"`
	RecordTime time.Time     `json:"record_time"`
	Stretch    time.Duration `json:"-"`
	Reason     string        `json:"reason"`
}

func (e *BlacklistEntry) Permanent() bool {
	return e.Stretch <= 0
}

// ExpiresAt returns the zero time for permanent entries.
func (e *BlacklistEntry) ExpiresAt() time.Time {
	if e.Permanent() {
		return time.Time{}
	}
	return e.RecordTime.Add(e.Stretch)
}

func (e *BlacklistEntry) ActiveAt(t time.Time) bool {
	if e.Permanent() {
		return true
	}
	return t.Before(e.ExpiresAt())
}

// NormalizeIP parses an address and returns its canonical form. IPv4-mapped
// IPv6 addresses are unmapped.
func NormalizeIP(raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", FieldError("ip", "enter a valid IPv4 or IPv6 address")
	}
	return addr.Unmap().WithZone("").String(), nil
}

type BlacklistStore struct {
	db dbinterface.Querier
}

func NewBlacklistStore(db dbinterface.Querier) *BlacklistStore {
	return &BlacklistStore{db: db}
}

func scanBlacklist(row rowScanner) (*BlacklistEntry, error) {
	var (
		entry   BlacklistEntry
		seconds int64
	)
	if err := row.Scan(&entry.IP, &entry.RecordTime, &seconds, &entry.Reason); err != nil {
		return nil, err
	}
	entry.Stretch = time.Duration(seconds) * time.Second
	return &entry, nil
}

// Upsert adds the address or replaces an existing entry for it.
func (s *BlacklistStore) Upsert(ctx context.Context, entry *BlacklistEntry) error {
	ip, err := NormalizeIP(entry.IP)
	if err != nil {
		return err
	}
	if entry.Stretch < 0 {
		return FieldError("stretch", "stretch must not be negative")
	}
	entry.IP = ip
	if entry.RecordTime.IsZero() {
		entry.RecordTime = now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ip_blacklist (ip, record_time, stretch_seconds, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT (ip) DO UPDATE SET
			record_time = excluded.record_time,
			stretch_seconds = excluded.stretch_seconds,
			reason = excluded.reason
	`, entry.IP, entry.RecordTime.UTC(), int64(entry.Stretch/time.Second), entry.Reason)
	if err != nil {
		return fmt.Errorf("blacklist %s: %w", entry.IP, err)
	}
	return nil
}

func (s *BlacklistStore) Get(ctx context.Context, ip string) (*BlacklistEntry, error) {
	normalized, err := NormalizeIP(ip)
	if err != nil {
		return nil, err
	}

	entry, err := scanBlacklist(s.db.QueryRowContext(ctx,
		`SELECT ip, record_time, stretch_seconds, reason FROM ip_blacklist WHERE ip = ?`, normalized))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBlacklistNotFound
		}
		return nil, err
	}
	return entry, nil
}

// List returns entries ordered by record time, newest first. When activeOnly
// is set expired entries are skipped.
func (s *BlacklistStore) List(ctx context.Context, activeOnly bool) ([]*BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, record_time, stretch_seconds, reason FROM ip_blacklist ORDER BY record_time DESC, ip`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	current := time.Now()
	entries := []*BlacklistEntry{}
	for rows.Next() {
		entry, err := scanBlacklist(rows)
		if err != nil {
			return nil, err
		}
		if activeOnly && !entry.ActiveAt(current) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *BlacklistStore) Remove(ctx context.Context, ip string) error {
	normalized, err := NormalizeIP(ip)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM ip_blacklist WHERE ip = ?`, normalized)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBlacklistNotFound
	}
	return nil
}

// PruneExpired removes entries whose ban has ended.
func (s *BlacklistStore) PruneExpired(ctx context.Context) (int, error) {
	entries, err := s.List(ctx, false)
	if err != nil {
		return 0, err
	}

	current := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.ActiveAt(current) {
			continue
		}
		if err := s.Remove(ctx, entry.IP); err != nil && !errors.Is(err, ErrBlacklistNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
