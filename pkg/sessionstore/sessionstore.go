// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sessionstore is an scs.CtxStore backed by the sessions table. The
// queries use ? placeholders and upsert syntax understood by both SQLite and
// Postgres, so the store works on either engine behind internal/database.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

type DB interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type OptFunc func(*Store)

// WithCleanupInterval sets how often expired sessions are deleted. Zero
// disables the cleanup goroutine.
func WithCleanupInterval(interval time.Duration) OptFunc {
	return func(s *Store) {
		s.cleanupInterval = interval
	}
}

type Store struct {
	db              DB
	stopCleanup     chan struct{}
	cleanupInterval time.Duration
	now             func() time.Time
}

// New returns a store that deletes expired sessions every 5 minutes unless
// configured otherwise.
func New(db DB, opts ...OptFunc) *Store {
	s := &Store{
		db:              db,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		s.stopCleanup = make(chan struct{})
		go s.startCleanup()
	}

	return s
}

func (s *Store) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

// FindCtx returns the session data. Expired sessions are reported as not
// found.
func (s *Store) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE token = ? AND expiry > ?", token, s.now().Unix()).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *Store) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, data, expiry) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET data = excluded.data, expiry = excluded.expiry
	`, token, b, expiry.Unix())
	return err
}

func (s *Store) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *Store) DeleteCtx(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

func (s *Store) All() (map[string][]byte, error) {
	return s.AllCtx(context.Background())
}

// AllCtx returns the data of every live session keyed by token.
func (s *Store) AllCtx(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT token, data FROM sessions WHERE expiry > ?", s.now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make(map[string][]byte)
	for rows.Next() {
		var token string
		var data []byte
		if err := rows.Scan(&token, &data); err != nil {
			return nil, err
		}
		sessions[token] = data
	}

	return sessions, rows.Err()
}

// StopCleanup terminates the cleanup goroutine. Call it before closing the
// database.
func (s *Store) StopCleanup() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
		s.stopCleanup = nil
	}
}

func (s *Store) startCleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	stop := s.stopCleanup
	for {
		select {
		case <-ticker.C:
			if _, err := s.DeleteExpired(context.Background()); err != nil {
				log.Error().Err(err).Msg("sessionstore: unable to delete expired sessions")
			}
		case <-stop:
			return
		}
	}
}

// DeleteExpired removes expired sessions and returns how many were deleted.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expiry <= ?", s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
