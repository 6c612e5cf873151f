// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

type ContentType string

const (
	ContentSeries     ContentType = "series"
	ContentSeason     ContentType = "season"
	ContentImage      ContentType = "image"
	ContentSubtitle   ContentType = "subtitle"
	ContentGrouping   ContentType = "grouping"
	ContentPermission ContentType = "permission"
)

func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToLower(s)) {
	case ContentSeries, ContentSeason, ContentImage, ContentSubtitle, ContentGrouping, ContentPermission:
		return ContentType(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown model %q", s)
	}
}

type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToUpper(s)) {
	case OpCreate, OpUpdate, OpDelete:
		return Operation(strings.ToUpper(s)), nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// AsWho describes the actor's relation to the entry author.
type AsWho string

const (
	AsAuthor  AsWho = "author"
	AsMaster  AsWho = "master"
	AsSlave   AsWho = "slave"
	AsStaff   AsWho = "staff"
	AsGrantee AsWho = "grantee"
)

type ChangeLogEntry struct {
	ID          int            `json:"id"`
	ContentType ContentType    `json:"model"`
	ObjectID    int            `json:"object_id"`
	UserID      *int           `json:"user"`
	Username    string         `json:"username,omitempty"`
	AsWho       AsWho          `json:"as_who"`
	Operation   Operation      `json:"operation"`
	State       map[string]any `json:"state"`
	AccessTime  time.Time      `json:"access_time"`
}

type ChangeLogFilter struct {
	ContentType ContentType
	ObjectID    int
	UserID      *int
	Operation   Operation
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

type ChangeLogStore struct {
	db dbinterface.Querier
}

func NewChangeLogStore(db dbinterface.Querier) *ChangeLogStore {
	return &ChangeLogStore{db: db}
}

func (s *ChangeLogStore) Tx(q dbinterface.Querier) *ChangeLogStore {
	return &ChangeLogStore{db: q}
}

func (s *ChangeLogStore) Record(ctx context.Context, entry *ChangeLogEntry) error {
	state := entry.State
	if state == nil {
		state = map[string]any{}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode change log state: %w", err)
	}

	if entry.AccessTime.IsZero() {
		entry.AccessTime = now()
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO change_log (content_type, object_id, user_id, as_who, operation, state, access_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		string(entry.ContentType),
		entry.ObjectID,
		nullableInt(entry.UserID),
		string(entry.AsWho),
		string(entry.Operation),
		string(payload),
		entry.AccessTime,
	).Scan(&entry.ID)
}

func (f ChangeLogFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.ContentType != "" {
		clauses = append(clauses, "c.content_type = ?")
		args = append(args, string(f.ContentType))
	}
	if f.ObjectID > 0 {
		clauses = append(clauses, "c.object_id = ?")
		args = append(args, f.ObjectID)
	}
	if f.UserID != nil {
		clauses = append(clauses, "c.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Operation != "" {
		clauses = append(clauses, "c.operation = ?")
		args = append(args, string(f.Operation))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "c.access_time >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "c.access_time < ?")
		args = append(args, f.Until.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns matching entries newest first together with the total count.
func (s *ChangeLogStore) List(ctx context.Context, filter ChangeLogFilter) ([]*ChangeLogEntry, int, error) {
	where, args := filter.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_log c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT c.id, c.content_type, c.object_id, c.user_id, COALESCE(u.username, ''),
			c.as_who, c.operation, c.state, c.access_time
		FROM change_log c
		LEFT JOIN users u ON u.id = c.user_id` + where + `
		ORDER BY c.access_time DESC, c.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []*ChangeLogEntry{}
	for rows.Next() {
		entry, err := scanChangeLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// History is List narrowed to one object.
func (s *ChangeLogStore) History(ctx context.Context, contentType ContentType, objectID, limit, offset int) ([]*ChangeLogEntry, int, error) {
	return s.List(ctx, ChangeLogFilter{
		ContentType: contentType,
		ObjectID:    objectID,
		Limit:       limit,
		Offset:      offset,
	})
}

func (s *ChangeLogStore) Get(ctx context.Context, id int) (*ChangeLogEntry, error) {
	entry, err := scanChangeLog(s.db.QueryRowContext(ctx, `
		SELECT c.id, c.content_type, c.object_id, c.user_id, COALESCE(u.username, ''),
			c.as_who, c.operation, c.state, c.access_time
		FROM change_log c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChangeLogNotFound
		}
		return nil, err
	}
	return entry, nil
}

func scanChangeLog(row rowScanner) (*ChangeLogEntry, error) {
	var (
		entry     ChangeLogEntry
		userID    sql.NullInt64
		kind, who string
		operation string
		state     string
	)
	if err := row.Scan(&entry.ID, &kind, &entry.ObjectID, &userID, &entry.Username,
		&who, &operation, &state, &entry.AccessTime); err != nil {
		return nil, err
	}
	entry.ContentType = ContentType(kind)
	entry.AsWho = AsWho(who)
	entry.Operation = Operation(operation)
	if userID.Valid {
		v := int(userID.Int64)
		entry.UserID = &v
	}
	entry.State = map[string]any{}
	if state != "" {
		if err := json.Unmarshal([]byte(state), &entry.State); err != nil {
			return nil, fmt.Errorf("decode change log state %d: %w", entry.ID, err)
		}
	}
	return &entry, nil
}

// PurgeOlderThan deletes entries recorded before cutoff.
func (s *ChangeLogStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM change_log WHERE access_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
