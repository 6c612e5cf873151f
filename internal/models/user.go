// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

type User struct {
	ID           int        `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Country      string     `json:"country"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	Deleted      bool       `json:"deleted"`
	MasterID     *int       `json:"master_id"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login"`
}

// IsSlave reports whether the user acts under a master account.
func (u *User) IsSlave() bool {
	return u != nil && u.MasterID != nil
}

// IsAdmin reports whether the user may use administration endpoints.
func (u *User) IsAdmin() bool {
	return u != nil && (u.IsStaff || u.IsSuperuser)
}

type UserCreate struct {
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
}

type UserProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Country   *string `json:"country"`
}

type UserListOptions struct {
	IncludeDeleted bool
	Search         string
	Limit          int
	Offset         int
}

const userColumns = `id, username, email, password_hash, first_name, last_name, country,
	is_active, is_staff, is_superuser, deleted, master_id, date_joined, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user      User
		masterID  sql.NullInt64
		lastLogin sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Country,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.Deleted,
		&masterID,
		&user.DateJoined,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}

	if masterID.Valid {
		id := int(masterID.Int64)
		user.MasterID = &id
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}

	return &user, nil
}

type UserStore struct {
	db dbinterface.Querier
}

func NewUserStore(db dbinterface.Querier) *UserStore {
	return &UserStore{db: db}
}

// Tx returns a store bound to the given transaction.
func (s *UserStore) Tx(q dbinterface.Querier) *UserStore {
	return &UserStore{db: q}
}

// Create inserts a user. It must run inside a write transaction.
func (s *UserStore) Create(ctx context.Context, create UserCreate) (*User, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, is_staff, is_superuser, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		strings.TrimSpace(create.Username),
		strings.TrimSpace(create.Email),
		create.PasswordHash,
		create.IsActive,
		create.IsStaff,
		create.IsSuperuser,
		now(),
	).Scan(&id)
	if err != nil {
		return nil, mapUserConstraintError(err)
	}

	return s.getByID(ctx, id, true)
}

func mapUserConstraintError(err error) error {
	if !isUniqueConstraintError(err) {
		return err
	}
	if strings.Contains(strings.ToLower(err.Error()), "email") {
		return ErrEmailTaken
	}
	return ErrUsernameTaken
}

// GetByID returns a non-deleted user.
func (s *UserStore) GetByID(ctx context.Context, id int) (*User, error) {
	return s.getByID(ctx, id, false)
}

// GetByIDIncludingDeleted also returns soft-deleted users.
func (s *UserStore) GetByIDIncludingDeleted(ctx context.Context, id int) (*User, error) {
	return s.getByID(ctx, id, true)
}

func (s *UserStore) getByID(ctx context.Context, id int, includeDeleted bool) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted = ?`
	}

	args := []any{id}
	if !includeDeleted {
		args = append(args, false)
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByUsername looks up a non-deleted user case-insensitively.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower(?) AND deleted = ?`,
		strings.TrimSpace(username), false))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail looks up a non-deleted user case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?) AND deleted = ?`,
		strings.TrimSpace(email), false))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// List returns users ordered by id together with the total count.
func (s *UserStore) List(ctx context.Context, opts UserListOptions) ([]*User, int, error) {
	where := []string{"1 = 1"}
	var args []any

	if !opts.IncludeDeleted {
		where = append(where, "deleted = ?")
		args = append(args, false)
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		byName, pattern := dbinterface.ContainsLike("username", search)
		byEmail, _ := dbinterface.ContainsLike("email", search)
		where = append(where, "("+byName+" OR "+byEmail+")")
		args = append(args, pattern, pattern)
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+whereSQL+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (s *UserStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted = ?`, false).Scan(&count)
	return count, err
}

func (s *UserStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int, update UserProfileUpdate) error {
	sets := []string{}
	args := []any{}

	if update.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, strings.TrimSpace(*update.FirstName))
	}
	if update.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, strings.TrimSpace(*update.LastName))
	}
	if update.Country != nil {
		sets = append(sets, "country = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(*update.Country)))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id, false)
	return s.exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted = ?`, args...)
}

func (s *UserStore) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = ? WHERE id = ? AND deleted = ?`, passwordHash, id, false)
}

func (s *UserStore) UpdateUsername(ctx context.Context, id int, username string) error {
	err := s.exec(ctx, `UPDATE users SET username = ? WHERE id = ? AND deleted = ?`, strings.TrimSpace(username), id, false)
	if err != nil && isUniqueConstraintError(err) {
		return ErrUsernameTaken
	}
	return err
}

func (s *UserStore) UpdateEmail(ctx context.Context, id int, email string) error {
	err := s.exec(ctx, `UPDATE users SET email = ? WHERE id = ? AND deleted = ?`, strings.TrimSpace(email), id, false)
	if err != nil && isUniqueConstraintError(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *UserStore) SetActive(ctx context.Context, id int, active bool) error {
	return s.exec(ctx, `UPDATE users SET is_active = ? WHERE id = ? AND deleted = ?`, active, id, false)
}

func (s *UserStore) TouchLastLogin(ctx context.Context, id int) error {
	return s.exec(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, now(), id)
}

// SoftDelete marks the user deleted and releases their slaves. Run it inside
// a transaction so both updates apply together.
func (s *UserStore) SoftDelete(ctx context.Context, id int) error {
	if err := s.exec(ctx, `UPDATE users SET deleted = ?, is_active = ?, master_id = NULL WHERE id = ? AND deleted = ?`, true, false, id, false); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE users SET master_id = NULL WHERE master_id = ?`, id)
	return err
}

func (s *UserStore) Undelete(ctx context.Context, id int) error {
	err := s.exec(ctx, `UPDATE users SET deleted = ?, is_active = ? WHERE id = ? AND deleted = ?`, false, true, id, true)
	if err != nil && isUniqueConstraintError(err) {
		return ErrUsernameTaken
	}
	return err
}

// SetMaster attaches (masterID != nil) or detaches (nil) a slave.
func (s *UserStore) SetMaster(ctx context.Context, slaveID int, masterID *int) error {
	var master any
	if masterID != nil {
		master = *masterID
	}
	return s.exec(ctx, `UPDATE users SET master_id = ? WHERE id = ? AND deleted = ?`, master, slaveID, false)
}

func (s *UserStore) ListSlaves(ctx context.Context, masterID int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE master_id = ? AND deleted = ? ORDER BY username`,
		masterID, false)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slaves := []*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		slaves = append(slaves, user)
	}
	return slaves, rows.Err()
}

func (s *UserStore) CountSlaves(ctx context.Context, masterID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE master_id = ? AND deleted = ?`, masterID, false).Scan(&count)
	return count, err
}
