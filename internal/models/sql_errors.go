// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintUnique
	constraintCheck
	constraintForeignKey
)

var sqliteConstraints = map[int]constraintKind{
	sqlitelib.SQLITE_CONSTRAINT_UNIQUE:     constraintUnique,
	sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY: constraintUnique,
	sqlitelib.SQLITE_CONSTRAINT_CHECK:      constraintCheck,
	sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY: constraintForeignKey,
}

var postgresConstraints = map[string]constraintKind{
	"23505": constraintUnique,
	"23514": constraintCheck,
	"23503": constraintForeignKey,
}

// classifyConstraint maps driver errors from either engine onto one set of
// constraint kinds.
func classifyConstraint(err error) constraintKind {
	if err == nil {
		return constraintNone
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqliteConstraints[sqlErr.Code()]
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return postgresConstraints[pgErr.Code]
	}

	return constraintNone
}

func isUniqueConstraintError(err error) bool {
	return classifyConstraint(err) == constraintUnique
}

func isForeignKeyConstraintError(err error) bool {
	return classifyConstraint(err) == constraintForeignKey
}

// checkViolation turns a CHECK failure into a validation error on field so a
// row rejected by the schema surfaces as a 400 instead of a 500.
func checkViolation(err error, field string) error {
	if classifyConstraint(err) != constraintCheck {
		return err
	}
	return FieldError(field, "value violates a database constraint")
}
