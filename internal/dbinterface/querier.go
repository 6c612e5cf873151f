// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface holds the query interfaces and SQL fragment builders
// shared by the database package and the stores in models.
package dbinterface

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is the centralized interface for database operations.
// It is implemented by *sql.DB, *sql.Tx, *database.DB and *database.Tx.
// Stores accept a Querier so the same code runs inside or outside a transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxQuerier is a Querier bound to an open transaction.
type TxQuerier interface {
	Querier
	Commit() error
	Rollback() error
}

// TxBeginner is an interface for types that can begin transactions.
// It is implemented by *database.DB.
type TxBeginner interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxQuerier, error)
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(tx TxQuerier) error) error
}

// BuildQueryWithPlaceholders expands the single %s in template into numRows
// groups of placeholdersPerRow "?" placeholders, for multi-row inserts.
func BuildQueryWithPlaceholders(template string, placeholdersPerRow, numRows int) string {
	if placeholdersPerRow <= 0 || numRows <= 0 {
		return fmt.Sprintf(template, "")
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", placeholdersPerRow), ", ") + ")"

	var b strings.Builder
	b.Grow(numRows * (len(row) + 2))
	for i := range numRows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
	}

	return fmt.Sprintf(template, b.String())
}

// InClause returns "column IN (?, ?, ...)" for n values. With n <= 0 it
// returns a clause that matches nothing.
func InClause(column string, n int) string {
	if n <= 0 {
		return "1 = 0"
	}
	return column + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsLike returns a case-insensitive substring match on column and the
// argument to bind for it. Wildcards in term are matched literally.
func ContainsLike(column, term string) (string, any) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	return "lower(" + column + `) LIKE ? ESCAPE '\'`, pattern
}
