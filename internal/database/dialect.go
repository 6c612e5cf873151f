// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) String() string {
	return string(d)
}

func parseDialect(raw string) (Dialect, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "", string(DialectSQLite):
		return DialectSQLite, nil
	case string(DialectPostgres), "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database engine %q", raw)
	}
}

func (db *DB) Dialect() string {
	if db == nil || db.dialect == "" {
		return string(DialectSQLite)
	}
	return db.dialect.String()
}

func (t *Tx) Dialect() string {
	if t == nil || t.db == nil {
		return string(DialectSQLite)
	}
	return t.db.Dialect()
}

// bindQuery rewrites ? placeholders to $n for Postgres. Stores always write ?.
func (db *DB) bindQuery(query string) string {
	if db == nil || db.dialect != DialectPostgres {
		return query
	}
	return rebindQuestionToDollar(query)
}

type scanState int

const (
	inCode scanState = iota
	inSingleQuote
	inDoubleQuote
	inLineComment
	inBlockComment
	inDollarQuote
)

// rebindQuestionToDollar numbers every ? outside literals, quoted
// identifiers and comments.
func rebindQuestionToDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var (
		out   strings.Builder
		state = inCode
		tag   string
		param int
	)
	out.Grow(len(query) + 16)

	for i := 0; i < len(query); i++ {
		ch, rest := query[i], query[i:]

		switch state {
		case inSingleQuote, inDoubleQuote:
			quote := byte('\'')
			if state == inDoubleQuote {
				quote = '"'
			}
			out.WriteByte(ch)
			if ch != quote {
				continue
			}
			if i+1 < len(query) && query[i+1] == quote {
				out.WriteByte(quote)
				i++
				continue
			}
			state = inCode

		case inLineComment:
			out.WriteByte(ch)
			if ch == '\n' {
				state = inCode
			}

		case inBlockComment:
			if strings.HasPrefix(rest, "*/") {
				out.WriteString("*/")
				i++
				state = inCode
				continue
			}
			out.WriteByte(ch)

		case inDollarQuote:
			if strings.HasPrefix(rest, tag) {
				out.WriteString(tag)
				i += len(tag) - 1
				state = inCode
				continue
			}
			out.WriteByte(ch)

		default:
			switch {
			case ch == '\'':
				state = inSingleQuote
				out.WriteByte(ch)
			case ch == '"':
				state = inDoubleQuote
				out.WriteByte(ch)
			case strings.HasPrefix(rest, "--"):
				state = inLineComment
				out.WriteString("--")
				i++
			case strings.HasPrefix(rest, "/*"):
				state = inBlockComment
				out.WriteString("/*")
				i++
			case ch == '$' && dollarQuoteTag(rest) != "":
				tag = dollarQuoteTag(rest)
				state = inDollarQuote
				out.WriteString(tag)
				i += len(tag) - 1
			case ch == '?':
				param++
				out.WriteByte('$')
				out.WriteString(strconv.Itoa(param))
			default:
				out.WriteByte(ch)
			}
		}
	}

	return out.String()
}

// dollarQuoteTag returns the opening $tag$ at the start of s, if any.
func dollarQuoteTag(s string) string {
	end := strings.IndexByte(s[1:], '$')
	if end < 0 {
		return ""
	}
	for _, r := range s[1 : end+1] {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ""
		}
	}
	return s[:end+2]
}
