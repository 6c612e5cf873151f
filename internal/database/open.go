// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/domain"
)

const (
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
	defaultConnectTimeout  = 10 * time.Second
)

type OpenOptions struct {
	Engine           string
	SQLitePath       string
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string
	ConnectTimeout   time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// Open connects to the configured engine and applies pending migrations.
func Open(opts OpenOptions) (*DB, error) {
	dialect, err := parseDialect(opts.Engine)
	if err != nil {
		return nil, err
	}

	target, err := opts.target(dialect)
	if err != nil {
		return nil, err
	}
	log.Info().Str("engine", dialect.String()).Str("target", opts.Describe()).Msg("Opening archive database")

	if dialect == DialectPostgres {
		return newPostgres(target, opts)
	}
	return New(target)
}

// OpenFromConfig opens the database described by cfg. sqlitePath is used when
// the engine is sqlite.
func OpenFromConfig(cfg *domain.Config, sqlitePath string) (*DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	return Open(OptionsFromConfig(cfg, sqlitePath))
}

func OptionsFromConfig(cfg *domain.Config, sqlitePath string) OpenOptions {
	return OpenOptions{
		Engine:           cfg.DatabaseEngine,
		SQLitePath:       sqlitePath,
		PostgresDSN:      cfg.DatabaseDSN,
		PostgresHost:     cfg.DatabaseHost,
		PostgresPort:     cfg.DatabasePort,
		PostgresUser:     cfg.DatabaseUser,
		PostgresPassword: cfg.DatabasePassword,
		PostgresDatabase: cfg.DatabaseName,
		PostgresSSLMode:  cfg.DatabaseSSLMode,
		ConnectTimeout:   time.Duration(cfg.DatabaseConnectTimeout) * time.Second,
		MaxOpenConns:     cfg.DatabaseMaxOpenConns,
		MaxIdleConns:     cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime:  time.Duration(cfg.DatabaseConnMaxLifetime) * time.Second,
	}
}

// target returns the sqlite file path or the postgres DSN.
func (o OpenOptions) target(dialect Dialect) (string, error) {
	if dialect == DialectSQLite {
		path := strings.TrimSpace(o.SQLitePath)
		if path == "" {
			return "", errors.New("sqlite database path is required")
		}
		return path, nil
	}

	if dsn := strings.TrimSpace(o.PostgresDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := o.postgresURL(); dsn != "" {
		return dsn, nil
	}
	return "", errors.New("postgres needs either databaseDsn or databaseHost, databaseUser and databaseName")
}

func (o OpenOptions) postgresURL() string {
	host := strings.TrimSpace(o.PostgresHost)
	user := strings.TrimSpace(o.PostgresUser)
	name := strings.TrimSpace(o.PostgresDatabase)
	if host == "" || user == "" || name == "" {
		return ""
	}

	port := o.PostgresPort
	if port <= 0 {
		port = defaultPostgresPort
	}
	sslMode := strings.TrimSpace(o.PostgresSSLMode)
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", strconv.Itoa(int(timeout/time.Second)))
	q.Set("application_name", "tvarchive")

	return (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, o.PostgresPassword),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + name,
		RawQuery: q.Encode(),
	}).String()
}

// Describe names the database without credentials, for logs.
func (o OpenOptions) Describe() string {
	dialect, err := parseDialect(o.Engine)
	if err != nil {
		return fmt.Sprintf("unknown engine %q", o.Engine)
	}
	target, err := o.target(dialect)
	if err != nil {
		return "unconfigured " + dialect.String()
	}
	if dialect == DialectSQLite {
		return target
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		// key=value DSNs may carry a password anywhere
		return "postgres (dsn)"
	}
	u.RawQuery = ""
	return u.Redacted()
}
