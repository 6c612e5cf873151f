// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb hands out migrated SQLite archives for tests.
package testdb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/autobrr/tvarchive/internal/database"
)

// template is migrated once per test binary and snapshotted per test.
var template struct {
	once sync.Once
	db   *database.DB
	err  error
}

func migratedTemplate() (*database.DB, error) {
	template.once.Do(func() {
		dir, err := os.MkdirTemp("", "tvarchive-testdb-")
		if err != nil {
			template.err = err
			return
		}
		template.db, template.err = database.New(filepath.Join(dir, "template.db"))
	})
	return template.db, template.err
}

// Path writes a copy of the migrated schema into the test's temp dir and
// returns its location.
func Path(t *testing.T, filename string) string {
	t.Helper()

	tmpl, err := migratedTemplate()
	if err != nil {
		t.Fatalf("migrate template archive: %v", err)
	}

	path := filepath.Join(t.TempDir(), filename)
	if _, err := tmpl.Conn().ExecContext(context.Background(), "VACUUM INTO ?", path); err != nil {
		t.Fatalf("snapshot template archive to %s: %v", path, err)
	}
	return path
}

// Open returns a migrated archive that is closed when the test ends.
func Open(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(Path(t, "archive.db"))
	if err != nil {
		t.Fatalf("open test archive: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test archive: %v", err)
		}
	})
	return db
}
