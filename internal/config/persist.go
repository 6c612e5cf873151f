// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost"
host = "localhost"

# Port
# Default: 7480
port = 7480

# Base URL
# Set custom baseUrl eg /tvarchive/ to serve behind a reverse proxy subpath
# Default: "/"
#baseUrl = "/"

# Session and token signing secret
# Generated on first run
sessionSecret = "%s"

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stderr
# Optional
#logPath = "log/tvarchive.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Data directory for uploaded images
# Default: next to this file
#dataDir = ""

# Database engine: "sqlite" or "postgres"
# Default: "sqlite"
#databaseEngine = "sqlite"

# SQLite file
# Default: tvarchive.db next to this file
#databasePath = ""

# Postgres connection (used when databaseEngine = "postgres")
#databaseDsn = ""
#databaseHost = "localhost"
#databasePort = 5432
#databaseUser = "tvarchive"
#databasePassword = ""
#databaseName = "tvarchive"
#databaseSslMode = "disable"

# Largest accepted image upload in bytes
# Default: 10485760
#maxImageSize = 10485760

# Runtime profiling on a separate listener
#pprofEnabled = false
#pprofHost = "127.0.0.1"
#pprofPort = 6060

# Prometheus metrics on a separate listener
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
# Comma separated user:password pairs protecting /metrics
#metricsBasicAuthUsers = ""

# Outgoing mail. Without smtpHost messages are written to the log.
#smtpHost = ""
#smtpPort = 587
#smtpUsername = ""
#smtpPassword = ""
#smtpFrom = "tvarchive@localhost"

# Public address used in activation and password reset links
# Default: derived from host, port and baseUrl
#publicUrl = ""

# Addresses and CIDRs that are always refused
#blacklistCIDRs = []

# Reverse proxies allowed to report the client address in X-Forwarded-For,
# X-Real-IP or True-Client-IP. Leave empty when clients connect directly.
#trustedProxies = []

# Failed logins from one address within loginFailureWindow seconds before
# it is banned for loginFailureBan seconds
#loginFailureLimit = 5
#loginFailureWindow = 600
#loginFailureBan = 3600

# Days of change log history to keep. 0 keeps everything.
#changeLogRetentionDays = 0
`

// WriteDefaultConfig writes a commented config file with a fresh secret.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := fmt.Sprintf(defaultConfigTemplate, secret)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// persistKey sets key = value in the config file, keeping comments and layout.
func persistKey(path, key, value string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	updated := updateKeyInTOML(string(content), key, value)

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(updated), info.Mode().Perm())
}

// updateKeyInTOML replaces an existing top-level assignment of key, or its
// commented-out form, in place. Otherwise the assignment is inserted before
// the first table header so it stays a top-level key.
func updateKeyInTOML(content, key, value string) string {
	lines := strings.Split(content, "\n")
	assignment := key + " = " + value

	commented := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			break
		}
		if matchesKey(trimmed, key) {
			lines[i] = assignment
			return strings.Join(lines, "\n")
		}
		if commented == -1 && strings.HasPrefix(trimmed, "#") && matchesKey(strings.TrimSpace(strings.TrimPrefix(trimmed, "#")), key) {
			commented = i
		}
	}

	if commented >= 0 {
		lines[commented] = assignment
		return strings.Join(lines, "\n")
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			out := append([]string{}, lines[:i]...)
			out = append(out, assignment, "")
			out = append(out, lines[i:]...)
			return strings.Join(out, "\n")
		}
	}

	if !strings.HasSuffix(content, "\n") && content != "" {
		content += "\n"
	}
	return content + assignment + "\n"
}

func matchesKey(line, key string) bool {
	if !strings.HasPrefix(line, key) {
		return false
	}
	rest := strings.TrimSpace(line[len(key):])
	return strings.HasPrefix(rest, "=")
}
