// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	PublicURL     string `toml:"publicUrl" mapstructure:"publicUrl"`
	SessionSecret string `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	PprofEnabled  bool   `toml:"pprofEnabled" mapstructure:"pprofEnabled"`
	PprofHost     string `toml:"pprofHost" mapstructure:"pprofHost"`
	PprofPort     int    `toml:"pprofPort" mapstructure:"pprofPort"`

	// MaxImageSize limits uploaded images, in bytes.
	MaxImageSize int64 `toml:"maxImageSize" mapstructure:"maxImageSize"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`

	// Database
	DatabaseEngine          string `toml:"databaseEngine" mapstructure:"databaseEngine"`
	DatabasePath            string `toml:"databasePath" mapstructure:"databasePath"`
	DatabaseDSN             string `toml:"databaseDsn" mapstructure:"databaseDsn"`
	DatabaseHost            string `toml:"databaseHost" mapstructure:"databaseHost"`
	DatabasePort            int    `toml:"databasePort" mapstructure:"databasePort"`
	DatabaseUser            string `toml:"databaseUser" mapstructure:"databaseUser"`
	DatabasePassword        string `toml:"databasePassword" mapstructure:"databasePassword"`
	DatabaseName            string `toml:"databaseName" mapstructure:"databaseName"`
	DatabaseSSLMode         string `toml:"databaseSslMode" mapstructure:"databaseSslMode"`
	DatabaseConnectTimeout  int    `toml:"databaseConnectTimeout" mapstructure:"databaseConnectTimeout"`
	DatabaseMaxOpenConns    int    `toml:"databaseMaxOpenConns" mapstructure:"databaseMaxOpenConns"`
	DatabaseMaxIdleConns    int    `toml:"databaseMaxIdleConns" mapstructure:"databaseMaxIdleConns"`
	DatabaseConnMaxLifetime int    `toml:"databaseConnMaxLifetime" mapstructure:"databaseConnMaxLifetime"`

	// Mail. An empty SMTPHost logs messages instead of sending them.
	SMTPHost     string `toml:"smtpHost" mapstructure:"smtpHost"`
	SMTPPort     int    `toml:"smtpPort" mapstructure:"smtpPort"`
	SMTPUsername string `toml:"smtpUsername" mapstructure:"smtpUsername"`
	SMTPPassword string `toml:"smtpPassword" mapstructure:"smtpPassword"`
	SMTPFrom     string `toml:"smtpFrom" mapstructure:"smtpFrom"`
	MailWorkers  int    `toml:"mailWorkers" mapstructure:"mailWorkers"`

	// Tokens
	AccessTokenTTL  int `toml:"accessTokenTtl" mapstructure:"accessTokenTtl"`
	RefreshTokenTTL int `toml:"refreshTokenTtl" mapstructure:"refreshTokenTtl"`

	// BlacklistCIDRs are blocked regardless of the ip_blacklist table.
	// Entries can be CIDRs or single addresses.
	BlacklistCIDRs []string `toml:"blacklistCIDRs" mapstructure:"blacklistCIDRs"`

	// TrustedProxies may set the client address through X-Forwarded-For,
	// X-Real-IP or True-Client-IP. Empty ignores those headers.
	TrustedProxies []string `toml:"trustedProxies" mapstructure:"trustedProxies"`

	// Failed-login policy. LoginFailureWindow and LoginFailureBan are seconds.
	LoginFailureLimit  int `toml:"loginFailureLimit" mapstructure:"loginFailureLimit"`
	LoginFailureWindow int `toml:"loginFailureWindow" mapstructure:"loginFailureWindow"`
	LoginFailureBan    int `toml:"loginFailureBan" mapstructure:"loginFailureBan"`

	// ChangeLogRetentionDays purges older audit entries. 0 keeps everything.
	ChangeLogRetentionDays int `toml:"changeLogRetentionDays" mapstructure:"changeLogRetentionDays"`
}

const (
	DatabaseEngineSQLite   = "sqlite"
	DatabaseEnginePostgres = "postgres"
)

// ParseBlacklistCIDRs parses the static blacklist. Single addresses are
// treated as /32 or /128.
func (c *Config) ParseBlacklistCIDRs() ([]netip.Prefix, error) {
	return parsePrefixes("blacklistCIDRs", c.BlacklistCIDRs)
}

func (c *Config) ParseTrustedProxies() ([]netip.Prefix, error) {
	return parsePrefixes("trustedProxies", c.TrustedProxies)
}

func parsePrefixes(key string, entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q: %w", key, entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

func (c *Config) LoginFailureWindowDuration() time.Duration {
	return time.Duration(c.LoginFailureWindow) * time.Second
}

func (c *Config) LoginFailureBanDuration() time.Duration {
	return time.Duration(c.LoginFailureBan) * time.Second
}

// LinkBaseURL is the address prepended to links in outgoing mail.
func (c *Config) LinkBaseURL() string {
	if u := strings.TrimSpace(c.PublicURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	base := strings.TrimRight(c.BaseURL, "/")
	return fmt.Sprintf("http://%s:%d%s", c.Host, c.Port, base)
}

func (c *Config) AccessTokenDuration() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c *Config) RefreshTokenDuration() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

// Validate checks settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.PprofEnabled && (c.PprofPort < 1 || c.PprofPort > 65535) {
		errs = append(errs, fmt.Errorf("pprofPort must be between 1 and 65535, got %d", c.PprofPort))
	}
	if c.MaxImageSize < 1 {
		errs = append(errs, errors.New("maxImageSize must be positive"))
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("metricsPort must be between 1 and 65535, got %d", c.MetricsPort))
	}

	switch strings.ToLower(strings.TrimSpace(c.DatabaseEngine)) {
	case "", DatabaseEngineSQLite, DatabaseEnginePostgres, "postgresql", "pg":
	default:
		errs = append(errs, fmt.Errorf("unsupported databaseEngine %q", c.DatabaseEngine))
	}

	if _, err := c.ParseBlacklistCIDRs(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ParseTrustedProxies(); err != nil {
		errs = append(errs, err)
	}

	if c.LoginFailureLimit < 1 {
		errs = append(errs, errors.New("loginFailureLimit must be positive"))
	}
	if c.LoginFailureWindow < 1 {
		errs = append(errs, errors.New("loginFailureWindow must be positive"))
	}
	if c.LoginFailureBan < 1 {
		errs = append(errs, errors.New("loginFailureBan must be positive"))
	}
	if c.ChangeLogRetentionDays < 0 {
		errs = append(errs, errors.New("changeLogRetentionDays must not be negative"))
	}
	if c.AccessTokenTTL < 1 || c.RefreshTokenTTL < 1 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}

	return errors.Join(errs...)
}
