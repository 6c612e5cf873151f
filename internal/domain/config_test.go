// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               7480,
		MaxImageSize:       10 << 20,
		DatabaseEngine:     DatabaseEngineSQLite,
		LoginFailureLimit:  5,
		LoginFailureWindow: 600,
		LoginFailureBan:    3600,
		AccessTokenTTL:     300,
		RefreshTokenTTL:    86400,
	}
}

func TestParseBlacklistCIDRs(t *testing.T) {
	t.Run("fails on invalid entry", func(t *testing.T) {
		cfg := &Config{BlacklistCIDRs: []string{"nope"}}

		_, err := cfg.ParseBlacklistCIDRs()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid blacklistCIDRs entry")
	})

	t.Run("accepts CIDR and single IP entries", func(t *testing.T) {
		cfg := &Config{
			BlacklistCIDRs: []string{
				"192.168.1.7/24",
				"10.0.0.5",
				" ",
				"::1",
			},
		}

		prefixes, err := cfg.ParseBlacklistCIDRs()
		require.NoError(t, err)
		require.Len(t, prefixes, 3)
		assert.Equal(t, "192.168.1.0/24", prefixes[0].String())
		assert.Equal(t, "10.0.0.5/32", prefixes[1].String())
		assert.Equal(t, "::1/128", prefixes[2].String())
	})
}

func TestParseTrustedProxies(t *testing.T) {
	cfg := &Config{TrustedProxies: []string{"172.16.0.0/12", "127.0.0.1"}}

	prefixes, err := cfg.ParseTrustedProxies()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "172.16.0.0/12", prefixes[0].String())
	assert.Equal(t, "127.0.0.1/32", prefixes[1].String())

	cfg.TrustedProxies = []string{"proxy.local"}
	require.ErrorContains(t, cfg.Validate(), "invalid trustedProxies entry")
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("rejects bad port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Port = 70000

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port must be between")
	})

	t.Run("rejects unknown engine", func(t *testing.T) {
		cfg := validConfig()
		cfg.DatabaseEngine = "mysql"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported databaseEngine")
	})

	t.Run("collects every failure", func(t *testing.T) {
		cfg := validConfig()
		cfg.LoginFailureLimit = 0
		cfg.BlacklistCIDRs = []string{"bad"}

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loginFailureLimit")
		assert.Contains(t, err.Error(), "blacklistCIDRs")
	})
}

func TestLinkBaseURL(t *testing.T) {
	t.Parallel()

	cfg := &Config{Host: "localhost", Port: 7480, BaseURL: "/tv/"}
	assert.Equal(t, "http://localhost:7480/tv", cfg.LinkBaseURL())

	cfg.BaseURL = "/"
	assert.Equal(t, "http://localhost:7480", cfg.LinkBaseURL())

	cfg.PublicURL = "https://tv.example.com/"
	assert.Equal(t, "https://tv.example.com", cfg.LinkBaseURL())
}
