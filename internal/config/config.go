// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/tvarchive/internal/domain"
	"github.com/autobrr/tvarchive/pkg/debounce"
)

const (
	envPrefix           = "TVARCHIVE__"
	configFileName      = "config.toml"
	databaseFileName    = "tvarchive.db"
	imagesDirName       = "images"
	sessionSecretLength = 32
	reloadDelay         = 250 * time.Millisecond
)

// AppConfig owns the loaded configuration and the viper instance backing it.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string

	mu        sync.RWMutex
	listeners []func(*domain.Config)
	reloads   *debounce.Debouncer
}

// New loads configuration from configPath, which may be a config file or a
// directory holding config.toml. An empty path uses the default config
// directory. A missing file is created with defaults.
func New(configPath string) (*AppConfig, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		log.Info().Str("path", path).Msg("Created default configuration file")
	} else if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	c := &AppConfig{
		viper:      viper.New(),
		configPath: path,
		reloads:    debounce.New(reloadDelay),
	}
	c.viper.SetConfigFile(path)
	c.viper.SetConfigType("toml")
	setDefaults(c.viper)
	if err := bindEnv(c.viper); err != nil {
		return nil, err
	}

	cfg, err := c.read()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.SessionSecret) == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = secret
		if err := persistKey(path, "sessionSecret", fmt.Sprintf("%q", secret)); err != nil {
			log.Warn().Err(err).Msg("Could not persist generated session secret; sessions will not survive restarts")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.Config = cfg
	return c, nil
}

func (c *AppConfig) read() (*domain.Config, error) {
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", c.configPath, err)
	}

	var cfg domain.Config
	if err := c.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", c.configPath, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 7480)
	v.SetDefault("baseUrl", "/")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("pprofHost", "127.0.0.1")
	v.SetDefault("pprofPort", 6060)
	v.SetDefault("maxImageSize", 10<<20)
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("metricsHost", "127.0.0.1")
	v.SetDefault("metricsPort", 9074)
	v.SetDefault("metricsBasicAuthUsers", "")
	v.SetDefault("databaseEngine", domain.DatabaseEngineSQLite)
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseSslMode", "disable")
	v.SetDefault("databaseConnectTimeout", 10)
	v.SetDefault("databaseMaxOpenConns", 25)
	v.SetDefault("databaseMaxIdleConns", 5)
	v.SetDefault("databaseConnMaxLifetime", 300)
	v.SetDefault("smtpPort", 587)
	v.SetDefault("smtpFrom", "tvarchive@localhost")
	v.SetDefault("mailWorkers", 2)
	v.SetDefault("accessTokenTtl", 300)
	v.SetDefault("refreshTokenTtl", 86400)
	v.SetDefault("loginFailureLimit", 5)
	v.SetDefault("loginFailureWindow", 600)
	v.SetDefault("loginFailureBan", 3600)
	v.SetDefault("changeLogRetentionDays", 0)
}

// bindEnv maps every config key to TVARCHIVE__<UPPER_SNAKE>, so
// databasePath is read from TVARCHIVE__DATABASE_PATH.
func bindEnv(v *viper.Viper) error {
	for _, key := range configKeys() {
		if err := v.BindEnv(key, envPrefix+envName(key)); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func configKeys() []string {
	t := reflect.TypeOf(domain.Config{})
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		keys = append(keys, tag)
	}
	return keys
}

func envName(key string) string {
	var b strings.Builder
	runes := []rune(key)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func resolveConfigPath(configPath string) (string, error) {
	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		configPath = getDefaultConfigDir()
	}

	if strings.HasSuffix(strings.ToLower(configPath), ".toml") {
		return filepath.Abs(configPath)
	}

	if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
		return filepath.Abs(configPath)
	}

	return filepath.Abs(filepath.Join(configPath, configFileName))
}

// getDefaultConfigDir honours XDG_CONFIG_HOME. Docker images set it to
// /config, which is used as-is.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "tvarchive")
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "tvarchive")
}

func generateSecret() (string, error) {
	buf := make([]byte, sessionSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Path returns the absolute path of the loaded config file.
func (c *AppConfig) Path() string {
	return c.configPath
}

func (c *AppConfig) configDir() string {
	return filepath.Dir(c.configPath)
}

// Current returns the active configuration. It changes after a reload.
func (c *AppConfig) Current() *domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Config
}

// GetDatabasePath returns the SQLite file path. It defaults to a file next
// to the config file.
func (c *AppConfig) GetDatabasePath() string {
	cfg := c.Current()
	if p := strings.TrimSpace(cfg.DatabasePath); p != "" {
		return p
	}
	return filepath.Join(c.configDir(), databaseFileName)
}

// GetDataDir returns the directory for uploaded files.
func (c *AppConfig) GetDataDir() string {
	cfg := c.Current()
	if d := strings.TrimSpace(cfg.DataDir); d != "" {
		return d
	}
	return c.configDir()
}

func (c *AppConfig) GetImageDir() string {
	return filepath.Join(c.GetDataDir(), imagesDirName)
}

// OnReload registers fn to run with the new configuration after the config
// file changes.
func (c *AppConfig) OnReload(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Watch reloads the configuration when the file changes. Bursts of events
// from a single save trigger one reload. Settings that are bound at startup
// (listen address, database) keep their old value until restart; listeners
// decide what they apply live.
func (c *AppConfig) Watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c.reloads.Do(c.reload)
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) reload() {
	next, err := c.read()
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload configuration")
		return
	}

	c.mu.Lock()
	prev := c.Config
	if strings.TrimSpace(next.SessionSecret) == "" {
		next.SessionSecret = prev.SessionSecret
	}
	next.Version = prev.Version
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Msg("Ignoring invalid configuration change")
		return
	}
	c.Config = next
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.mu.Unlock()

	log.Info().Str("path", c.configPath).Msg("Configuration reloaded")
	for _, fn := range listeners {
		fn(next)
	}
}
