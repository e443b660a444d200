// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"
)

// CivicConfig holds the civic API settings.
type CivicConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// OAuth2 client credentials. When ClientID is set, requests are sent
	// through an authenticated transport in addition to the API key.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Config holds all configuration for the pipeline service.
type Config struct {
	Civic CivicConfig

	// Postgres document store. Empty means in-memory.
	DatabaseURL string

	// Redis officials cache and change feed. Empty disables both.
	RedisURL string
	CacheTTL time.Duration
	FeedList string

	// Events
	FanOut       int
	StoreTimeout time.Duration

	// Server
	Port     int
	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Civic struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
		OAuth   struct {
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			TokenURL     string   `yaml:"token_url"`
			Scopes       []string `yaml:"scopes"`
		} `yaml:"oauth"`
	} `yaml:"civic"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL      string `yaml:"url"`
		CacheTTL string `yaml:"cache_ttl"`
		FeedList string `yaml:"feed_list"`
	} `yaml:"redis"`
	Events struct {
		FanOut  int    `yaml:"fan_out"`
		Timeout string `yaml:"timeout"`
	} `yaml:"events"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// allowed; the environment alone must then supply the API key.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	civicTimeout, err := parseDuration("civic.timeout", raw.Civic.Timeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("redis.cache_ttl", raw.Redis.CacheTTL)
	if err != nil {
		return nil, err
	}
	storeTimeout, err := parseDuration("events.timeout", raw.Events.Timeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Civic: CivicConfig{
			BaseURL:      firstNonEmpty(raw.Civic.BaseURL, envOrDefault("CIVIC_BASE_URL", "")),
			APIKey:       firstNonEmpty(raw.Civic.APIKey, envOrDefault("CIVIC_API_KEY", "")),
			Timeout:      firstPositive(civicTimeout, envOrDefaultDuration("CIVIC_TIMEOUT", 15*time.Second)),
			ClientID:     firstNonEmpty(raw.Civic.OAuth.ClientID, envOrDefault("CIVIC_CLIENT_ID", "")),
			ClientSecret: firstNonEmpty(raw.Civic.OAuth.ClientSecret, envOrDefault("CIVIC_CLIENT_SECRET", "")),
			TokenURL:     firstNonEmpty(raw.Civic.OAuth.TokenURL, envOrDefault("CIVIC_TOKEN_URL", "https://oauth2.googleapis.com/token")),
			Scopes:       raw.Civic.OAuth.Scopes,
		},
		DatabaseURL:  firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:     firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "")),
		CacheTTL:     firstPositive(cacheTTL, envOrDefaultDuration("CACHE_TTL", 24*time.Hour)),
		FeedList:     firstNonEmpty(raw.Redis.FeedList, envOrDefault("FEED_LIST", "civic:feed")),
		FanOut:       firstPositive(raw.Events.FanOut, envOrDefaultInt("EVENTS_FAN_OUT", 8)),
		StoreTimeout: firstPositive(storeTimeout, envOrDefaultDuration("EVENTS_TIMEOUT", 10*time.Second)),
		Port:         envOrDefaultInt("PORT", 8080),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
	}

	if cfg.Civic.APIKey == "" {
		return nil, fmt.Errorf("no civic API key configured, set civic.api_key or CIVIC_API_KEY")
	}
	if cfg.Civic.ClientID != "" && cfg.Civic.ClientSecret == "" {
		return nil, fmt.Errorf("civic oauth client_id is set without client_secret")
	}

	return cfg, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive[T int | time.Duration](values ...T) T {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// HTTPClient returns the client used for civic API calls: an OAuth2
// client-credentials client when ClientID is set, otherwise a plain one.
// Timeouts are applied per request by the civic client.
func (c CivicConfig) HTTPClient(ctx context.Context) *http.Client {
	if c.ClientID == "" {
		return &http.Client{}
	}
	creds := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return creds.Client(ctx)
}

// SlogLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func SlogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
