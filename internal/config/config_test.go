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

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_CIVIC_KEY", "secret-key")
	t.Setenv("CONFIG_PATH", writeConfig(t, `
civic:
  base_url: https://civic.example/v2
  api_key: ${TEST_CIVIC_KEY}
  timeout: 3s
database:
  url: postgres://localhost/civic
redis:
  url: redis://localhost:6379/1
  cache_ttl: 1h
  feed_list: civic:test
events:
  fan_out: 4
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Civic.APIKey != "secret-key" {
		t.Errorf("api key = %q", cfg.Civic.APIKey)
	}
	if cfg.Civic.BaseURL != "https://civic.example/v2" || cfg.Civic.Timeout != 3*time.Second {
		t.Errorf("civic = %+v", cfg.Civic)
	}
	if cfg.DatabaseURL != "postgres://localhost/civic" || cfg.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("urls = %q, %q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.CacheTTL != time.Hour || cfg.FeedList != "civic:test" || cfg.FanOut != 4 {
		t.Errorf("cache/feed/fan-out = %v, %q, %d", cfg.CacheTTL, cfg.FeedList, cfg.FanOut)
	}
	if cfg.StoreTimeout != 10*time.Second || cfg.Port != 8080 || cfg.LogLevel != "info" {
		t.Errorf("defaults = %v, %d, %q", cfg.StoreTimeout, cfg.Port, cfg.LogLevel)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CIVIC_API_KEY", "env-key")
	t.Setenv("PORT", "9090")
	t.Setenv("EVENTS_FAN_OUT", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Civic.APIKey != "env-key" || cfg.Port != 9090 || cfg.FanOut != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Errorf("expected in-memory defaults, got %q, %q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.CacheTTL != 24*time.Hour || cfg.Civic.Timeout != 15*time.Second {
		t.Errorf("durations = %v, %v", cfg.CacheTTL, cfg.Civic.Timeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no api key", "civic:\n  base_url: x\n", "no civic API key"},
		{"bad duration", "civic:\n  api_key: k\n  timeout: soon\n", "parse civic.timeout"},
		{"secret missing", "civic:\n  api_key: k\n  oauth:\n    client_id: id\n", "client_secret"},
		{"bad yaml", "civic: [", "parse config YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CIVIC_API_KEY", "")
			t.Setenv("CONFIG_PATH", writeConfig(t, tt.yaml))
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCivicHTTPClient(t *testing.T) {
	plain := CivicConfig{}.HTTPClient(context.Background())
	if plain.Transport != nil {
		t.Error("expected the default transport without oauth credentials")
	}

	authed := CivicConfig{ClientID: "id", ClientSecret: "secret", TokenURL: "https://auth.example/token"}.HTTPClient(context.Background())
	if authed.Transport == nil {
		t.Error("expected an oauth2 transport")
	}
}
