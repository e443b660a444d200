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

// Package cache keeps recent officials lookups in Redis with a TTL so
// repeated addresses do not hit the civic API.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/pipeline/internal/models"
)

const (
	// DefaultTTL is how long an officials lookup is reused. Office holders
	// change rarely, but a day keeps redistricting fallout short.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces cache keys in Redis.
	keyPrefix = "civic:officials:"
)

// Fetcher is the uncached lookup, normally *civic.Client.
type Fetcher interface {
	Fetch(ctx context.Context, addr models.Address) ([]models.Official, error)
}

// Backend is the subset of Redis the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Directory wraps a Fetcher with a read-through cache. Failed lookups are
// never cached.
type Directory struct {
	next    Fetcher
	backend Backend
	ttl     time.Duration
}

// NewDirectory creates a cached directory. A non-positive ttl uses DefaultTTL.
func NewDirectory(next Fetcher, backend Backend, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{next: next, backend: backend, ttl: ttl}
}

// Fetch returns cached officials for addr, or fetches and stores them.
// Cache errors are logged and fall through to the underlying fetcher.
func (d *Directory) Fetch(ctx context.Context, addr models.Address) ([]models.Official, error) {
	key := Key(addr)

	if raw, ok, err := d.backend.Get(ctx, key); err != nil {
		slog.Warn("officials cache read failed", "key", key, "error", err)
	} else if ok {
		var officials []models.Official
		if err := json.Unmarshal([]byte(raw), &officials); err == nil {
			slog.Debug("officials cache hit", "key", key)
			return officials, nil
		}
		slog.Warn("discarding unreadable cache entry", "key", key)
	}

	officials, err := d.next.Fetch(ctx, addr)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(officials)
	if err != nil {
		return nil, fmt.Errorf("marshal officials: %w", err)
	}
	if err := d.backend.Set(ctx, key, string(data), d.ttl); err != nil {
		slog.Warn("officials cache write failed", "key", key, "error", err)
	}

	return officials, nil
}

// Key is the cache key for an address: a hash of its single-line form.
func Key(addr models.Address) string {
	sum := sha256.Sum256([]byte(addr.SingleLine()))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Redis adapts a go-redis client to Backend.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps rdb.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Get returns the value at key; ok is false when the key is absent.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET: %w", err)
	}
	return v, true, nil
}

// Set stores value at key with a TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET: %w", err)
	}
	return nil
}
