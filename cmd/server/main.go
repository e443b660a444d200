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

// Civic pipeline server
//
// Entry point for the address pipeline service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL (or falls back to an in-memory document store)
//  3. Connects to Redis for the officials cache and change feed, if configured
//  4. Starts the reactive address store over the civic API client
//  5. Serves the JSON API and health checks
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/pipeline/internal/appstate"
	"github.com/civicpulse/pipeline/internal/cache"
	"github.com/civicpulse/pipeline/internal/civic"
	"github.com/civicpulse/pipeline/internal/config"
	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/events"
	"github.com/civicpulse/pipeline/internal/feed"
	"github.com/civicpulse/pipeline/internal/httpapi"
	"github.com/civicpulse/pipeline/internal/models"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting civic pipeline service",
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"oauth", cfg.Civic.ClientID != "",
		"fan_out", cfg.FanOut,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	checks := map[string]httpapi.HealthCheck{}

	// --- Document Store ---
	var docs docstore.Store
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		pg, err := docstore.NewPostgres(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise document store", "error", err)
			os.Exit(1)
		}
		docs = pg
		checks["postgres"] = pg.Ping
	} else {
		slog.Warn("DATABASE_URL not set, events are kept in memory")
		docs = docstore.NewMemory()
	}

	// --- Civic API Client ---
	client := civic.NewClient(civic.ClientConfig{
		HTTPClient: cfg.Civic.HTTPClient(ctx),
		BaseURL:    cfg.Civic.BaseURL,
		APIKey:     cfg.Civic.APIKey,
		Timeout:    cfg.Civic.Timeout,
	})
	var directory appstate.Directory = client

	// --- Redis Cache and Feed ---
	var publisher *feed.Publisher
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher = feed.NewPublisher(rdb, cfg.FeedList)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
		checks["redis"] = publisher.Ping

		directory = cache.NewDirectory(client, cache.NewRedis(rdb), cfg.CacheTTL)
		publisher.Start(ctx)
		defer publisher.Stop()
	}

	// --- Events ---
	repo := events.NewRepository(docs, cfg.StoreTimeout)
	aggregator := events.NewAggregator(repo, cfg.FanOut)

	// --- Address Store ---
	store := appstate.New(appstate.Config{
		Directory:  directory,
		Events:     aggregator,
		Repository: repo,
		ErrorSink: func(slot appstate.Slot, addr models.Address, err error) {
			slog.Error("officials lookup failed, keeping previous officials",
				"slot", slot,
				"address", addr.SingleLine(),
				"error", err,
			)
		},
	})
	store.Start(ctx)
	defer store.Stop()

	if publisher != nil {
		if err := attachFeed(store, publisher); err != nil {
			slog.Error("failed to attach change feed", "error", err)
			os.Exit(1)
		}
	}

	// --- API Server ---
	handler := httpapi.NewHandler(store, checks)
	ready, err := httpapi.Serve(ctx, cfg.Port, handler.Routes())
	if err != nil {
		slog.Error("failed to start api server", "error", err)
		os.Exit(1)
	}
	<-ready

	<-ctx.Done()
	slog.Info("received shutdown signal")
	slog.Info("civic pipeline service stopped")
}

// attachFeed mirrors every officials and events publish into the feed.
func attachFeed(store *appstate.Store, publisher *feed.Publisher) error {
	for _, slot := range []appstate.Slot{appstate.SlotHome, appstate.SlotSandbox} {
		if _, err := store.SubscribeOfficials(slot, func(officials []models.Official) {
			addr, _ := store.Address(slot)
			publisher.Officials(slot.String(), addr, officials)
		}); err != nil {
			return err
		}
		if _, err := store.SubscribeEvents(slot, func(evs []models.Event) {
			publisher.Events(slot.String(), evs)
		}); err != nil {
			return err
		}
	}
	return nil
}
