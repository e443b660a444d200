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

// Civic pipeline one-shot lookup
//
// Standalone CLI tool that fetches the officials for one address and
// prints them as JSON. Useful for checking API credentials and for seeing
// exactly what the decoder produces for an address.
//
// Usage:
//
//	go run ./cmd/lookup/ --address "1600 Pennsylvania Ave NW, Washington, DC 20500" [--key <api key>] [--events]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicpulse/pipeline/internal/civic"
	"github.com/civicpulse/pipeline/internal/config"
	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/events"
	"github.com/civicpulse/pipeline/internal/models"
)

type output struct {
	Address   string            `json:"address"`
	Officials []models.Official `json:"officials"`
	Events    []models.Event    `json:"events,omitempty"`
}

func main() {
	// Logs go to stderr so stdout stays valid JSON.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	addressFlag := flag.String("address", "", "Single-line address to look up (required)")
	keyFlag := flag.String("key", "", "Civic API key (overrides configuration)")
	eventsFlag := flag.Bool("events", false, "Also list stored events for the officials (needs DATABASE_URL)")
	flag.Parse()

	if *addressFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --address is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// The key flag may stand in for configuration.
	if *keyFlag != "" {
		os.Setenv("CIVIC_API_KEY", *keyFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	apiKey := cfg.Civic.APIKey
	if *keyFlag != "" {
		apiKey = *keyFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := civic.NewClient(civic.ClientConfig{
		HTTPClient: cfg.Civic.HTTPClient(ctx),
		BaseURL:    cfg.Civic.BaseURL,
		APIKey:     apiKey,
		Timeout:    cfg.Civic.Timeout,
	})

	// The civic API accepts free text, so the whole line goes in StreetAddress.
	addr := models.Address{StreetAddress: *addressFlag}

	officials, err := client.Fetch(ctx, addr)
	if err != nil {
		var civicErr *civic.Error
		if errors.As(err, &civicErr) && civicErr.Kind == civic.KindInvalidAPIKey {
			slog.Error("civic API rejected the key", "error", err)
		} else {
			slog.Error("lookup failed", "error", err)
		}
		os.Exit(1)
	}

	out := output{Address: addr.SingleLine(), Officials: officials}

	if *eventsFlag {
		evs, err := lookupEvents(ctx, cfg, officials)
		if err != nil {
			slog.Error("events lookup failed", "error", err)
			os.Exit(1)
		}
		out.Events = evs
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to write output", "error", err)
		os.Exit(1)
	}

	slog.Info("lookup complete", "officials", len(officials), "events", len(out.Events))
}

func lookupEvents(ctx context.Context, cfg *config.Config, officials []models.Official) ([]models.Event, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("--events needs DATABASE_URL")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	defer pool.Close()

	docs, err := docstore.NewPostgres(ctx, pool)
	if err != nil {
		return nil, err
	}
	agg := events.NewAggregator(events.NewRepository(docs, cfg.StoreTimeout), cfg.FanOut)
	return agg.Aggregate(ctx, officials), nil
}
