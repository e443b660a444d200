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

package events

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/civicpulse/pipeline/internal/models"
)

// DefaultFanOut bounds concurrent per-official queries.
const DefaultFanOut = 8

// Source is the query side of the repository the aggregator needs.
// Implemented by *Repository.
type Source interface {
	ForOfficial(ctx context.Context, officialRef string) ([]models.Event, error)
	ForOwner(ctx context.Context, owner models.UserID) ([]models.Event, error)
}

// Aggregator merges the events of many officials into one ordered list.
type Aggregator struct {
	source Source
	fanOut int
}

// NewAggregator creates an aggregator. A non-positive fanOut uses DefaultFanOut.
func NewAggregator(source Source, fanOut int) *Aggregator {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	return &Aggregator{source: source, fanOut: fanOut}
}

// Aggregate queries the events of every official and returns them merged,
// deduplicated and sorted. It waits for every query to settle; a failed
// query drops only that official's events.
func (a *Aggregator) Aggregate(ctx context.Context, officials []models.Official) []models.Event {
	refs := distinctRefs(officials)
	results := make([][]models.Event, len(refs))

	var g errgroup.Group
	g.SetLimit(a.fanOut)

	for i, ref := range refs {
		g.Go(func() error {
			evs, err := a.source.ForOfficial(ctx, ref)
			if err != nil {
				slog.Warn("event query failed, skipping official",
					"official", ref,
					"error", err,
				)
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.Event
	for _, evs := range results {
		merged = append(merged, evs...)
	}

	out := Merge(merged)
	slog.Debug("events aggregated", "officials", len(refs), "events", len(out))
	return out
}

// AggregateOwner returns the sorted events a single user owns.
func (a *Aggregator) AggregateOwner(ctx context.Context, owner models.UserID) ([]models.Event, error) {
	evs, err := a.source.ForOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	return Merge(evs), nil
}

// AggregateOfficial returns the sorted events of a single official.
func (a *Aggregator) AggregateOfficial(ctx context.Context, officialRef string) ([]models.Event, error) {
	evs, err := a.source.ForOfficial(ctx, officialRef)
	if err != nil {
		return nil, err
	}
	return Merge(evs), nil
}

func distinctRefs(officials []models.Official) []string {
	seen := make(map[string]bool, len(officials))
	refs := make([]string, 0, len(officials))
	for _, o := range officials {
		ref := o.Ref()
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
