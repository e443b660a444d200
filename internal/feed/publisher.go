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

// Package feed pushes published officials and events to a Redis list so
// downstream consumers can follow what the store publishes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/pipeline/internal/models"
)

const (
	// DefaultList is the Redis list records are pushed to.
	DefaultList = "civic:feed"

	defaultBuffer = 64
)

// Record kinds.
const (
	KindOfficials = "officials"
	KindEvents    = "events"
)

// Pusher is the Redis command the publisher needs. *redis.Client
// satisfies it.
type Pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Record is one feed entry.
type Record struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Slot        string            `json:"slot"`
	Address     string            `json:"address,omitempty"`
	Officials   []models.Official `json:"officials,omitempty"`
	Events      []models.Event    `json:"events,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Publisher queues records and pushes them from a background goroutine,
// so callers on the store's dispatch goroutine never wait on Redis.
type Publisher struct {
	rdb     Pusher
	list    string
	records chan Record

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher targeting list.
func NewPublisher(rdb Pusher, list string) *Publisher {
	if list == "" {
		list = DefaultList
	}
	return &Publisher{
		rdb:     rdb,
		list:    list,
		records: make(chan Record, defaultBuffer),
	}
}

// Start begins draining queued records.
func (p *Publisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-p.records:
				if err := p.push(ctx, r); err != nil {
					slog.Error("feed publish failed", "record_id", r.ID, "kind", r.Kind, "error", err)
				}
			}
		}
	}()
}

// Stop pushes what is already queued, then stops.
func (p *Publisher) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case r := <-p.records:
			if err := p.push(ctx, r); err != nil {
				slog.Error("feed publish failed during shutdown", "record_id", r.ID, "error", err)
			}
		default:
			return
		}
	}
}

// Officials queues an officials record for slot.
func (p *Publisher) Officials(slot string, addr models.Address, officials []models.Official) {
	p.enqueue(Record{Kind: KindOfficials, Slot: slot, Address: addr.SingleLine(), Officials: officials})
}

// Events queues an events record for slot.
func (p *Publisher) Events(slot string, evs []models.Event) {
	p.enqueue(Record{Kind: KindEvents, Slot: slot, Events: evs})
}

// enqueue never blocks; records are dropped when the buffer is full.
func (p *Publisher) enqueue(r Record) {
	r.ID = uuid.New().String()
	r.PublishedAt = time.Now().UTC()
	select {
	case p.records <- r:
	default:
		slog.Warn("feed buffer full, dropping record", "kind", r.Kind, "slot", r.Slot)
	}
}

func (p *Publisher) push(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal feed record: %w", err)
	}
	if err := p.rdb.LPush(ctx, p.list, string(data)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published feed record",
		"record_id", r.ID,
		"kind", r.Kind,
		"slot", r.Slot,
		"list", p.list,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
