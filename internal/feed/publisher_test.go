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

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/pipeline/internal/models"
)

// mockPusher records LPUSH calls.
type mockPusher struct {
	mu     sync.Mutex
	pushed map[string][]string
	fail   bool
}

func newMockPusher() *mockPusher {
	return &mockPusher{pushed: make(map[string][]string)}
}

func (m *mockPusher) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "lpush", key)
	if m.fail {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	for _, v := range values {
		m.pushed[key] = append(m.pushed[key], v.(string))
	}
	cmd.SetVal(int64(len(m.pushed[key])))
	return cmd
}

func (m *mockPusher) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	cmd.SetVal("PONG")
	return cmd
}

func (m *mockPusher) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pushed[key])
}

func TestPublisher_PushesRecords(t *testing.T) {
	rdb := newMockPusher()
	p := NewPublisher(rdb, "")
	p.Start(context.Background())

	addr := models.Address{StreetAddress: "1 Main St", City: "Springfield", State: "IL", Zipcode: "62701"}
	p.Officials("home", addr, []models.Official{{Name: "Jane Doe", Party: models.PartyDemocratic}})
	p.Events("home", nil)

	deadline := time.Now().Add(2 * time.Second)
	for rdb.count(DefaultList) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()

	if n := rdb.count(DefaultList); n != 2 {
		t.Fatalf("pushed %d records, want 2", n)
	}

	var r Record
	if err := json.Unmarshal([]byte(rdb.pushed[DefaultList][0]), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.ID == "" || r.Kind != KindOfficials || r.Slot != "home" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.Address != "1 Main St, Springfield, IL 62701" {
		t.Errorf("address = %q", r.Address)
	}
	if len(r.Officials) != 1 || r.Officials[0].Party != models.PartyDemocratic {
		t.Errorf("officials = %+v", r.Officials)
	}
}

func TestPublisher_StopFlushesQueue(t *testing.T) {
	rdb := newMockPusher()
	p := NewPublisher(rdb, "feed")
	// Not started: records stay queued until Stop flushes them.
	p.Events("sandbox", nil)
	p.cancel = func() {}
	p.Stop()

	if n := rdb.count("feed"); n != 1 {
		t.Errorf("pushed %d records, want 1", n)
	}
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	p := NewPublisher(newMockPusher(), "feed")
	for i := 0; i < defaultBuffer+5; i++ {
		p.Events("home", nil)
	}
	if n := len(p.records); n != defaultBuffer {
		t.Errorf("queued %d, want %d", n, defaultBuffer)
	}
}

func TestPublisher_PushError(t *testing.T) {
	rdb := newMockPusher()
	rdb.fail = true
	p := NewPublisher(rdb, "feed")

	if err := p.push(context.Background(), Record{ID: "r1", Kind: KindEvents}); err == nil {
		t.Error("expected push error")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
