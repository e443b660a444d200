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

package docstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Nothing survives a restart.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Fields
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Fields)}
}

// Get returns matching documents ordered by id.
func (m *Memory) Get(_ context.Context, collection, field, value string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for id, fields := range m.collections[collection] {
		if matches(fields, field, value) {
			docs = append(docs, Document{ID: id, Fields: maps.Clone(fields)})
		}
	}
	slices.SortFunc(docs, func(a, b Document) int {
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// Put stores or replaces a document.
func (m *Memory) Put(_ context.Context, collection, id string, fields Fields) (string, error) {
	normalized, _, err := normalize(fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Fields)
		m.collections[collection] = docs
	}
	docs[id] = normalized
	return id, nil
}

// Update merges fields into the stored document.
func (m *Memory) Update(_ context.Context, collection, id string, fields Fields) error {
	normalized, _, err := normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	merged := maps.Clone(existing)
	maps.Copy(merged, normalized)
	m.collections[collection][id] = merged
	return nil
}

// Delete removes a document.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.collections[collection], id)
	return nil
}
