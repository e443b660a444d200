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

// Package docstore is the narrow key/value document service the pipeline
// persists events and attendees through. Documents are schemaless field
// maps grouped into named collections.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collections used by the pipeline.
const (
	CollectionEvents         = "events"
	CollectionEventAttendees = "event_attendees"
)

// ErrNotFound is returned by Update and Delete when no document has the id.
var ErrNotFound = errors.New("document not found")

// Fields is the field map of a document. Values are JSON-compatible.
type Fields map[string]any

// Document is one stored document.
type Document struct {
	ID     string
	Fields Fields
}

// Store is the document service. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns every document in collection whose field equals value.
	Get(ctx context.Context, collection, field, value string) ([]Document, error)
	// Put stores a document, generating an id when id is empty.
	Put(ctx context.Context, collection, id string, fields Fields) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error
}

// normalize round-trips fields through JSON so every implementation hands
// back the same value types (string, float64, bool, map[string]any, []any).
func normalize(fields Fields) (Fields, []byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	out := Fields{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, data, nil
}

// matches reports whether the field's text form equals value, the same
// comparison Postgres performs with fields->>field.
func matches(fields Fields, field, value string) bool {
	v, ok := fields[field]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t == value
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return false
		}
		return string(b) == value
	}
}
