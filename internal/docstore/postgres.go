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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents as JSONB rows keyed on (collection, id).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a document store backed by the given Postgres pool.
// It ensures the documents table exists on creation.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure document schema: %w", err)
	}
	slog.Info("document store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection  TEXT NOT NULL,
			id          TEXT NOT NULL,
			fields      JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_fields ON documents USING GIN (fields);
	`)
	return err
}

// Get returns documents in collection whose field's text value equals value.
func (s *Postgres) Get(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fields
		FROM documents
		WHERE collection = $1 AND fields->>$2 = $3
		ORDER BY id
	`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// Put inserts or replaces a document.
func (s *Postgres) Put(ctx context.Context, collection, id string, fields Fields) (string, error) {
	_, data, err := normalize(fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			fields     = EXCLUDED.fields,
			updated_at = NOW()
	`, collection, id, string(data))
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// Update merges fields into an existing document.
func (s *Postgres) Update(ctx context.Context, collection, id string, fields Fields) error {
	_, data, err := normalize(fields)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET fields = fields || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Delete removes a document.
func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Ping checks the Postgres connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// collectDocuments scans (id, fields) rows into documents.
func collectDocuments(rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields := Fields{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	return docs, rows.Err()
}
