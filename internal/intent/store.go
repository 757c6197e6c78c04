// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TrainingStore is the durable, append-only log of training examples.
type TrainingStore struct {
	db *sql.DB
}

// OpenTrainingStore opens (creating if necessary) the SQLite store at path.
func OpenTrainingStore(path string) (*TrainingStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open training store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS training_examples (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message    TEXT NOT NULL,
		intent     TEXT NOT NULL,
		entities   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_training_intent ON training_examples(intent);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &TrainingStore{db: db}, nil
}

// Append records one training example. The log is append-only; rows are
// never updated or deleted.
func (s *TrainingStore) Append(ex TrainingExample) error {
	entities, err := json.Marshal(ex.Entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}

	ts := ex.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = s.db.Exec(
		`INSERT INTO training_examples (message, intent, entities, created_at) VALUES (?, ?, ?, ?)`,
		ex.Message, ex.Intent, string(entities), ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append example: %w", err)
	}
	return nil
}

// All returns every recorded example in insertion order.
func (s *TrainingStore) All() ([]TrainingExample, error) {
	rows, err := s.db.Query(
		`SELECT message, intent, entities, created_at FROM training_examples ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var out []TrainingExample
	for rows.Next() {
		var ex TrainingExample
		var entities string
		var createdAt int64
		if err := rows.Scan(&ex.Message, &ex.Intent, &entities, &createdAt); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		ex.Timestamp = time.Unix(createdAt, 0).UTC()
		if entities != "" && entities != "{}" && entities != "null" {
			if err := json.Unmarshal([]byte(entities), &ex.Entities); err != nil {
				return nil, fmt.Errorf("decode entities: %w", err)
			}
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// CountByIntent returns how many examples exist for the given intent.
func (s *TrainingStore) CountByIntent(intent string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM training_examples WHERE intent = ?`, intent,
	).Scan(&n)
	return n, err
}

// Close releases the underlying database handle.
func (s *TrainingStore) Close() error {
	return s.db.Close()
}
