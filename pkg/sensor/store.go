/*
 * Copyright 2025 Home Relay Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sensor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quietlane/home-relay/pkg/models"
)

// CacheStore persists the last-known reading per role so current state
// survives restarts. History is memory-only and rebuilt from scratch.
type CacheStore struct {
	db *sql.DB
}

// OpenCache opens (and if needed creates) the sensor cache database.
func OpenCache(ctx context.Context, path string) (*CacheStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sensor cache: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sensor cache: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sensor_cache (
	role TEXT PRIMARY KEY,
	temperature REAL,
	humidity REAL,
	battery INTEGER,
	observed_at TEXT
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sensor cache schema: %w", err)
	}

	return &CacheStore{db: db}, nil
}

func (s *CacheStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Save upserts the current reading for a role. Only one row per role is
// ever kept.
func (s *CacheStore) Save(ctx context.Context, role string, reading models.SensorReading) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sensor_cache (role, temperature, humidity, battery, observed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(role) DO UPDATE SET
	temperature=excluded.temperature,
	humidity=excluded.humidity,
	battery=excluded.battery,
	observed_at=excluded.observed_at
`, role, reading.Temperature, reading.Humidity, reading.Battery, reading.ObservedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save sensor reading: %w", err)
	}

	return nil
}

// Load returns the cached reading per role.
func (s *CacheStore) Load(ctx context.Context) (map[string]models.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, temperature, humidity, battery, observed_at FROM sensor_cache`)
	if err != nil {
		return nil, fmt.Errorf("load sensor cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.SensorReading)

	for rows.Next() {
		var (
			role       string
			reading    models.SensorReading
			observedAt string
		)

		if err := rows.Scan(&role, &reading.Temperature, &reading.Humidity, &reading.Battery, &observedAt); err != nil {
			return nil, fmt.Errorf("scan sensor cache row: %w", err)
		}

		reading.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parse cached observed_at: %w", err)
		}

		out[role] = reading
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter sensor cache: %w", err)
	}

	return out, nil
}

// Delete removes the cached reading for a role, used on role reassignment.
func (s *CacheStore) Delete(ctx context.Context, role string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sensor_cache WHERE role = ?`, role); err != nil {
		return fmt.Errorf("delete sensor cache row: %w", err)
	}

	return nil
}
