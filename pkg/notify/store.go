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

// Package notify implements the durable due-date notification scheduler and
// its SQLite event store.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quietlane/home-relay/pkg/models"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("notification not found")

// knownTypes are pre-seeded so they show up in the preferences list before
// any upstream app registers an event. They start unconfigured.
var knownTypes = []string{"shot", "maintenance", "weather"}

// dueDateLayout is the calendar-date format events carry. Due-ness is
// evaluated against local dates, not instants.
const dueDateLayout = "2006-01-02"

// Store is the SQLite-backed notification store. Events are keyed naturally
// by (type, name); dismissals and type preferences live in side tables.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the notification database and
// seeds the known types.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create notification dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping notification store: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	due_date TEXT NOT NULL,
	data TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(type, name)
)`,
		`CREATE TABLE IF NOT EXISTS dismissed (
	event_id INTEGER PRIMARY KEY,
	dismissed_until TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS type_preferences (
	type TEXT PRIMARY KEY,
	enabled INTEGER,
	first_seen TEXT NOT NULL
)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init notification schema: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, typ := range knownTypes {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO type_preferences (type, enabled, first_seen) VALUES (?, NULL, ?)`,
			typ, now); err != nil {
			return fmt.Errorf("seed known type %s: %w", typ, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// normalizeDueDate reduces an incoming due date to a bare calendar date.
// Upstream apps commonly send full ISO datetimes; the time of day is
// irrelevant to due-ness and is stripped rather than rejected.
func normalizeDueDate(dueDate string) (string, error) {
	if t := strings.IndexAny(dueDate, "T "); t >= 0 {
		dueDate = dueDate[:t]
	}

	if _, err := time.Parse(dueDateLayout, dueDate); err != nil {
		return "", fmt.Errorf("invalid due date %q: %w", dueDate, err)
	}

	return dueDate, nil
}

// Upsert registers or updates the event identified by (type, name). When an
// update changes the due date, any standing dismissal is cleared so the
// event can resurface. The type is recorded in preferences if new.
func (s *Store) Upsert(ctx context.Context, typ, name, dueDate string, data []byte) (int64, error) {
	dueDate, err := normalizeDueDate(dueDate)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		id          int64
		previousDue string
	)

	err = tx.QueryRowContext(ctx,
		`SELECT id, due_date FROM events WHERE type = ? AND name = ?`,
		typ, name).Scan(&id, &previousDue)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (type, name, due_date, data, created_at) VALUES (?, ?, ?, ?, ?)`,
			typ, name, dueDate, nullableText(data), now)
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("event id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("lookup event: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE events SET due_date = ?, data = ? WHERE id = ?`,
			dueDate, nullableText(data), id); err != nil {
			return 0, fmt.Errorf("update event: %w", err)
		}

		// A changed due date is a new obligation; dismissals do not carry
		// over. An unchanged date keeps the dismissal standing.
		if previousDue != dueDate {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM dismissed WHERE event_id = ?`, id); err != nil {
				return 0, fmt.Errorf("clear dismissal: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO type_preferences (type, enabled, first_seen) VALUES (?, NULL, ?)`,
		typ, now); err != nil {
		return 0, fmt.Errorf("record type: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	return id, nil
}

func nullableText(data []byte) any {
	if len(data) == 0 {
		return nil
	}

	return string(data)
}

// ListEvents returns all events, optionally filtered by type, with any
// standing dismissal attached.
func (s *Store) ListEvents(ctx context.Context, typ string) ([]models.NotificationEvent, error) {
	query := `
SELECT e.id, e.type, e.name, e.due_date, e.data, e.created_at, d.dismissed_until
FROM events e
LEFT JOIN dismissed d ON d.event_id = e.id`

	args := []any{}

	if typ != "" {
		query += ` WHERE e.type = ?`
		args = append(args, typ)
	}

	query += ` ORDER BY e.due_date, e.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationEvent

	for rows.Next() {
		var (
			ev             models.NotificationEvent
			data           sql.NullString
			dismissedUntil sql.NullString
		)

		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Name, &ev.DueDate, &data, &ev.CreatedAt, &dismissedUntil); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if data.Valid {
			ev.Data = []byte(data.String)
		}

		if dismissedUntil.Valid {
			ev.DismissedUntil = dismissedUntil.String
		}

		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter events: %w", err)
	}

	return out, nil
}

// DeleteEvent removes an event and its dismissal.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dismissed WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("delete dismissal: %w", err)
	}

	return nil
}

// Dismiss records a dismissal horizon for an event. Dismissing an id that
// does not exist is a no-op: the caller cannot tell a just-deleted event
// from a never-existing one, and neither needs an error.
func (s *Store) Dismiss(ctx context.Context, id int64, until time.Time) error {
	var exists int

	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("lookup event: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO dismissed (event_id, dismissed_until) VALUES (?, ?)
ON CONFLICT(event_id) DO UPDATE SET dismissed_until=excluded.dismissed_until
`, id, until.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record dismissal: %w", err)
	}

	return nil
}

// Undismiss clears any standing dismissal. Idempotent.
func (s *Store) Undismiss(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dismissed WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("clear dismissal: %w", err)
	}

	return nil
}

// DueEvents evaluates the due set at the given instant: events due on or
// before tomorrow (local date), whose type is explicitly enabled, and whose
// dismissal (if any) has lapsed.
func (s *Store) DueEvents(ctx context.Context, now time.Time) ([]models.DueNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT e.id, e.type, e.name, e.due_date, e.data, d.dismissed_until
FROM events e
JOIN type_preferences p ON p.type = e.type AND p.enabled = 1
LEFT JOIN dismissed d ON d.event_id = e.id
ORDER BY e.due_date, e.id`)
	if err != nil {
		return nil, fmt.Errorf("query due events: %w", err)
	}
	defer rows.Close()

	today := now.Format(dueDateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(dueDateLayout)

	var out []models.DueNotification

	for rows.Next() {
		var (
			n              models.DueNotification
			data           sql.NullString
			dismissedUntil sql.NullString
		)

		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &n.DueDate, &data, &dismissedUntil); err != nil {
			return nil, fmt.Errorf("scan due event: %w", err)
		}

		if n.DueDate > tomorrow {
			continue
		}

		if dismissedUntil.Valid {
			until, err := time.Parse(time.RFC3339Nano, dismissedUntil.String)
			if err == nil && now.Before(until) {
				continue
			}
		}

		n.IsOverdue = n.DueDate < today
		n.IsToday = n.DueDate == today
		n.IsTomorrow = n.DueDate == tomorrow

		if data.Valid {
			n.Data = []byte(data.String)
		}

		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter due events: %w", err)
	}

	return out, nil
}

// TypePreferences lists every recorded type with its enabled state.
func (s *Store) TypePreferences(ctx context.Context) ([]models.TypePreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, enabled, first_seen FROM type_preferences ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("list type preferences: %w", err)
	}
	defer rows.Close()

	var out []models.TypePreference

	for rows.Next() {
		var (
			p       models.TypePreference
			enabled sql.NullBool
		)

		if err := rows.Scan(&p.Type, &enabled, &p.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan type preference: %w", err)
		}

		if enabled.Valid {
			p.Enabled = &enabled.Bool
		}

		// Known means the user has made a decision, not that the type was
		// pre-seeded.
		p.IsKnown = enabled.Valid

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter type preferences: %w", err)
	}

	return out, nil
}

// UnconfiguredCount reports how many types the user has not yet enabled or
// disabled. The dashboard badges this number.
func (s *Store) UnconfiguredCount(ctx context.Context) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM type_preferences WHERE enabled IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unconfigured types: %w", err)
	}

	return n, nil
}

// SetTypeEnabled records the user's decision for a type.
func (s *Store) SetTypeEnabled(ctx context.Context, typ string, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO type_preferences (type, enabled, first_seen) VALUES (?, ?, ?)
ON CONFLICT(type) DO UPDATE SET enabled=excluded.enabled
`, typ, enabled, now); err != nil {
		return fmt.Errorf("set type preference: %w", err)
	}

	return nil
}

// DeleteTypePreference forgets a type entirely: its preference, its events,
// and their dismissals.
func (s *Store) DeleteTypePreference(ctx context.Context, typ string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin type delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dismissed WHERE event_id IN (SELECT id FROM events WHERE type = ?)`,
		typ); err != nil {
		return fmt.Errorf("delete type dismissals: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE type = ?`, typ); err != nil {
		return fmt.Errorf("delete type events: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM type_preferences WHERE type = ?`, typ); err != nil {
		return fmt.Errorf("delete type preference: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit type delete: %w", err)
	}

	return nil
}
