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

package models

import (
	"encoding/json"
	"time"
)

// NotificationEvent is a durable reminder registered by an upstream app.
// (Type, Name) is the natural key; re-registering updates in place.
type NotificationEvent struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	Name           string          `json:"name"`
	DueDate        string          `json:"due_date"` // calendar date, YYYY-MM-DD
	Data           json.RawMessage `json:"data,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	DismissedUntil string          `json:"dismissed_until,omitempty"`
}

// DueNotification is an event that currently qualifies for alerting.
type DueNotification struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	DueDate    string          `json:"due_date"`
	Data       json.RawMessage `json:"data,omitempty"`
	IsOverdue  bool            `json:"is_overdue"`
	IsToday    bool            `json:"is_today"`
	IsTomorrow bool            `json:"is_tomorrow"`
}

// TypePreference records whether notifications of a type are enabled.
// Enabled is nil until the user explicitly configures the type; unset types
// never surface in the due set. IsKnown reports that an explicit decision
// exists, regardless of direction.
type TypePreference struct {
	Type      string `json:"type"`
	Enabled   *bool  `json:"enabled"`
	FirstSeen string `json:"first_seen,omitempty"`
	IsKnown   bool   `json:"is_known"`
}

// DismissMode selects how long a notification stays dismissed.
type DismissMode string

const (
	// DismissForHours hides the event for a fixed number of hours.
	DismissForHours DismissMode = "hours"
	// DismissUntilMidnight hides the event until the next local midnight.
	DismissUntilMidnight DismissMode = "until_midnight"
	// DismissPermanent hides the event until its due date changes.
	DismissPermanent DismissMode = "permanent"
)

// PermanentDismissWindow is the far-future horizon used for permanent
// dismissals. A concrete instant keeps ordinary time comparisons valid.
const PermanentDismissWindow = 10 * 365 * 24 * time.Hour
