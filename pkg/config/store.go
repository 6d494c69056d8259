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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

// saveIDKey is stripped before persisting and echoed in the change
// notification so the originating client can ignore its own update.
const saveIDKey = "_saveId"

// Store owns the dashboard configuration document. Saves are broadcast on
// the config fan-out channel so connected dashboards stay in sync.
type Store struct {
	mu   sync.Mutex
	path string
	bus  *fanout.Bus
	log  logger.Logger
}

func NewStore(path string, bus *fanout.Bus, log logger.Logger) *Store {
	return &Store{path: path, bus: bus, log: log}
}

// Load returns the saved dashboard config, or an empty document if none
// exists yet. The frontend supplies defaults for missing sections.
func (s *Store) Load() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *Store) loadLocked() map[string]any {
	doc := map[string]any{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Dashboard config unreadable, starting empty")
		return map[string]any{}
	}

	return doc
}

// Save persists the full dashboard config and notifies subscribers. The
// _saveId field, if present, is removed before writing and echoed in the
// notification.
func (s *Store) Save(doc map[string]any) (map[string]any, error) {
	saveID, _ := doc[saveIDKey].(string)
	delete(doc, saveIDKey)

	s.mu.Lock()

	if err := s.writeLocked(doc); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Unlock()

	s.NotifyUpdated(saveID)

	return doc, nil
}

func (s *Store) writeLocked(doc map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dashboard config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write dashboard config: %w", err)
	}

	return nil
}

// NotifyUpdated broadcasts a config-updated event, echoing saveID when set.
func (s *Store) NotifyUpdated(saveID string) {
	payload := map[string]any{"type": "config-updated"}
	if saveID != "" {
		payload["saveId"] = saveID
	}

	s.bus.Broadcast(fanout.ChannelConfig, payload)
}

// Climate returns the climate section of the dashboard config.
func (s *Store) Climate() models.ClimateConfig {
	doc := s.Load()

	cc := models.ClimateConfig{Unit: "C"}

	section, ok := doc["climate"].(map[string]any)
	if !ok {
		return cc
	}

	if v, ok := section["indoor"].(string); ok {
		cc.Indoor = v
	}

	if v, ok := section["outdoor"].(string); ok {
		cc.Outdoor = v
	}

	if v, ok := section["unit"].(string); ok && v != "" {
		cc.Unit = v
	}

	return cc
}

// SaveClimate persists the climate section, leaving the rest of the
// document untouched, and notifies subscribers.
func (s *Store) SaveClimate(cc models.ClimateConfig) error {
	s.mu.Lock()

	doc := s.loadLocked()
	doc["climate"] = map[string]any{
		"indoor":  cc.Indoor,
		"outdoor": cc.Outdoor,
		"unit":    cc.Unit,
	}

	err := s.writeLocked(doc)

	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.NotifyUpdated("")

	return nil
}
