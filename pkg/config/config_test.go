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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "zigbee2mqtt", cfg.MQTT.BaseTopic)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 60, cfg.Sensors.HistorySize)
	assert.Equal(t, models.Duration(90*time.Minute), cfg.Sensors.StalenessCeiling)
	assert.Equal(t, models.Duration(time.Minute), cfg.Notifications.TickInterval)
	assert.Equal(t, 4, cfg.Notifications.DefaultDismissHours)
}

func TestLoadFilePartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.json")
	body := `{"listen_addr": ":9100", "mqtt": {"host": "broker.local", "reconnect_interval": "5s"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, models.Duration(5*time.Second), cfg.MQTT.ReconnectInterval)

	// Unset fields still get defaults.
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 0.3, cfg.Sensors.TrendThresholdTemp)
}

func TestStoreSaveStripsSaveIDAndEchoesIt(t *testing.T) {
	bus := fanout.New(logger.NewTestLogger())

	sub, err := bus.Subscribe(fanout.ChannelConfig, nil)
	require.NoError(t, err)

	defer sub.Close()

	path := filepath.Join(t.TempDir(), "dashboard.json")
	store := NewStore(path, bus, logger.NewTestLogger())

	saved, err := store.Save(map[string]any{"_saveId": "abc123", "theme": "dark"})
	require.NoError(t, err)

	_, hasSaveID := saved["_saveId"]
	assert.False(t, hasSaveID)

	// The file on disk must not contain the save id either.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "_saveId")

	var event map[string]any

	require.NoError(t, json.Unmarshal(<-sub.C, &event))
	assert.Equal(t, "config-updated", event["type"])
	assert.Equal(t, "abc123", event["saveId"])
}

func TestStoreClimateRoundTrip(t *testing.T) {
	bus := fanout.New(logger.NewTestLogger())
	path := filepath.Join(t.TempDir(), "dashboard.json")
	store := NewStore(path, bus, logger.NewTestLogger())

	require.NoError(t, store.SaveClimate(models.ClimateConfig{
		Indoor:  "office-sensor",
		Outdoor: "patio-sensor",
		Unit:    "F",
	}))

	cc := store.Climate()
	assert.Equal(t, "office-sensor", cc.Indoor)
	assert.Equal(t, "patio-sensor", cc.Outdoor)
	assert.Equal(t, "F", cc.Unit)
}

func TestStoreClimateDefaultsWhenEmpty(t *testing.T) {
	bus := fanout.New(logger.NewTestLogger())
	store := NewStore(filepath.Join(t.TempDir(), "dashboard.json"), bus, logger.NewTestLogger())

	cc := store.Climate()
	assert.Empty(t, cc.Indoor)
	assert.Empty(t, cc.Outdoor)
	assert.Equal(t, "C", cc.Unit)
}
