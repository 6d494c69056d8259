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

// Package sensor maintains per-role climate sensor state: bounded reading
// history, trend and feels-like derivation, and staleness tracking.
package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

// The two sensor roles the dashboard knows about.
const (
	RoleIndoor  = "indoor"
	RoleOutdoor = "outdoor"
)

// ErrUnknownRole is returned for any role other than indoor or outdoor.
var ErrUnknownRole = fmt.Errorf("unknown sensor role")

// comparisonDeadband is the feels-like difference, in degrees C, below which
// indoor and outdoor are reported as equivalent.
const comparisonDeadband = 0.5

// DeviceSubscriber is the part of the bridge client the engine uses to
// follow or stop following a device's topic.
type DeviceSubscriber interface {
	SubscribeDevice(name string)
	UnsubscribeDevice(name string)
}

// ClimateStore persists the role-to-device assignments and display unit.
type ClimateStore interface {
	Climate() models.ClimateConfig
	SaveClimate(models.ClimateConfig) error
}

type roleState struct {
	device string
	// history holds up to cfg.HistorySize readings, newest last.
	history []models.SensorReading
}

// Engine is the sensor state engine. All methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	cfg     models.SensorConfig
	climate ClimateStore
	cache   *CacheStore
	bus     *fanout.Bus
	devices DeviceSubscriber
	log     logger.Logger
	now     func() time.Time
	roles   map[string]*roleState
}

// NewEngine builds an engine seeded with the role assignments from the
// climate store. Call LoadCache to restore persisted readings and
// AttachBridge once the bridge client exists.
func NewEngine(cfg models.SensorConfig, climate ClimateStore, cache *CacheStore, bus *fanout.Bus, log logger.Logger) *Engine {
	cc := climate.Climate()

	return &Engine{
		cfg:     cfg,
		climate: climate,
		cache:   cache,
		bus:     bus,
		log:     log,
		now:     time.Now,
		roles: map[string]*roleState{
			RoleIndoor:  {device: cc.Indoor},
			RoleOutdoor: {device: cc.Outdoor},
		},
	}
}

// LoadCache restores the last persisted reading per role so the dashboard
// has data immediately after a restart. Only roles that still have a device
// assigned are restored; history beyond the single cached reading is not.
func (e *Engine) LoadCache(ctx context.Context) error {
	cached, err := e.cache.Load(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for role, reading := range cached {
		rs, ok := e.roles[role]
		if !ok || rs.device == "" {
			continue
		}

		rs.history = []models.SensorReading{reading}
	}

	return nil
}

// AttachBridge registers the bridge client and subscribes to every
// currently assigned device.
func (e *Engine) AttachBridge(devices DeviceSubscriber) {
	e.mu.Lock()
	e.devices = devices

	assigned := make(map[string]struct{})
	for _, rs := range e.roles {
		if rs.device != "" {
			assigned[rs.device] = struct{}{}
		}
	}
	e.mu.Unlock()

	for device := range assigned {
		devices.SubscribeDevice(device)
	}
}

// HandleDeviceUpdate ingests a raw device payload for the named device.
// Malformed payloads are logged and dropped; missing fields default rather
// than fail.
func (e *Engine) HandleDeviceUpdate(ctx context.Context, device string, payload []byte) {
	reading, err := parseReading(payload, e.now())
	if err != nil {
		e.log.Warn().Err(err).Str("device", device).Msg("Unreadable sensor payload")
		return
	}

	var updated []string

	e.mu.Lock()

	for role, rs := range e.roles {
		if rs.device != device {
			continue
		}

		rs.history = append(rs.history, reading)
		if len(rs.history) > e.cfg.HistorySize {
			rs.history = rs.history[len(rs.history)-e.cfg.HistorySize:]
		}

		updated = append(updated, role)
	}

	e.mu.Unlock()

	for _, role := range updated {
		if err := e.cache.Save(ctx, role, reading); err != nil {
			e.log.Error().Err(err).Str("role", role).Msg("Failed to persist sensor reading")
		}

		e.bus.Broadcast(fanout.ChannelSensor, map[string]any{
			"type": "sensors-updated",
			"role": role,
		})
	}
}

func parseReading(payload []byte, observedAt time.Time) (models.SensorReading, error) {
	var raw struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
		Battery     *int     `json:"battery"`
	}

	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.SensorReading{}, fmt.Errorf("decode sensor payload: %w", err)
	}

	reading := models.SensorReading{Battery: 100, ObservedAt: observedAt}

	if raw.Temperature != nil {
		reading.Temperature = *raw.Temperature
	}

	if raw.Humidity != nil {
		reading.Humidity = *raw.Humidity
	}

	if raw.Battery != nil {
		reading.Battery = *raw.Battery
	}

	return reading, nil
}

// State returns the derived view of one role.
func (e *Engine) State(role string) (models.SensorState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.roles[role]
	if !ok {
		return models.SensorState{}, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	return e.stateLocked(rs), nil
}

// All returns the derived view of every role.
func (e *Engine) All() map[string]models.SensorState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]models.SensorState, len(e.roles))
	for role, rs := range e.roles {
		out[role] = e.stateLocked(rs)
	}

	return out
}

func (e *Engine) stateLocked(rs *roleState) models.SensorState {
	if rs.device == "" {
		return models.SensorState{
			Availability: models.SensorUnconfigured,
			Error:        "no sensor configured",
		}
	}

	if len(rs.history) == 0 {
		return models.SensorState{
			Availability: models.SensorWaiting,
			Error:        "waiting for sensor data",
		}
	}

	current := rs.history[len(rs.history)-1]
	age := e.now().Sub(current.ObservedAt)

	if age > e.cfg.StalenessCeiling.Duration() {
		return models.SensorState{
			Availability: models.SensorStale,
			Error:        "sensor data is stale",
			AgeSeconds:   int(age.Seconds()),
		}
	}

	st := models.SensorState{
		Available:    true,
		Availability: models.SensorOK,
		Temperature:  round1(current.Temperature),
		Humidity:     round1(current.Humidity),
		FeelsLike:    round1(FeelsLike(current.Temperature, current.Humidity)),
		Battery:      current.Battery,
		AgeSeconds:   int(age.Seconds()),
	}

	st.TemperatureTrend = models.TrendSteady
	st.HumidityTrend = models.TrendSteady

	if len(rs.history) >= 2 {
		previous := rs.history[len(rs.history)-2]
		st.TemperatureTrend = trend(current.Temperature, previous.Temperature, e.cfg.TrendThresholdTemp)
		st.HumidityTrend = trend(current.Humidity, previous.Humidity, e.cfg.TrendThresholdHumidity)
	}

	return st
}

// trend compares the current value with the immediately preceding one. A
// delta inside the threshold reads as steady.
func trend(current, previous, threshold float64) models.Trend {
	switch delta := current - previous; {
	case delta > threshold:
		return models.TrendRising
	case delta < -threshold:
		return models.TrendFalling
	default:
		return models.TrendSteady
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Comparison contrasts indoor and outdoor feels-like values. It is nil when
// either side has no usable reading.
func (e *Engine) Comparison() *models.SensorComparison {
	e.mu.Lock()
	defer e.mu.Unlock()

	indoor := e.stateLocked(e.roles[RoleIndoor])
	outdoor := e.stateLocked(e.roles[RoleOutdoor])

	if !indoor.Available || !outdoor.Available {
		return nil
	}

	diff := round1(outdoor.FeelsLike - indoor.FeelsLike)

	// Differences inside half a degree read as neither cooler nor warmer.
	return &models.SensorComparison{
		OutsideFeelsCooler: diff < -comparisonDeadband,
		OutsideFeelsWarmer: diff > comparisonDeadband,
		Difference:         diff,
	}
}

// Roles reports the current device assignment per role.
func (e *Engine) Roles() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.roles))
	for role, rs := range e.roles {
		out[role] = rs.device
	}

	return out
}

// SetRole assigns a device to a role, or clears the role when device is
// empty. History and the cached reading are discarded so derived values
// never mix devices, and bridge subscriptions follow the assignment.
func (e *Engine) SetRole(ctx context.Context, role, device string) error {
	e.mu.Lock()

	rs, ok := e.roles[role]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	previous := rs.device

	// Re-assigning the same device is a no-op. Subscribing again here would
	// inflate the bridge refcount and wipe history for nothing.
	if previous == device {
		e.mu.Unlock()
		return nil
	}

	rs.device = device
	rs.history = nil

	stillUsed := false

	for _, other := range e.roles {
		if other != rs && other.device == previous {
			stillUsed = true
		}
	}

	devices := e.devices
	cc := e.climateLocked()

	e.mu.Unlock()

	if err := e.cache.Delete(ctx, role); err != nil {
		e.log.Error().Err(err).Str("role", role).Msg("Failed to clear cached reading")
	}

	if devices != nil {
		if previous != "" && !stillUsed {
			devices.UnsubscribeDevice(previous)
		}

		if device != "" {
			devices.SubscribeDevice(device)
		}
	}

	return e.climate.SaveClimate(cc)
}

// SetUnit persists the display unit ("C" or "F").
func (e *Engine) SetUnit(unit string) error {
	if unit != "C" && unit != "F" {
		return fmt.Errorf("invalid unit %q", unit)
	}

	cc := e.climate.Climate()

	e.mu.Lock()
	indoor := e.roles[RoleIndoor].device
	outdoor := e.roles[RoleOutdoor].device
	e.mu.Unlock()

	cc.Indoor = indoor
	cc.Outdoor = outdoor
	cc.Unit = unit

	return e.climate.SaveClimate(cc)
}

// Unit reports the configured display unit.
func (e *Engine) Unit() string {
	return e.climate.Climate().Unit
}

// climateLocked snapshots the assignments into a ClimateConfig, preserving
// the stored unit. Caller holds e.mu.
func (e *Engine) climateLocked() models.ClimateConfig {
	cc := e.climate.Climate()
	cc.Indoor = e.roles[RoleIndoor].device
	cc.Outdoor = e.roles[RoleOutdoor].device

	return cc
}
