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

// Package models contains the shared data types for the home-relay service.
package models

import "time"

// SensorReading is a single observation from a climate sensor.
// Values are always Celsius; unit conversion happens at the API layer.
type SensorReading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Battery     int       `json:"battery"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Trend describes the direction a sensor value is moving.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendSteady  Trend = "steady"
)

// SensorAvailability distinguishes the reasons a role has no usable reading.
type SensorAvailability string

const (
	// SensorOK means a fresh reading is available.
	SensorOK SensorAvailability = "ok"
	// SensorUnconfigured means no device is assigned to the role.
	SensorUnconfigured SensorAvailability = "unconfigured"
	// SensorWaiting means a device is assigned but no reading has arrived yet.
	SensorWaiting SensorAvailability = "waiting"
	// SensorStale means the most recent reading exceeded the staleness ceiling.
	SensorStale SensorAvailability = "stale"
)

// SensorState is the derived view of one sensor role.
type SensorState struct {
	Available        bool               `json:"available"`
	Availability     SensorAvailability `json:"-"`
	Error            string             `json:"error,omitempty"`
	Temperature      float64            `json:"temperature,omitempty"`
	Humidity         float64            `json:"humidity,omitempty"`
	FeelsLike        float64            `json:"feels_like,omitempty"`
	TemperatureTrend Trend              `json:"temperature_trend,omitempty"`
	HumidityTrend    Trend              `json:"humidity_trend,omitempty"`
	Battery          int                `json:"battery,omitempty"`
	AgeSeconds       int                `json:"age_seconds,omitempty"`
}

// SensorComparison contrasts the indoor and outdoor feels-like values.
type SensorComparison struct {
	OutsideFeelsCooler bool    `json:"outside_feels_cooler"`
	OutsideFeelsWarmer bool    `json:"outside_feels_warmer"`
	Difference         float64 `json:"difference"`
}

// ClimateConfig maps sensor roles to device friendly names.
type ClimateConfig struct {
	Indoor  string `json:"indoor"`
	Outdoor string `json:"outdoor"`
	Unit    string `json:"unit"`
}
