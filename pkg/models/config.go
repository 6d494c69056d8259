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
	"errors"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

// Duration is a wrapper around time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		*d = Duration(tmp)
	default:
		return ErrInvalidDuration
	}

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration converts to the standard library type.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MQTTConfig describes the pub/sub transport connection.
type MQTTConfig struct {
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	BaseTopic         string   `json:"base_topic"`
	ClientID          string   `json:"client_id"`
	ReconnectInterval Duration `json:"reconnect_interval"`
	RequestTimeout    Duration `json:"request_timeout"`
}

// SensorConfig tunes the sensor state engine. The thresholds were carried
// over from the original deployment; they are config fields rather than
// constants so installations can adjust them.
type SensorConfig struct {
	CachePath              string   `json:"cache_path"`
	HistorySize            int      `json:"history_size"`
	StalenessCeiling       Duration `json:"staleness_ceiling"`
	TrendThresholdTemp     float64  `json:"trend_threshold_temp"`     // degrees C
	TrendThresholdHumidity float64  `json:"trend_threshold_humidity"` // percent RH
}

// NotificationConfig tunes the notification scheduler.
type NotificationConfig struct {
	DBPath              string   `json:"db_path"`
	TickInterval        Duration `json:"tick_interval"`
	DefaultDismissHours int      `json:"default_dismiss_hours"`
}

// CORSConfig describes allowed cross-origin access for the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
}
