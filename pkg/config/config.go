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

// Package config loads the service configuration file and owns the live
// dashboard configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

// ServiceConfig is the startup configuration for the relay process.
type ServiceConfig struct {
	ListenAddr          string                    `json:"listen_addr"`
	DashboardConfigPath string                    `json:"dashboard_config_path"`
	MQTT                models.MQTTConfig         `json:"mqtt"`
	Sensors             models.SensorConfig       `json:"sensors"`
	Notifications       models.NotificationConfig `json:"notifications"`
	CORS                models.CORSConfig         `json:"cors"`
	Logging             *logger.Config            `json:"logging,omitempty"`
}

// LoadFile reads a ServiceConfig from a JSON file, filling defaults for any
// omitted fields. A missing file yields the pure default configuration.
func LoadFile(path string) (*ServiceConfig, error) {
	cfg := defaultServiceConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func defaultServiceConfig() *ServiceConfig {
	cfg := &ServiceConfig{}
	cfg.applyDefaults()

	return cfg
}

func (c *ServiceConfig) applyDefaults() {
	dataDir := defaultDataDir()

	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}

	if c.DashboardConfigPath == "" {
		c.DashboardConfigPath = filepath.Join(dataDir, "dashboard.json")
	}

	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}

	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}

	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "zigbee2mqtt"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "home-relay"
	}

	if c.MQTT.ReconnectInterval == 0 {
		c.MQTT.ReconnectInterval = models.Duration(30 * time.Second)
	}

	if c.MQTT.RequestTimeout == 0 {
		c.MQTT.RequestTimeout = models.Duration(10 * time.Second)
	}

	if c.Sensors.CachePath == "" {
		c.Sensors.CachePath = filepath.Join(dataDir, "sensor_cache.db")
	}

	if c.Sensors.HistorySize == 0 {
		c.Sensors.HistorySize = 60
	}

	if c.Sensors.StalenessCeiling == 0 {
		c.Sensors.StalenessCeiling = models.Duration(90 * time.Minute)
	}

	if c.Sensors.TrendThresholdTemp == 0 {
		c.Sensors.TrendThresholdTemp = 0.3
	}

	if c.Sensors.TrendThresholdHumidity == 0 {
		c.Sensors.TrendThresholdHumidity = 1.5
	}

	if c.Notifications.DBPath == "" {
		c.Notifications.DBPath = filepath.Join(dataDir, "notifications.db")
	}

	if c.Notifications.TickInterval == 0 {
		c.Notifications.TickInterval = models.Duration(time.Minute)
	}

	if c.Notifications.DefaultDismissHours == 0 {
		c.Notifications.DefaultDismissHours = 4
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".home-relay"
	}

	return filepath.Join(home, ".config", "home-relay")
}
