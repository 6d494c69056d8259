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

package bridge

import (
	"encoding/json"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/models"
)

// registry caches the gateway's retained self-description so API reads
// never have to ask the broker.
type registry struct {
	mu      sync.RWMutex
	devices []models.ZigbeeDevice
	climate []models.ClimateSensor
	info    models.BridgeInfo
	state   string
}

// rawDevice is the wire shape of one bridge device list entry. The exposes
// tree is only walked to decide climate eligibility.
type rawDevice struct {
	FriendlyName       string `json:"friendly_name"`
	IEEEAddress        string `json:"ieee_address"`
	Type               string `json:"type"`
	NetworkAddress     int    `json:"network_address"`
	PowerSource        string `json:"power_source"`
	Supported          bool   `json:"supported"`
	Interviewing       bool   `json:"interviewing"`
	InterviewCompleted bool   `json:"interview_completed"`
	Definition         *struct {
		Model       string       `json:"model"`
		Vendor      string       `json:"vendor"`
		Description string       `json:"description"`
		Exposes     []exposeNode `json:"exposes"`
	} `json:"definition"`
}

type exposeNode struct {
	Name     string       `json:"name"`
	Property string       `json:"property"`
	Features []exposeNode `json:"features"`
}

// exposesTemperature walks the expose tree looking for a temperature
// expose at any depth; composite exposes nest under features. Some device
// definitions carry the name without a property, so both are checked.
func exposesTemperature(nodes []exposeNode) bool {
	for _, node := range nodes {
		if node.Property == "temperature" || node.Name == "temperature" {
			return true
		}

		if exposesTemperature(node.Features) {
			return true
		}
	}

	return false
}

func (c *Client) handleBridgeDevices(_ mqtt.Client, msg mqtt.Message) {
	var raw []rawDevice

	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		c.log.Warn().Err(err).Msg("Unreadable bridge device list")
		return
	}

	devices := make([]models.ZigbeeDevice, 0, len(raw))

	var climate []models.ClimateSensor

	for _, rd := range raw {
		// The coordinator itself is not a device anyone assigns.
		if rd.Type == "Coordinator" {
			continue
		}

		dev := models.ZigbeeDevice{
			FriendlyName:       rd.FriendlyName,
			IEEEAddress:        rd.IEEEAddress,
			Type:               rd.Type,
			NetworkAddress:     rd.NetworkAddress,
			PowerSource:        rd.PowerSource,
			Supported:          rd.Supported,
			Interviewing:       rd.Interviewing,
			InterviewCompleted: rd.InterviewCompleted,
		}

		if rd.Definition != nil {
			dev.Model = rd.Definition.Model
			dev.Vendor = rd.Definition.Vendor
			dev.Description = rd.Definition.Description

			if exposesTemperature(rd.Definition.Exposes) {
				climate = append(climate, models.ClimateSensor{
					FriendlyName: rd.FriendlyName,
					Model:        rd.Definition.Model,
					Description:  rd.Definition.Description,
				})
			}
		}

		devices = append(devices, dev)
	}

	c.registry.mu.Lock()
	c.registry.devices = devices
	c.registry.climate = climate
	c.registry.mu.Unlock()

	c.log.Debug().Int("devices", len(devices)).Int("climate_sensors", len(climate)).Msg("Bridge device list updated")
}

func (c *Client) handleBridgeInfo(_ mqtt.Client, msg mqtt.Message) {
	var info models.BridgeInfo

	if err := json.Unmarshal(msg.Payload(), &info); err != nil {
		c.log.Warn().Err(err).Msg("Unreadable bridge info")
		return
	}

	c.registry.mu.Lock()
	c.registry.info = info
	c.registry.mu.Unlock()
}

func (c *Client) handleBridgeState(_ mqtt.Client, msg mqtt.Message) {
	// Older bridges publish a bare string, newer ones a JSON object.
	state := string(msg.Payload())

	var wrapped struct {
		State string `json:"state"`
	}

	if err := json.Unmarshal(msg.Payload(), &wrapped); err == nil && wrapped.State != "" {
		state = wrapped.State
	}

	c.registry.mu.Lock()
	c.registry.state = state
	c.registry.mu.Unlock()

	c.log.Info().Str("state", state).Msg("Bridge state changed")
}

func (c *Client) handleBridgeEvent(_ mqtt.Client, msg mqtt.Message) {
	var event struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		return
	}

	c.log.Info().Str("event", event.Type).Msg("Bridge event")

	// Join and interview activity changes the device population; ask for a
	// fresh list rather than waiting for the gateway's own republish.
	switch event.Type {
	case "device_joined", "device_interview", "device_announce":
		c.requestDeviceList()
	}

	// Surface join/leave activity to live viewers; the retained device
	// list refresh follows on its own topic.
	c.bus.Broadcast(fanout.ChannelCommand, map[string]any{
		"type":  "bridge-event",
		"event": json.RawMessage(append([]byte(nil), msg.Payload()...)),
	})
}

// Devices returns the cached device list.
func (c *Client) Devices() []models.ZigbeeDevice {
	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	return append([]models.ZigbeeDevice(nil), c.registry.devices...)
}

// ClimateSensors returns the devices eligible for a sensor role.
func (c *Client) ClimateSensors() []models.ClimateSensor {
	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	return append([]models.ClimateSensor(nil), c.registry.climate...)
}

// BridgeInfo returns the gateway's last self-reported info.
func (c *Client) BridgeInfo() models.BridgeInfo {
	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	return c.registry.info
}

// BridgeState returns the last retained bridge availability ("online",
// "offline", or empty before the first report).
func (c *Client) BridgeState() string {
	c.registry.mu.RLock()
	defer c.registry.mu.RUnlock()

	return c.registry.state
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}
