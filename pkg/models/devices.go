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

// ZigbeeDevice is one entry from the bridge's device list.
type ZigbeeDevice struct {
	FriendlyName       string `json:"friendly_name"`
	IEEEAddress        string `json:"ieee_address"`
	Type               string `json:"type"`
	NetworkAddress     int    `json:"network_address"`
	Model              string `json:"model,omitempty"`
	Vendor             string `json:"vendor,omitempty"`
	Description        string `json:"description,omitempty"`
	PowerSource        string `json:"power_source,omitempty"`
	Supported          bool   `json:"supported"`
	Interviewing       bool   `json:"interviewing"`
	InterviewCompleted bool   `json:"interview_completed"`
}

// ClimateSensor is a device that exposes temperature, eligible for a sensor role.
type ClimateSensor struct {
	FriendlyName string `json:"friendly_name"`
	Model        string `json:"model"`
	Description  string `json:"description"`
}

// BridgeInfo is the gateway bridge's self-reported state.
type BridgeInfo struct {
	Version           string `json:"version,omitempty"`
	Coordinator       any    `json:"coordinator,omitempty"`
	LogLevel          string `json:"log_level,omitempty"`
	PermitJoin        bool   `json:"permit_join"`
	PermitJoinTimeout int    `json:"permit_join_timeout,omitempty"`
}
