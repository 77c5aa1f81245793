/*
 * Copyright 2026 The FleetGlass Authors.
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
	"strings"
	"time"
)

// Camera selectors accepted on the wire.
const (
	CameraFront = "front"
	CameraBack  = "back"
)

// Device represents the registry's current view of one remote agent.
type Device struct {
	DeviceID        string          `json:"device_id"`
	Name            string          `json:"name"`
	Manufacturer    string          `json:"manufacturer,omitempty"`
	Model           string          `json:"model,omitempty"`
	PlatformVersion string          `json:"platform_version,omitempty"`
	HardwareID      string          `json:"hardware_id,omitempty"`
	IsOnline        bool            `json:"is_online"`
	ConnectedAt     time.Time       `json:"connected_at"`
	LastActivity    time.Time       `json:"last_activity"`
	CurrentCamera   string          `json:"current_camera"`
	BatteryLevel    *int            `json:"battery_level,omitempty"`
	IsCharging      *bool           `json:"is_charging,omitempty"`
	BatteryTemp     *float64        `json:"battery_temp,omitempty"`
	MemoryUsage     *int64          `json:"memory_usage,omitempty"`
	StorageUsage    *float64        `json:"storage_usage,omitempty"`
	LastLocation    *LocationRecord `json:"last_location,omitempty"`
}

// DeviceMetadata carries the static identity fields presented at registration.
type DeviceMetadata struct {
	DeviceID        string `json:"device_id"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	HardwareID      string `json:"hardware_id,omitempty"`
}

// DisplayName derives the default device name from manufacturer and model.
func (m *DeviceMetadata) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(m.Manufacturer) + " " + strings.TrimSpace(m.Model))
	if name == "" {
		return "Unknown Device"
	}

	return name
}

// CameraFrame is the most recent camera payload for one device/camera pair.
// Frames are immutable once constructed; the cache replaces whole values.
type CameraFrame struct {
	DeviceID  string `json:"device_id"`
	Camera    string `json:"camera"`
	Data      []byte `json:"-"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// LocationRecord is a single position fix. Records are append-only and
// immutable; store order is insertion order, not timestamp order.
type LocationRecord struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// CommandRequest is an admin-issued command bound for one live device session.
type CommandRequest struct {
	DeviceID string                 `json:"device_id"`
	Command  string                 `json:"command"`
	Data     map[string]interface{} `json:"data,omitempty"`
}
