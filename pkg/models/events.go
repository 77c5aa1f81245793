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

import "time"

// BroadcastType discriminates registry state-change events fanned out to
// admin sessions.
type BroadcastType string

const (
	EventDeviceList         BroadcastType = "device_list"
	EventDeviceConnected    BroadcastType = "device_connected"
	EventDeviceDisconnected BroadcastType = "device_disconnected"
	EventDeviceUpdate       BroadcastType = "device_update"
)

// BroadcastEvent is one registry state-change notification. device_list
// carries the full snapshot, device_connected the full device, and
// device_update only the changed fields. Binary payloads are never
// broadcast; admins pull frames on demand.
type BroadcastEvent struct {
	Type          BroadcastType          `json:"type"`
	Devices       []Device               `json:"devices,omitempty"`
	Device        *Device                `json:"device,omitempty"`
	DeviceID      string                 `json:"device_id,omitempty"`
	ChangedFields map[string]interface{} `json:"changed_fields,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// CloudEvent is the envelope used when mirroring broadcast events to the
// event stream.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// Server-to-client message types outside the broadcast set.
const (
	MessageRegisterAck = "register_ack"
	MessagePong        = "pong"
	MessageCommand     = "command"
	MessageError       = "error"
)

// ServerMessage is the envelope for direct server-to-client messages on the
// live channels.
type ServerMessage struct {
	Type     string                 `json:"type"`
	DeviceID string                 `json:"deviceId,omitempty"`
	Command  string                 `json:"command,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
}
