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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EnvelopeType discriminates inbound device messages.
type EnvelopeType string

const (
	EnvelopeRegister    EnvelopeType = "register"
	EnvelopeCameraFrame EnvelopeType = "camera_frame"
	EnvelopeLocation    EnvelopeType = "location_update"
	EnvelopeSystemInfo  EnvelopeType = "system_info"
	EnvelopeBattery     EnvelopeType = "battery"
	EnvelopePing        EnvelopeType = "ping"
)

var (
	// ErrValidation marks any malformed or out-of-range payload. Callers
	// reject the message before mutating state.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownEnvelope marks an unrecognized envelope type. Sessions log
	// and ignore these rather than closing the connection.
	ErrUnknownEnvelope = errors.New("unknown envelope type")
)

// RegisterPayload is the first message a device must send on the live channel.
type RegisterPayload struct {
	DeviceID        string `json:"deviceId"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	HardwareID      string `json:"hardwareId,omitempty"`
}

func (p *RegisterPayload) Validate() error {
	if strings.TrimSpace(p.DeviceID) == "" {
		return fmt.Errorf("%w: deviceId is required", ErrValidation)
	}

	return nil
}

// Metadata converts the wire payload into registry metadata.
func (p *RegisterPayload) Metadata() *DeviceMetadata {
	return &DeviceMetadata{
		DeviceID:        strings.TrimSpace(p.DeviceID),
		Manufacturer:    p.Manufacturer,
		Model:           p.Model,
		PlatformVersion: p.PlatformVersion,
		HardwareID:      p.HardwareID,
	}
}

// CameraFramePayload carries one encoded camera frame. Data is base64 on the
// wire; the camera selector in the message is authoritative for the cache key.
type CameraFramePayload struct {
	Camera    string `json:"camera"`
	Data      string `json:"data"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

func (p *CameraFramePayload) Validate() error {
	if p.Camera != CameraFront && p.Camera != CameraBack {
		return fmt.Errorf("%w: camera must be %q or %q", ErrValidation, CameraFront, CameraBack)
	}

	if p.Data == "" {
		return fmt.Errorf("%w: frame data is required", ErrValidation)
	}

	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: frame dimensions must be positive", ErrValidation)
	}

	return nil
}

// LocationPayload carries one position fix.
type LocationPayload struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func (p *LocationPayload) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidation)
	}

	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidation)
	}

	return nil
}

// Record converts the wire payload into an immutable location record.
func (p *LocationPayload) Record() *LocationRecord {
	rec := &LocationRecord{
		Lat:       p.Lat,
		Lon:       p.Lon,
		Timestamp: p.Timestamp,
	}

	if p.Accuracy != nil {
		acc := *p.Accuracy
		rec.Accuracy = &acc
	}

	return rec
}

// SystemInfoPayload carries battery and system stats. All fields are optional;
// only the fields present update registry state.
type SystemInfoPayload struct {
	BatteryLevel *int     `json:"batteryLevel,omitempty"`
	IsCharging   *bool    `json:"isCharging,omitempty"`
	BatteryTemp  *float64 `json:"batteryTemp,omitempty"`
	MemoryUsage  *int64   `json:"memoryUsage,omitempty"`
	StorageUsage *float64 `json:"storageUsage,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

func (p *SystemInfoPayload) Validate() error {
	if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > 100) {
		return fmt.Errorf("%w: battery level must be between 0 and 100", ErrValidation)
	}

	return nil
}

// Envelope is the decoded, validated form of one inbound device message.
// Exactly one payload pointer is set for the payload-bearing types.
type Envelope struct {
	Type        EnvelopeType
	Register    *RegisterPayload
	CameraFrame *CameraFramePayload
	Location    *LocationPayload
	SystemInfo  *SystemInfoPayload
}

type envelopeHeader struct {
	Type EnvelopeType `json:"type"`
}

// DecodeEnvelope parses and validates a raw device message. Unknown types
// return ErrUnknownEnvelope; malformed payloads return ErrValidation. No
// partially-decoded envelope is ever returned.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var header envelopeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %w", ErrValidation, err)
	}

	env := &Envelope{Type: header.Type}

	switch header.Type {
	case EnvelopeRegister:
		env.Register = &RegisterPayload{}
		return decodePayload(data, env, env.Register)
	case EnvelopeCameraFrame:
		env.CameraFrame = &CameraFramePayload{}
		return decodePayload(data, env, env.CameraFrame)
	case EnvelopeLocation:
		env.Location = &LocationPayload{}
		return decodePayload(data, env, env.Location)
	case EnvelopeSystemInfo, EnvelopeBattery:
		// battery is a legacy alias carrying the battery subset of system_info.
		env.Type = EnvelopeSystemInfo
		env.SystemInfo = &SystemInfoPayload{}

		return decodePayload(data, env, env.SystemInfo)
	case EnvelopePing:
		return env, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, header.Type)
	}
}

type validator interface {
	Validate() error
}

func decodePayload(data []byte, env *Envelope, payload validator) (*Envelope, error) {
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %w", ErrValidation, env.Type, err)
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}
