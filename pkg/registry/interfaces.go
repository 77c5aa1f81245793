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

//go:generate mockgen -destination=mock_registry.go -package=registry github.com/fleetglass/fleetglass/pkg/registry Manager,DeviceConn,EventSink

// Package registry is the authoritative store of device state and live
// session handles. All device mutations flow through it, regardless of
// which ingress path produced them, and every successful mutation fans out
// a broadcast event to subscribed admin sessions.
package registry

import (
	"context"
	"errors"

	"github.com/fleetglass/fleetglass/pkg/models"
)

var (
	// ErrUnknownDevice is returned when an operation targets a device id the
	// registry has never seen.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrDeviceOffline is returned when a command targets a device with no
	// live session. Commands are never queued for reconnect.
	ErrDeviceOffline = errors.New("device offline")

	// ErrMissingDeviceID is returned for registration metadata without an id.
	// The registry is not mutated in that case.
	ErrMissingDeviceID = errors.New("device id is required")
)

// DeviceConn is the live-session handle the registry keeps per online
// device. Implemented by the device session; the registry uses it for
// eviction and the command router for delivery.
type DeviceConn interface {
	// SendCommand enqueues a command on the session's outbound queue.
	SendCommand(cmd *models.CommandRequest) error

	// Evict asks the session to shut down because a newer session claimed
	// the same device id. Must not block.
	Evict(reason string)
}

// EventSink receives a copy of every broadcast event, used to mirror
// registry state changes to an external stream. Best-effort; errors are
// logged, never propagated to the mutation path.
type EventSink interface {
	PublishDeviceEvent(ctx context.Context, event *models.BroadcastEvent) error
}

// UpsertResult reports what a device upsert did.
type UpsertResult struct {
	Created bool
	Evicted bool
}

// DeviceUpdate is the closed set of mutable device fields. Only non-nil
// fields are applied; the applied set becomes the changed_fields of the
// resulting device_update broadcast.
type DeviceUpdate struct {
	Name          *string
	CurrentCamera *string
	BatteryLevel  *int
	IsCharging    *bool
	BatteryTemp   *float64
	MemoryUsage   *int64
	StorageUsage  *float64
	Location      *models.LocationRecord
}

// Manager is the registry contract consumed by sessions, the gateway, and
// the command router.
type Manager interface {
	UpsertDevice(meta *models.DeviceMetadata, conn DeviceConn) (*UpsertResult, error)
	MarkOffline(deviceID string, conn DeviceConn)
	UpdateDevice(deviceID string, upd *DeviceUpdate) error
	Touch(deviceID string) error
	GetDevice(deviceID string) (*models.Device, bool)
	GetSnapshot() []models.Device
	Subscribe() *Subscription
	Unsubscribe(sub *Subscription)
	Counts() (devices, online, admins int)
	CommandTarget(deviceID string) (DeviceConn, error)
}
