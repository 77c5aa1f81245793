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

// Package relay implements the live channel sessions and the shared
// ingestion path behind them. Device state mutations flow through the
// Ingestor regardless of whether they arrived over a live session or the
// stateless upload gateway, so both paths produce identical registry
// state and broadcasts.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fleetglass/fleetglass/pkg/framecache"
	"github.com/fleetglass/fleetglass/pkg/locstore"
	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

// Ingestor applies validated device payloads to the registry, frame cache,
// and location store.
type Ingestor struct {
	registry registry.Manager
	frames   *framecache.Cache
	locs     locstore.Store
	archiver locstore.Archiver
	logger   logger.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithArchiver mirrors location records to a durable archive. Archive
// failures are logged and never fail ingestion.
func WithArchiver(a locstore.Archiver) IngestorOption {
	return func(i *Ingestor) {
		i.archiver = a
	}
}

// NewIngestor wires the ingestion path.
func NewIngestor(reg registry.Manager, frames *framecache.Cache, locs locstore.Store, log logger.Logger, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		registry: reg,
		frames:   frames,
		locs:     locs,
		logger:   log,
	}

	for _, o := range opts {
		o(ing)
	}

	return ing
}

// Register upserts the device record, binding conn as its live session when
// non-nil.
func (i *Ingestor) Register(meta *models.DeviceMetadata, conn registry.DeviceConn) (*registry.UpsertResult, error) {
	return i.registry.UpsertDevice(meta, conn)
}

// HandleCameraFrame decodes and caches one frame, then records the active
// camera on the device.
func (i *Ingestor) HandleCameraFrame(deviceID string, payload *models.CameraFramePayload) error {
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return fmt.Errorf("%w: frame data is not valid base64: %w", models.ErrValidation, err)
	}

	ts := payload.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	i.frames.Put(&models.CameraFrame{
		DeviceID:  deviceID,
		Camera:    payload.Camera,
		Data:      data,
		Width:     payload.Width,
		Height:    payload.Height,
		Timestamp: ts,
	})

	camera := payload.Camera

	return i.registry.UpdateDevice(deviceID, &registry.DeviceUpdate{CurrentCamera: &camera})
}

// HandleLocation appends the fix to history, mirrors it to the archive, and
// sets the device's last known location.
func (i *Ingestor) HandleLocation(ctx context.Context, deviceID string, payload *models.LocationPayload) error {
	rec := payload.Record()
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}

	if err := i.locs.Append(ctx, deviceID, rec); err != nil {
		return fmt.Errorf("failed to store location for %s: %w", deviceID, err)
	}

	if i.archiver != nil {
		if err := i.archiver.Archive(ctx, deviceID, rec); err != nil {
			i.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to archive location record")
		}
	}

	return i.registry.UpdateDevice(deviceID, &registry.DeviceUpdate{Location: rec})
}

// HandleSystemInfo applies the present fields of a system info payload.
func (i *Ingestor) HandleSystemInfo(deviceID string, payload *models.SystemInfoPayload) error {
	upd := &registry.DeviceUpdate{
		BatteryLevel: payload.BatteryLevel,
		IsCharging:   payload.IsCharging,
		BatteryTemp:  payload.BatteryTemp,
		MemoryUsage:  payload.MemoryUsage,
		StorageUsage: payload.StorageUsage,
	}

	return i.registry.UpdateDevice(deviceID, upd)
}

// Touch bumps device activity for ping and heartbeat traffic.
func (i *Ingestor) Touch(deviceID string) error {
	return i.registry.Touch(deviceID)
}
