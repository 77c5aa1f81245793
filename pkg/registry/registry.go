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

package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
)

// Subscription is one admin session's view of the broadcast stream. The
// first event on C is always a device_list snapshot taken atomically with
// the subscription, so subscribers never need to re-poll for baseline state.
// C is closed when the subscription is cancelled, either explicitly or
// because the subscriber fell behind (drop-the-admin overflow policy).
type Subscription struct {
	C chan *models.BroadcastEvent
}

// Registry is the concrete Manager implementation. A single RWMutex guards
// all state: device counts are small and every mutation also touches the
// subscriber set, so finer-grained locking buys nothing here.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*models.Device
	conns     map[string]DeviceConn
	subs      map[*Subscription]struct{}
	queueSize int
	sink      EventSink
	logger    logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithAdminQueueSize sets the per-subscription buffer. A subscriber whose
// buffer is full at publish time is dropped.
func WithAdminQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithEventSink mirrors every broadcast event to an external sink.
func WithEventSink(sink EventSink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		devices:   make(map[string]*models.Device),
		conns:     make(map[string]DeviceConn),
		subs:      make(map[*Subscription]struct{}),
		queueSize: 64,
		logger:    log,
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// UpsertDevice creates or refreshes a device record and, when conn is
// non-nil, binds it as the device's single live session. A prior live
// session for the same id is evicted, not treated as an error. A nil conn
// is the stateless-gateway path: the record is upserted but online state is
// untouched, since no one holds liveness for it.
func (r *Registry) UpsertDevice(meta *models.DeviceMetadata, conn DeviceConn) (*UpsertResult, error) {
	if meta == nil || strings.TrimSpace(meta.DeviceID) == "" {
		return nil, ErrMissingDeviceID
	}

	id := strings.TrimSpace(meta.DeviceID)
	now := time.Now().UTC()
	result := &UpsertResult{}

	var evicted DeviceConn

	r.mu.Lock()

	device, ok := r.devices[id]
	if !ok {
		device = &models.Device{
			DeviceID:      id,
			Name:          meta.DisplayName(),
			CurrentCamera: models.CameraBack,
		}
		r.devices[id] = device
		result.Created = true
	}

	applyMetadata(device, meta)
	device.LastActivity = now

	if conn != nil {
		if prior, live := r.conns[id]; live && prior != conn {
			evicted = prior
			result.Evicted = true
		}

		r.conns[id] = conn
		device.IsOnline = true
		device.ConnectedAt = now
	}

	event := &models.BroadcastEvent{
		Type:      models.EventDeviceConnected,
		Device:    cloneDevice(device),
		DeviceID:  id,
		Timestamp: now,
	}

	if !result.Created && conn == nil {
		// A known device refreshed over the gateway is an update, not a
		// (re)connect.
		event = &models.BroadcastEvent{
			Type:          models.EventDeviceUpdate,
			DeviceID:      id,
			ChangedFields: metadataFields(meta, now),
			Timestamp:     now,
		}
	}

	r.publishLocked(event)
	r.mu.Unlock()

	// Evict outside the lock: the old session's teardown calls back into
	// MarkOffline.
	if evicted != nil {
		r.logger.Info().Str("device_id", id).Msg("Evicting prior live session for device")
		evicted.Evict("replaced by newer session")
	}

	return result, nil
}

// MarkOffline records a device disconnect. The conn argument identifies the
// session making the call: an evicted session's late teardown does not
// clobber the newer session that replaced it.
func (r *Registry) MarkOffline(deviceID string, conn DeviceConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound, live := r.conns[deviceID]
	if !live || (conn != nil && bound != conn) {
		return
	}

	delete(r.conns, deviceID)

	device, ok := r.devices[deviceID]
	if !ok {
		return
	}

	device.IsOnline = false
	device.LastActivity = time.Now().UTC()

	r.publishLocked(&models.BroadcastEvent{
		Type:      models.EventDeviceDisconnected,
		DeviceID:  deviceID,
		Timestamp: device.LastActivity,
	})
}

// UpdateDevice applies the non-nil fields of upd, bumps last activity, and
// broadcasts a device_update carrying exactly the applied fields.
func (r *Registry) UpdateDevice(deviceID string, upd *DeviceUpdate) error {
	if upd == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}

	now := time.Now().UTC()
	changed := map[string]interface{}{}

	if upd.Name != nil {
		device.Name = *upd.Name
		changed["name"] = device.Name
	}

	if upd.CurrentCamera != nil {
		device.CurrentCamera = *upd.CurrentCamera
		changed["current_camera"] = device.CurrentCamera
	}

	if upd.BatteryLevel != nil {
		level := *upd.BatteryLevel
		device.BatteryLevel = &level
		changed["battery_level"] = level
	}

	if upd.IsCharging != nil {
		charging := *upd.IsCharging
		device.IsCharging = &charging
		changed["is_charging"] = charging
	}

	if upd.BatteryTemp != nil {
		temp := *upd.BatteryTemp
		device.BatteryTemp = &temp
		changed["battery_temp"] = temp
	}

	if upd.MemoryUsage != nil {
		mem := *upd.MemoryUsage
		device.MemoryUsage = &mem
		changed["memory_usage"] = mem
	}

	if upd.StorageUsage != nil {
		stor := *upd.StorageUsage
		device.StorageUsage = &stor
		changed["storage_usage"] = stor
	}

	if upd.Location != nil {
		rec := *upd.Location
		if rec.Accuracy != nil {
			acc := *rec.Accuracy
			rec.Accuracy = &acc
		}

		device.LastLocation = &rec
		changed["last_location"] = rec
	}

	device.LastActivity = now
	changed["last_activity"] = now

	r.publishLocked(&models.BroadcastEvent{
		Type:          models.EventDeviceUpdate,
		DeviceID:      deviceID,
		ChangedFields: changed,
		Timestamp:     now,
	})

	return nil
}

// Touch bumps a device's last activity without broadcasting. Used for ping
// and heartbeat, which are liveness signals rather than state changes.
func (r *Registry) Touch(deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}

	device.LastActivity = time.Now().UTC()

	return nil
}

// GetDevice returns a copy of one device record.
func (r *Registry) GetDevice(deviceID string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}

	return cloneDevice(device), true
}

// GetSnapshot returns copies of all device records ordered by device id.
func (r *Registry) GetSnapshot() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []models.Device {
	out := make([]models.Device, 0, len(r.devices))
	for _, device := range r.devices {
		out = append(out, *cloneDevice(device))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })

	return out
}

// Subscribe registers an admin subscriber. The snapshot event is enqueued
// under the same lock that created the subscription, so no mutation can
// slip between the baseline and the incremental stream.
func (r *Registry) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan *models.BroadcastEvent, r.queueSize)}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub] = struct{}{}
	sub.C <- &models.BroadcastEvent{
		Type:      models.EventDeviceList,
		Devices:   r.snapshotLocked(),
		Timestamp: time.Now().UTC(),
	}

	return sub
}

// Unsubscribe cancels a subscription and closes its channel. Safe to call
// after the subscriber was already dropped for falling behind.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropLocked(sub)
}

// Counts reports totals for the stats endpoint.
func (r *Registry) Counts() (devices, online, admins int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.devices), len(r.conns), len(r.subs)
}

// CommandTarget resolves a device id to its live session handle.
func (r *Registry) CommandTarget(deviceID string) (DeviceConn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.devices[deviceID]; !ok {
		return nil, ErrUnknownDevice
	}

	conn, live := r.conns[deviceID]
	if !live {
		return nil, ErrDeviceOffline
	}

	return conn, nil
}

// publishLocked fans an event out to every subscriber without blocking.
// A subscriber whose queue is full is dropped on the spot: a stalled admin
// must never stall device ingestion, and dropping surfaces the problem
// immediately instead of silently losing arbitrary events.
func (r *Registry) publishLocked(event *models.BroadcastEvent) {
	for sub := range r.subs {
		select {
		case sub.C <- event:
		default:
			r.logger.Warn().
				Str("event_type", string(event.Type)).
				Int("queue_size", r.queueSize).
				Msg("Admin subscriber fell behind broadcast stream, dropping subscription")
			r.dropLocked(sub)
		}
	}

	if r.sink != nil {
		go r.mirrorEvent(event)
	}
}

func (r *Registry) dropLocked(sub *Subscription) {
	if _, ok := r.subs[sub]; !ok {
		return
	}

	delete(r.subs, sub)
	close(sub.C)
}

func (r *Registry) mirrorEvent(event *models.BroadcastEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.sink.PublishDeviceEvent(ctx, event); err != nil {
		r.logger.Warn().Err(err).
			Str("event_type", string(event.Type)).
			Msg("Failed to mirror broadcast event to sink")
	}
}

// applyMetadata overlays non-empty registration metadata onto a device.
// The display name is derived once at creation and only changes through an
// explicit update.
func applyMetadata(device *models.Device, meta *models.DeviceMetadata) {
	if meta.Manufacturer != "" {
		device.Manufacturer = meta.Manufacturer
	}

	if meta.Model != "" {
		device.Model = meta.Model
	}

	if meta.PlatformVersion != "" {
		device.PlatformVersion = meta.PlatformVersion
	}

	if meta.HardwareID != "" {
		device.HardwareID = meta.HardwareID
	}
}

func metadataFields(meta *models.DeviceMetadata, now time.Time) map[string]interface{} {
	changed := map[string]interface{}{"last_activity": now}

	if meta.Manufacturer != "" {
		changed["manufacturer"] = meta.Manufacturer
	}

	if meta.Model != "" {
		changed["model"] = meta.Model
	}

	if meta.PlatformVersion != "" {
		changed["platform_version"] = meta.PlatformVersion
	}

	if meta.HardwareID != "" {
		changed["hardware_id"] = meta.HardwareID
	}

	return changed
}

// cloneDevice deep-copies a device so callers can never mutate registry
// state through a returned record.
func cloneDevice(device *models.Device) *models.Device {
	out := *device

	if device.BatteryLevel != nil {
		level := *device.BatteryLevel
		out.BatteryLevel = &level
	}

	if device.IsCharging != nil {
		charging := *device.IsCharging
		out.IsCharging = &charging
	}

	if device.BatteryTemp != nil {
		temp := *device.BatteryTemp
		out.BatteryTemp = &temp
	}

	if device.MemoryUsage != nil {
		mem := *device.MemoryUsage
		out.MemoryUsage = &mem
	}

	if device.StorageUsage != nil {
		stor := *device.StorageUsage
		out.StorageUsage = &stor
	}

	if device.LastLocation != nil {
		loc := *device.LastLocation
		if device.LastLocation.Accuracy != nil {
			acc := *device.LastLocation.Accuracy
			loc.Accuracy = &acc
		}

		out.LastLocation = &loc
	}

	return &out
}
