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

package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

type adminFixture struct {
	conn     *scriptConn
	registry *registry.Registry
	finished chan struct{}
}

func startAdmin(t *testing.T, reg *registry.Registry) *adminFixture {
	t.Helper()

	log := logger.NewTestLogger()
	router := NewCommandRouter(reg, log)
	conn := newScriptConn()
	session := NewAdminSession(conn, reg, router, &models.User{ID: "admin-1"}, log)

	fix := &adminFixture{conn: conn, registry: reg, finished: make(chan struct{})}

	go func() {
		session.Run(context.Background())
		close(fix.finished)
	}()

	t.Cleanup(func() {
		_ = conn.Close()

		select {
		case <-fix.finished:
		case <-time.After(2 * time.Second):
			t.Fatal("admin session did not terminate")
		}
	})

	return fix
}

func (f *adminFixture) nextEvent(t *testing.T) *models.BroadcastEvent {
	t.Helper()

	select {
	case data := <-f.conn.writes:
		var event models.BroadcastEvent
		require.NoError(t, json.Unmarshal(data, &event))

		return &event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func TestAdminSessionReceivesSnapshotFirst(t *testing.T) {
	reg := registry.NewRegistry(logger.NewTestLogger())
	_, err := reg.UpsertDevice(&models.DeviceMetadata{DeviceID: "dev-1"}, nil)
	require.NoError(t, err)

	fix := startAdmin(t, reg)

	event := fix.nextEvent(t)
	assert.Equal(t, models.EventDeviceList, event.Type)
	require.Len(t, event.Devices, 1)
	assert.Equal(t, "dev-1", event.Devices[0].DeviceID)
}

func TestAdminSessionRelaysBroadcasts(t *testing.T) {
	reg := registry.NewRegistry(logger.NewTestLogger())
	fix := startAdmin(t, reg)

	snapshot := fix.nextEvent(t)
	require.Equal(t, models.EventDeviceList, snapshot.Type)
	assert.Empty(t, snapshot.Devices)

	_, err := reg.UpsertDevice(&models.DeviceMetadata{DeviceID: "dev-1", Model: "Kestrel"}, newLiveConn())
	require.NoError(t, err)

	event := fix.nextEvent(t)
	assert.Equal(t, models.EventDeviceConnected, event.Type)
	require.NotNil(t, event.Device)
	assert.Equal(t, "dev-1", event.Device.DeviceID)
}

func TestAdminSessionDispatchesCommand(t *testing.T) {
	reg := registry.NewRegistry(logger.NewTestLogger())

	live := newLiveConn()
	_, err := reg.UpsertDevice(&models.DeviceMetadata{DeviceID: "dev-1"}, live)
	require.NoError(t, err)

	fix := startAdmin(t, reg)
	fix.nextEvent(t) // snapshot

	fix.conn.send(t, map[string]interface{}{
		"type":     "command",
		"deviceId": "dev-1",
		"command":  "switch_camera",
		"data":     map[string]interface{}{"camera": "front"},
	})

	select {
	case cmd := <-live.commands:
		assert.Equal(t, "switch_camera", cmd.Command)
		assert.Equal(t, "front", cmd.Data["camera"])
	case <-time.After(time.Second):
		t.Fatal("command never reached device session")
	}
}

func TestAdminSessionReportsOfflineTarget(t *testing.T) {
	reg := registry.NewRegistry(logger.NewTestLogger())
	_, err := reg.UpsertDevice(&models.DeviceMetadata{DeviceID: "dev-1"}, nil)
	require.NoError(t, err)

	fix := startAdmin(t, reg)
	fix.nextEvent(t) // snapshot

	fix.conn.send(t, map[string]interface{}{
		"type":     "command",
		"deviceId": "dev-1",
		"command":  "switch_camera",
	})

	msg := fix.conn.nextWrite(t)
	assert.Equal(t, models.MessageError, msg.Type)
	assert.Contains(t, msg.Error, "offline")
}

func TestAdminSessionUnknownMessageType(t *testing.T) {
	reg := registry.NewRegistry(logger.NewTestLogger())
	fix := startAdmin(t, reg)
	fix.nextEvent(t) // snapshot

	fix.conn.send(t, map[string]interface{}{"type": "mystery"})

	msg := fix.conn.nextWrite(t)
	assert.Equal(t, models.MessageError, msg.Type)
}

// liveConn is a registry.DeviceConn double for command routing tests.
type liveConn struct {
	commands chan *models.CommandRequest
}

func newLiveConn() *liveConn {
	return &liveConn{commands: make(chan *models.CommandRequest, 4)}
}

func (c *liveConn) SendCommand(cmd *models.CommandRequest) error {
	c.commands <- cmd
	return nil
}

func (c *liveConn) Evict(string) {}
