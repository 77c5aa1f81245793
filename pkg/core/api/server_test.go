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

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetglass/fleetglass/pkg/core/auth"
	"github.com/fleetglass/fleetglass/pkg/framecache"
	"github.com/fleetglass/fleetglass/pkg/locstore"
	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
	"github.com/fleetglass/fleetglass/pkg/relay"
)

const testDeviceID = "4b8c9e1a-2f3d-4c5b-8a7e-6d5f4e3c2b1a"

type testEnv struct {
	server   *APIServer
	registry *registry.Registry
	frames   *framecache.Cache
	locs     *locstore.MemoryStore
	auth     *auth.JWTService
	token    string
}

func newTestEnv(t *testing.T, mutate ...func(cfg *models.RelayConfig)) *testEnv {
	t.Helper()

	cfg := &models.RelayConfig{
		ListenAddr: ":0",
		Auth: models.AuthConfig{
			JWTSecret:     "test-secret",
			JWTExpiration: models.Duration(time.Hour),
		},
	}
	require.NoError(t, cfg.Validate())

	for _, m := range mutate {
		m(cfg)
	}

	log := logger.NewTestLogger()
	reg := registry.NewRegistry(log, registry.WithAdminQueueSize(cfg.AdminQueueSize))
	frames := framecache.NewCache()
	locs := locstore.NewMemoryStore()
	ing := relay.NewIngestor(reg, frames, locs, log)
	cmdRouter := relay.NewCommandRouter(reg, log)

	authSvc, err := auth.NewJWTService(&cfg.Auth)
	require.NoError(t, err)

	token, err := authSvc.GenerateToken(&models.User{ID: "admin-1", Roles: []string{"admin"}})
	require.NoError(t, err)

	server := NewAPIServer(cfg, reg, frames, locs, ing, cmdRouter, log, WithAuthService(authSvc))

	return &testEnv{
		server:   server,
		registry: reg,
		frames:   frames,
		locs:     locs,
		auth:     authSvc,
		token:    token,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	return rec
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRESTRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/devices", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/devices", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetDevice(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.UpsertDevice(&models.DeviceMetadata{
		DeviceID:     testDeviceID,
		Manufacturer: "Acme",
		Model:        "Kestrel",
	}, nil)
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/api/devices", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Devices []models.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "Acme Kestrel", list.Devices[0].Name)

	rec = env.request(t, http.MethodGet, "/api/devices/"+testDeviceID, "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/devices/nope", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostCommandStatuses(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/devices/ghost/command", `{"command":"ping"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := env.registry.UpsertDevice(&models.DeviceMetadata{DeviceID: testDeviceID}, nil)
	require.NoError(t, err)

	rec = env.request(t, http.MethodPost, "/api/devices/"+testDeviceID+"/command", `{"command":"ping"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/devices/"+testDeviceID+"/command", `{"command":""}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCameraFrame(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.UpsertDevice(&models.DeviceMetadata{DeviceID: testDeviceID}, nil)
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/api/devices/"+testDeviceID+"/camera/front", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.frames.Put(&models.CameraFrame{
		DeviceID:  testDeviceID,
		Camera:    models.CameraFront,
		Data:      []byte{0xff, 0xd8},
		Width:     1,
		Height:    1,
		Timestamp: 42,
	})

	rec = env.request(t, http.MethodGet, "/api/devices/"+testDeviceID+"/camera/front", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "42", rec.Header().Get("X-Frame-Timestamp"))
	assert.Equal(t, []byte{0xff, 0xd8}, rec.Body.Bytes())

	rec = env.request(t, http.MethodGet, "/api/devices/"+testDeviceID+"/camera/sideways", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLocations(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.UpsertDevice(&models.DeviceMetadata{DeviceID: testDeviceID}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, env.locs.Append(context.Background(), testDeviceID, &models.LocationRecord{
			Lat: float64(i), Lon: 0, Timestamp: int64(i),
		}))
	}

	rec := env.request(t, http.MethodGet, "/api/devices/"+testDeviceID+"/locations?limit=2", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Locations []models.LocationRecord `json:"locations"`
		Count     int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, float64(1), body.Locations[0].Lat)

	rec = env.request(t, http.MethodGet, "/api/devices/"+testDeviceID+"/locations?limit=-1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.UpsertDevice(&models.DeviceMetadata{DeviceID: testDeviceID}, nil)
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/api/stats", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(1), stats["total_devices"])
	assert.Equal(t, float64(0), stats["online_devices"])
}

func TestGatewayRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/register", url.Values{
		"device_id":    {testDeviceID},
		"manufacturer": {"Acme"},
		"model":        {"Kestrel"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	device, ok := env.registry.GetDevice(testDeviceID)
	require.True(t, ok)
	assert.Equal(t, "Acme Kestrel", device.Name)
	assert.False(t, device.IsOnline, "gateway uploads must not flip online state")
}

func TestGatewayRejectsBadUUID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/register", url.Values{
		"device_id": {"not-a-uuid"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postForm(t, "/api/device/upload/heartbeat", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayCameraAutoRegisters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/camera", url.Values{
		"device_id": {testDeviceID},
		"camera":    {"back"},
		"data":      {base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8})},
		"width":     {"640"},
		"height":    {"480"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	device, ok := env.registry.GetDevice(testDeviceID)
	require.True(t, ok)
	assert.Equal(t, "Unknown Device", device.Name)
	assert.Equal(t, models.CameraBack, device.CurrentCamera)

	_, ok = env.frames.Get(testDeviceID, models.CameraBack)
	assert.True(t, ok)
}

func TestGatewayLocationValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/location", url.Values{
		"device_id": {testDeviceID},
		"lat":       {"123"},
		"lon":       {"0"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postForm(t, "/api/device/upload/location", url.Values{
		"device_id": {testDeviceID},
		"lat":       {"52.52"},
		"lon":       {"13.405"},
		"accuracy":  {"5.5"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	n, err := env.locs.Count(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	device, _ := env.registry.GetDevice(testDeviceID)
	require.NotNil(t, device.LastLocation)
	require.NotNil(t, device.LastLocation.Accuracy)
	assert.InDelta(t, 5.5, *device.LastLocation.Accuracy, 0.001)
}

func TestGatewayLocationRejectsUnparseableCoordinates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/location", url.Values{
		"device_id": {testDeviceID},
		"lat":       {"abc"},
		"lon":       {"garbage"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing may change on a rejected upload: no fabricated (0,0) record,
	// no auto-registered device.
	n, err := env.locs.Count(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok := env.registry.GetDevice(testDeviceID)
	assert.False(t, ok)
}

func TestGatewayLocationRejectsUnparseableAccuracy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/location", url.Values{
		"device_id": {testDeviceID},
		"lat":       {"52.52"},
		"lon":       {"13.405"},
		"accuracy":  {"not-a-number"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	n, err := env.locs.Count(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGatewaySystemInfoRejectsUnparseableFields(t *testing.T) {
	env := newTestEnv(t)

	for field, value := range map[string]string{
		"battery_level": "abc",
		"battery_temp":  "warm",
		"memory_usage":  "lots",
		"storage_usage": "half",
		"is_charging":   "perhaps",
	} {
		rec := env.postForm(t, "/api/device/upload/system-info", url.Values{
			"device_id": {testDeviceID},
			field:       {value},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "field %s", field)
	}

	_, ok := env.registry.GetDevice(testDeviceID)
	assert.False(t, ok)
}

func TestGatewayCameraRejectsUnparseableDimensions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/camera", url.Values{
		"device_id": {testDeviceID},
		"camera":    {"back"},
		"data":      {"/9j/4AA="},
		"width":     {"wide"},
		"height":    {"480"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, ok := env.frames.Get(testDeviceID, models.CameraBack)
	assert.False(t, ok)
}

func TestGatewayBatteryAlias(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/battery", url.Values{
		"device_id":     {testDeviceID},
		"battery_level": {"55"},
		"is_charging":   {"true"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	device, ok := env.registry.GetDevice(testDeviceID)
	require.True(t, ok)
	require.NotNil(t, device.BatteryLevel)
	assert.Equal(t, 55, *device.BatteryLevel)
	require.NotNil(t, device.IsCharging)
	assert.True(t, *device.IsCharging)
}

func TestGatewayBatteryRangeRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postForm(t, "/api/device/upload/system-info", url.Values{
		"device_id":     {testDeviceID},
		"battery_level": {"101"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayAPIKey(t *testing.T) {
	env := newTestEnv(t, func(cfg *models.RelayConfig) {
		cfg.APIKey = "sekrit"
	})

	rec := env.postForm(t, "/api/device/upload/register", url.Values{
		"device_id": {testDeviceID},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/device/upload/register",
		strings.NewReader(url.Values{"device_id": {testDeviceID}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-API-Key", "sekrit")

	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
