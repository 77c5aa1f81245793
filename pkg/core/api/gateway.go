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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

// The upload gateway is the stateless ingress for clients that cannot hold
// a websocket open. Payloads arrive form-encoded; unknown devices with a
// well-formed id are registered on first contact, so a client can start
// uploading without a prior register call. The gateway never touches
// online state: liveness belongs to live sessions alone.
//
// Every form payload is parsed and validated in full before the registry is
// touched. A request with an unparseable field is answered 400 without
// creating a device, caching a frame, or appending a location.

func (s *APIServer) gatewayDeviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		writeError(w, "Malformed form payload", http.StatusBadRequest)
		return "", false
	}

	id := strings.TrimSpace(r.PostFormValue("device_id"))
	if id == "" {
		writeError(w, "device_id is required", http.StatusBadRequest)
		return "", false
	}

	if _, err := uuid.Parse(id); err != nil {
		writeError(w, "device_id must be a valid UUID", http.StatusBadRequest)
		return "", false
	}

	return id, true
}

// ensureDevice auto-registers ids the registry has not seen. The id has
// already passed UUID validation, so a typo cannot mint a ghost device.
func (s *APIServer) ensureDevice(id string, r *http.Request) error {
	if _, ok := s.registry.GetDevice(id); ok {
		return nil
	}

	_, err := s.ingestor.Register(&models.DeviceMetadata{
		DeviceID:        id,
		Manufacturer:    r.PostFormValue("manufacturer"),
		Model:           r.PostFormValue("model"),
		PlatformVersion: r.PostFormValue("platform_version"),
		HardwareID:      r.PostFormValue("hardware_id"),
	}, nil)

	return err
}

func (s *APIServer) handleUploadRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gatewayDeviceID(w, r)
	if !ok {
		return
	}

	result, err := s.ingestor.Register(&models.DeviceMetadata{
		DeviceID:        id,
		Manufacturer:    r.PostFormValue("manufacturer"),
		Model:           r.PostFormValue("model"),
		PlatformVersion: r.PostFormValue("platform_version"),
		HardwareID:      r.PostFormValue("hardware_id"),
	}, nil)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":    "registered",
		"device_id": id,
		"created":   result.Created,
	}, s.logger)
}

func (s *APIServer) handleUploadCamera(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFrameBytes)

	id, ok := s.gatewayDeviceID(w, r)
	if !ok {
		return
	}

	payload, err := parseCameraForm(r)
	if err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := payload.Validate(); err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := s.ensureDevice(id, r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ingestor.HandleCameraFrame(id, payload); err != nil {
		s.gatewayError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *APIServer) handleUploadLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gatewayDeviceID(w, r)
	if !ok {
		return
	}

	payload, err := parseLocationForm(r)
	if err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := payload.Validate(); err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := s.ensureDevice(id, r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ingestor.HandleLocation(r.Context(), id, payload); err != nil {
		s.gatewayError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *APIServer) handleUploadSystemInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gatewayDeviceID(w, r)
	if !ok {
		return
	}

	payload, err := parseSystemInfoForm(r)
	if err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := payload.Validate(); err != nil {
		s.gatewayError(w, err)
		return
	}

	if err := s.ensureDevice(id, r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ingestor.HandleSystemInfo(id, payload); err != nil {
		s.gatewayError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *APIServer) handleUploadHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.gatewayDeviceID(w, r)
	if !ok {
		return
	}

	if err := s.ensureDevice(id, r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ingestor.Touch(id); err != nil {
		s.gatewayError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *APIServer) gatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrUnknownDevice):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Msg("Gateway upload failed")
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func parseCameraForm(r *http.Request) (*models.CameraFramePayload, error) {
	width, err := formInt(r, "width")
	if err != nil {
		return nil, err
	}

	height, err := formInt(r, "height")
	if err != nil {
		return nil, err
	}

	ts, err := formInt64(r, "timestamp")
	if err != nil {
		return nil, err
	}

	return &models.CameraFramePayload{
		Camera:    r.PostFormValue("camera"),
		Data:      r.PostFormValue("data"),
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}, nil
}

func parseLocationForm(r *http.Request) (*models.LocationPayload, error) {
	if r.PostFormValue("lat") == "" || r.PostFormValue("lon") == "" {
		return nil, fmt.Errorf("%w: lat and lon are required", models.ErrValidation)
	}

	lat, err := formFloat(r, "lat")
	if err != nil {
		return nil, err
	}

	lon, err := formFloat(r, "lon")
	if err != nil {
		return nil, err
	}

	ts, err := formInt64(r, "timestamp")
	if err != nil {
		return nil, err
	}

	payload := &models.LocationPayload{Lat: lat, Lon: lon, Timestamp: ts}

	if v := r.PostFormValue("accuracy"); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: accuracy must be a number", models.ErrValidation)
		}

		payload.Accuracy = &acc
	}

	return payload, nil
}

func parseSystemInfoForm(r *http.Request) (*models.SystemInfoPayload, error) {
	payload := &models.SystemInfoPayload{}

	if v := r.PostFormValue("battery_level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: battery_level must be an integer", models.ErrValidation)
		}

		payload.BatteryLevel = &level
	}

	if v := r.PostFormValue("is_charging"); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			charging := true
			payload.IsCharging = &charging
		case "false", "0", "no", "off":
			charging := false
			payload.IsCharging = &charging
		default:
			return nil, fmt.Errorf("%w: is_charging must be a boolean", models.ErrValidation)
		}
	}

	if v := r.PostFormValue("battery_temp"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: battery_temp must be a number", models.ErrValidation)
		}

		payload.BatteryTemp = &temp
	}

	if v := r.PostFormValue("memory_usage"); v != "" {
		mem, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: memory_usage must be an integer", models.ErrValidation)
		}

		payload.MemoryUsage = &mem
	}

	if v := r.PostFormValue("storage_usage"); v != "" {
		stor, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: storage_usage must be a number", models.ErrValidation)
		}

		payload.StorageUsage = &stor
	}

	return payload, nil
}

// Absent fields parse as zero; each payload's Validate decides whether zero
// is acceptable. A present but unparseable value is always rejected.
func formInt(r *http.Request, key string) (int, error) {
	v := r.PostFormValue(key)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, key)
	}

	return n, nil
}

func formInt64(r *http.Request, key string) (int64, error) {
	v := r.PostFormValue(key)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, key)
	}

	return n, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	v := r.PostFormValue(key)
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", models.ErrValidation, key)
	}

	return n, nil
}
