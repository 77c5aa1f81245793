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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

const defaultLocationLimit = 100

func (s *APIServer) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.GetSnapshot()

	writeJSON(w, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	}, s.logger)
}

func (s *APIServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	device, ok := s.registry.GetDevice(id)
	if !ok {
		writeError(w, "Device not found", http.StatusNotFound)
		return
	}

	writeJSON(w, device, s.logger)
}

func (s *APIServer) handlePostCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Command string                 `json:"command"`
		Data    map[string]interface{} `json:"data"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Malformed command body", http.StatusBadRequest)
		return
	}

	err := s.cmdRouter.Dispatch(&models.CommandRequest{
		DeviceID: id,
		Command:  body.Command,
		Data:     body.Data,
	})

	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "dispatched"}, s.logger)
	case errors.Is(err, registry.ErrUnknownDevice):
		writeError(w, "Device not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrDeviceOffline):
		writeError(w, "Device is offline", http.StatusConflict)
	case errors.Is(err, models.ErrValidation), errors.Is(err, registry.ErrMissingDeviceID):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error().Err(err).Str("device_id", id).Msg("Command dispatch failed")
		writeError(w, "Failed to deliver command", http.StatusBadGateway)
	}
}

// handleGetCameraFrame serves the latest cached frame as a raw JPEG so it
// can be dropped straight into an img tag.
func (s *APIServer) handleGetCameraFrame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	camera := vars["camera"]

	if camera != models.CameraFront && camera != models.CameraBack {
		writeError(w, "Unknown camera", http.StatusBadRequest)
		return
	}

	if _, ok := s.registry.GetDevice(id); !ok {
		writeError(w, "Device not found", http.StatusNotFound)
		return
	}

	frame, ok := s.frames.Get(id, camera)
	if !ok {
		writeError(w, "No frame cached for this camera", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Timestamp", strconv.FormatInt(frame.Timestamp, 10))

	if _, err := w.Write(frame.Data); err != nil {
		s.logger.Debug().Err(err).Str("device_id", id).Msg("Frame write aborted")
	}
}

func (s *APIServer) handleGetLocations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := s.registry.GetDevice(id); !ok {
		writeError(w, "Device not found", http.StatusNotFound)
		return
	}

	limit := defaultLocationLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}

		limit = parsed
	}

	records, err := s.locs.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", id).Msg("Location history lookup failed")
		writeError(w, "Internal server error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, map[string]interface{}{
		"device_id": id,
		"locations": records,
		"count":     len(records),
	}, s.logger)
}

func (s *APIServer) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	devices, online, admins := s.registry.Counts()

	writeJSON(w, map[string]interface{}{
		"total_devices":     devices,
		"online_devices":    online,
		"admin_connections": admins,
		"cached_frames":     s.frames.Len(),
		"timestamp":         time.Now().UTC(),
	}, s.logger)
}
