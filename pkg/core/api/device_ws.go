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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass/pkg/relay"
)

// handleDeviceWS upgrades a device connection and runs its session until
// disconnect. Devices authenticate by protocol, not by token: the first
// message must be a register envelope or the session is closed.
func (s *APIServer) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Devices connect from app contexts without a browser origin.
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade device connection")

		return
	}

	conn.SetReadLimit(s.config.MaxFrameBytes)

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Device connection established")

	session := relay.NewDeviceSession(conn, s.ingestor, s.registry, time.Duration(s.config.DeviceIdleTimeout), s.logger)
	session.Run(r.Context())
}
