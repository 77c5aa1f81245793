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

	"github.com/gorilla/websocket"

	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/relay"
)

// handleAdminWS upgrades an admin connection, authenticates it, and relays
// the broadcast stream. Authentication happens after the upgrade so the
// handshake itself never reveals whether a token is valid; unauthenticated
// peers get one error message and a close.
func (s *APIServer) handleAdminWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkWebSocketOrigin(r)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade admin connection")

		return
	}

	user := s.authenticateAdminSocket(r)
	if user == nil {
		_ = conn.WriteJSON(&models.ServerMessage{Type: models.MessageError, Error: "authentication required"})
		_ = conn.Close()

		return
	}

	session := relay.NewAdminSession(conn, s.registry, s.cmdRouter, user, s.logger)
	session.Run(r.Context())
}

// authenticateAdminSocket verifies the token query parameter. Browsers
// cannot set headers on websocket dials, so the token rides the URL.
func (s *APIServer) authenticateAdminSocket(r *http.Request) *models.User {
	if s.authService == nil {
		return nil
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	if token == "" {
		return nil
	}

	user, err := s.authService.VerifyToken(r.Context(), token)
	if err != nil {
		s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Admin socket auth failed")
		return nil
	}

	return user
}

func (s *APIServer) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.config.CORS.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range s.config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}
