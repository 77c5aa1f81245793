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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

// adminMessage is the inbound admin envelope. Only command and ping are
// recognized; anything else is answered with an error message.
type adminMessage struct {
	Type     string                 `json:"type"`
	DeviceID string                 `json:"deviceId"`
	Command  string                 `json:"command"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// AdminSession owns one live admin connection. It relays the registry
// broadcast stream to the peer and routes inbound commands to devices. A
// session whose subscription was dropped for falling behind is closed; the
// client reconnects for a fresh snapshot.
type AdminSession struct {
	id       string
	conn     Conn
	registry registry.Manager
	router   *CommandRouter
	user     *models.User
	logger   logger.Logger

	// writeMu serializes the broadcast relay and per-admin replies; the
	// transport allows a single concurrent writer.
	writeMu sync.Mutex
	done    chan struct{}
}

// NewAdminSession wraps an authenticated admin connection.
func NewAdminSession(conn Conn, reg registry.Manager, router *CommandRouter, user *models.User, log logger.Logger) *AdminSession {
	return &AdminSession{
		id:       uuid.NewString(),
		conn:     conn,
		registry: reg,
		router:   router,
		user:     user,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Run drives the session until the peer disconnects or the context is
// cancelled. The first message the peer receives is always the device_list
// snapshot taken at subscription time.
func (s *AdminSession) Run(ctx context.Context) {
	sub := s.registry.Subscribe()
	defer s.registry.Unsubscribe(sub)

	s.logger.Info().
		Str("session_id", s.id).
		Str("user_id", s.userID()).
		Msg("Admin session started")

	go s.readLoop()

	defer func() {
		_ = s.conn.Close()

		s.logger.Info().Str("session_id", s.id).Msg("Admin session ended")
	}()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				// Dropped for falling behind; force a reconnect rather than
				// serving a stream with holes in it.
				s.logger.Warn().Str("session_id", s.id).Msg("Admin session dropped, broadcast queue overflowed")
				return
			}

			if err := s.writeJSON(event); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *AdminSession) userID() string {
	if s.user == nil {
		return ""
	}

	return s.user.ID
}

func (s *AdminSession) readLoop() {
	defer close(s.done)

	for {
		// Admins have no idle timeout; the broadcast stream keeps the
		// connection busy and intermediaries see regular traffic.
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		s.handleMessage(data)
	}
}

func (s *AdminSession) handleMessage(data []byte) {
	var msg adminMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.writeError("malformed message")
		return
	}

	switch msg.Type {
	case "command":
		err := s.router.Dispatch(&models.CommandRequest{
			DeviceID: msg.DeviceID,
			Command:  msg.Command,
			Data:     msg.Data,
		})
		if err != nil {
			s.logger.Debug().Err(err).
				Str("session_id", s.id).
				Str("device_id", msg.DeviceID).
				Msg("Command dispatch failed")
			s.writeError(err.Error())
		}
	case "ping":
		s.write(&models.ServerMessage{Type: models.MessagePong})
	default:
		s.writeError("unknown message type")
	}
}

func (s *AdminSession) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteJSON(v)
}

func (s *AdminSession) write(msg *models.ServerMessage) {
	if err := s.writeJSON(msg); err != nil {
		s.logger.Debug().Err(err).Str("session_id", s.id).Msg("Admin write failed")
	}
}

func (s *AdminSession) writeError(detail string) {
	s.write(&models.ServerMessage{Type: models.MessageError, Error: detail})
}
