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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

// SessionState tracks a device session through its lifecycle. Transitions
// only move forward; a closed session is never reused.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateRegistered
	StateActive
	StateClosing
	StateClosed
)

var (
	errSessionClosed   = errors.New("session closed")
	errOutboundFull    = errors.New("outbound queue full")
	errRegisterFirst   = errors.New("first message must be register")
	errAlreadyRegister = errors.New("device already registered on this session")
)

// Conn is the transport a session reads and writes. Satisfied by
// *websocket.Conn; abstracted so session logic is testable without a
// network listener.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DeviceSession owns one live device connection. The read loop enforces the
// register-first protocol and dispatches envelopes through the Ingestor; a
// dedicated writer goroutine drains the outbound queue so command delivery
// never interleaves writes with the read path.
type DeviceSession struct {
	id       string
	conn     Conn
	ingestor *Ingestor
	registry registry.Manager
	idle     time.Duration
	logger   logger.Logger

	mu       sync.Mutex
	state    SessionState
	deviceID string

	outbound chan *models.ServerMessage
	done     chan struct{}
	closeOne sync.Once
}

// NewDeviceSession wraps an accepted connection. Run must be called to
// start the protocol.
func NewDeviceSession(conn Conn, ing *Ingestor, reg registry.Manager, idle time.Duration, log logger.Logger) *DeviceSession {
	if idle <= 0 {
		idle = 90 * time.Second
	}

	return &DeviceSession{
		id:       uuid.NewString(),
		conn:     conn,
		ingestor: ing,
		registry: reg,
		idle:     idle,
		logger:   log,
		state:    StateConnecting,
		outbound: make(chan *models.ServerMessage, 32),
		done:     make(chan struct{}),
	}
}

// State reports the session's lifecycle state.
func (s *DeviceSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// DeviceID reports the registered device id, empty before registration.
func (s *DeviceSession) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deviceID
}

// SendCommand enqueues a command for the device. Returns an error when the
// session is closing or its outbound queue is full; commands are never
// queued past the session's own buffer.
func (s *DeviceSession) SendCommand(cmd *models.CommandRequest) error {
	msg := &models.ServerMessage{
		Type:    models.MessageCommand,
		Command: cmd.Command,
		Data:    cmd.Data,
	}

	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.outbound <- msg:
		return nil
	default:
		return errOutboundFull
	}
}

// Evict shuts the session down because a newer session claimed its device
// id. Non-blocking; the read loop observes the closed transport and tears
// down without touching the newer session's registry binding.
func (s *DeviceSession) Evict(reason string) {
	s.logger.Info().
		Str("session_id", s.id).
		Str("device_id", s.DeviceID()).
		Str("reason", reason).
		Msg("Evicting device session")
	s.shutdown()
}

// Run drives the session until the peer disconnects, the context is
// cancelled, or a protocol violation closes the connection.
func (s *DeviceSession) Run(ctx context.Context) {
	defer s.teardown()

	go s.writeLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done:
		}
	}()

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
			return
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug().Err(err).Str("session_id", s.id).Msg("Device read loop ended")
			}

			return
		}

		if err := s.handleMessage(ctx, data); err != nil {
			if errors.Is(err, errRegisterFirst) {
				s.enqueueError(err.Error())
				// Give the writer a moment to flush before closing.
				time.Sleep(50 * time.Millisecond)

				return
			}

			s.enqueueError(err.Error())
		}
	}
}

func (s *DeviceSession) handleMessage(ctx context.Context, data []byte) error {
	env, err := models.DecodeEnvelope(data)
	if err != nil {
		// Before registration any message that is not a well-formed
		// register is a protocol violation; ignore-unknown leniency only
		// applies once the device is known.
		if s.State() == StateConnecting {
			return errRegisterFirst
		}

		if errors.Is(err, models.ErrUnknownEnvelope) {
			s.logger.Warn().Err(err).Str("session_id", s.id).Msg("Ignoring unknown envelope type")
			return nil
		}

		return err
	}

	if s.State() == StateConnecting && env.Type != models.EnvelopeRegister {
		return errRegisterFirst
	}

	switch env.Type {
	case models.EnvelopeRegister:
		return s.handleRegister(env.Register)
	case models.EnvelopeCameraFrame:
		return s.ingestor.HandleCameraFrame(s.DeviceID(), env.CameraFrame)
	case models.EnvelopeLocation:
		return s.ingestor.HandleLocation(ctx, s.DeviceID(), env.Location)
	case models.EnvelopeSystemInfo:
		return s.ingestor.HandleSystemInfo(s.DeviceID(), env.SystemInfo)
	case models.EnvelopePing:
		if err := s.ingestor.Touch(s.DeviceID()); err != nil {
			return err
		}

		s.enqueue(&models.ServerMessage{Type: models.MessagePong})

		return nil
	default:
		return nil
	}
}

func (s *DeviceSession) handleRegister(payload *models.RegisterPayload) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return errAlreadyRegister
	}
	s.mu.Unlock()

	meta := payload.Metadata()

	result, err := s.ingestor.Register(meta, s)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	s.mu.Lock()
	s.state = StateRegistered
	s.deviceID = meta.DeviceID
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", s.id).
		Str("device_id", meta.DeviceID).
		Bool("created", result.Created).
		Bool("evicted_prior", result.Evicted).
		Msg("Device registered")

	s.enqueue(&models.ServerMessage{
		Type:     models.MessageRegisterAck,
		DeviceID: meta.DeviceID,
	})

	// Registered is transient: the ack is on the wire, normal dispatch
	// starts immediately.
	s.mu.Lock()
	if s.state == StateRegistered {
		s.state = StateActive
	}
	s.mu.Unlock()

	return nil
}

func (s *DeviceSession) enqueue(msg *models.ServerMessage) {
	select {
	case s.outbound <- msg:
	case <-s.done:
	default:
		s.logger.Warn().Str("session_id", s.id).Msg("Dropping outbound message, queue full")
	}
}

func (s *DeviceSession) enqueueError(detail string) {
	s.enqueue(&models.ServerMessage{Type: models.MessageError, Error: detail})
}

func (s *DeviceSession) writeLoop() {
	for {
		select {
		case msg := <-s.outbound:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			return
		}
	}
}

// shutdown signals termination and closes the transport, unblocking the
// read loop. Safe to call from any goroutine, any number of times.
func (s *DeviceSession) shutdown() {
	s.closeOne.Do(func() {
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateClosing
		}
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *DeviceSession) teardown() {
	s.shutdown()

	id := s.DeviceID()
	if id != "" {
		// Conditional on this session still being the bound one: an evicted
		// session's late teardown must not mark the replacement offline.
		s.registry.MarkOffline(id, s)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}
