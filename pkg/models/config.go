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

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetglass/fleetglass/pkg/logger"
)

var (
	errInvalidDuration      = fmt.Errorf("invalid duration")
	errListenAddrRequired   = fmt.Errorf("listen address is required")
	errJWTSecretRequired    = fmt.Errorf("auth jwt_secret is required")
	errNATSURLRequired      = fmt.Errorf("nats url is required when events are enabled")
	errPostgresDSNRequired  = fmt.Errorf("postgres dsn is required when the location archive is enabled")
	errAdminQueueTooSmall   = fmt.Errorf("admin_queue_size must be at least 1")
	errIdleTimeoutNegative  = fmt.Errorf("device_idle_timeout must be non-negative")
	errFrameLimitNonPositiv = fmt.Errorf("max_frame_bytes must be positive")
)

// Duration wraps time.Duration so JSON configs accept both "90s" strings and
// nanosecond numbers.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// CORSConfig controls cross-origin access for the HTTP and WebSocket surface.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// AuthConfig configures admin bearer-token verification. Token issuance is
// the external auth service's concern; the relay only verifies.
type AuthConfig struct {
	JWTSecret     string   `json:"jwt_secret"`
	JWTExpiration Duration `json:"jwt_expiration"`
}

// EventsConfig configures the optional NATS JetStream event mirror.
type EventsConfig struct {
	Enabled    bool       `json:"enabled"`
	NATS       NATSConfig `json:"nats"`
	StreamName string     `json:"stream_name"`
	Subject    string     `json:"subject"`
}

// NATSConfig configures NATS connectivity.
type NATSConfig struct {
	URL string `json:"url"`
}

// ArchiveConfig configures the optional Postgres location archive.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// RelayConfig is the top-level configuration for the relay service.
type RelayConfig struct {
	ListenAddr        string         `json:"listen_addr"`
	CORS              CORSConfig     `json:"cors,omitempty"`
	Auth              AuthConfig     `json:"auth"`
	APIKey            string         `json:"api_key,omitempty"`
	DeviceIdleTimeout Duration       `json:"device_idle_timeout"`
	AdminQueueSize    int            `json:"admin_queue_size"`
	MaxFrameBytes     int64          `json:"max_frame_bytes"`
	Events            EventsConfig   `json:"events,omitempty"`
	Archive           ArchiveConfig  `json:"archive,omitempty"`
	Logging           *logger.Config `json:"logging,omitempty"`
}

// Validate ensures required fields are set and applies defaults.
func (c *RelayConfig) Validate() error {
	if c.ListenAddr == "" {
		return errListenAddrRequired
	}

	if c.Auth.JWTSecret == "" {
		return errJWTSecretRequired
	}

	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = Duration(24 * time.Hour)
	}

	if c.DeviceIdleTimeout < 0 {
		return errIdleTimeoutNegative
	}

	if c.DeviceIdleTimeout == 0 {
		c.DeviceIdleTimeout = Duration(90 * time.Second)
	}

	if c.AdminQueueSize == 0 {
		c.AdminQueueSize = 64
	}

	if c.AdminQueueSize < 1 {
		return errAdminQueueTooSmall
	}

	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = 8 << 20
	}

	if c.MaxFrameBytes < 0 {
		return errFrameLimitNonPositiv
	}

	if c.Events.Enabled {
		if c.Events.NATS.URL == "" {
			return errNATSURLRequired
		}

		if c.Events.StreamName == "" {
			c.Events.StreamName = "events"
		}

		if c.Events.Subject == "" {
			c.Events.Subject = "events.device.state"
		}
	}

	if c.Archive.Enabled && c.Archive.DSN == "" {
		return errPostgresDSNRequired
	}

	return nil
}
