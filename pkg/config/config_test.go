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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relay.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestFileLoaderLoadsRelayConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":8080",
		"auth": {"jwt_secret": "secret"},
		"device_idle_timeout": "2m",
		"admin_queue_size": 16
	}`)

	var cfg models.RelayConfig

	loader := &FileConfigLoader{}
	require.NoError(t, loader.Load(context.Background(), path, &cfg))

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.DeviceIdleTimeout))
	assert.Equal(t, 16, cfg.AdminQueueSize)
}

func TestFileLoaderMissingFile(t *testing.T) {
	var cfg models.RelayConfig

	loader := &FileConfigLoader{}
	assert.Error(t, loader.Load(context.Background(), "/nonexistent/relay.json", &cfg))
}

func TestFileLoaderMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	var cfg models.RelayConfig

	loader := &FileConfigLoader{}
	assert.Error(t, loader.Load(context.Background(), path, &cfg))
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":8080",
		"auth": {"jwt_secret": "secret"}
	}`)

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, 90*time.Second, time.Duration(cfg.DeviceIdleTimeout))
	assert.Equal(t, 64, cfg.AdminQueueSize)
}

func TestLoadAndValidateRejectsInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": ":8080"}`)

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	assert.Error(t, c.LoadAndValidate(context.Background(), path, &cfg), "missing jwt secret must fail validation")
}

func TestLoadAndValidateInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "carrier-pigeon")

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	assert.Error(t, c.LoadAndValidate(context.Background(), "ignored", &cfg))
}

func TestEnvLoaderNestedKeys(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("FLEETGLASS_LISTEN_ADDR", ":9090")
	t.Setenv("FLEETGLASS_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("FLEETGLASS_DEVICE_IDLE_TIMEOUT", "45s")
	t.Setenv("FLEETGLASS_ADMIN_QUEUE_SIZE", "8")
	t.Setenv("FLEETGLASS_CORS_ALLOWED_ORIGINS", `["https://ops.example.com"]`)
	t.Setenv("FLEETGLASS_EVENTS_ENABLED", "true")
	t.Setenv("FLEETGLASS_EVENTS_NATS_URL", "nats://localhost:4222")

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.DeviceIdleTimeout))
	assert.Equal(t, 8, cfg.AdminQueueSize)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATS.URL)
	assert.Equal(t, "events", cfg.Events.StreamName)
}

func TestEnvLoaderConfigJSONShortcut(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("FLEETGLASS_CONFIG_JSON", `{
		"listen_addr": ":7070",
		"auth": {"jwt_secret": "json-secret"}
	}`)

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "json-secret", cfg.Auth.JWTSecret)
}

func TestEnvLoaderCustomPrefix(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "RELAY_")
	t.Setenv("RELAY_LISTEN_ADDR", ":6060")
	t.Setenv("RELAY_AUTH_JWT_SECRET", "prefixed")

	var cfg models.RelayConfig

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":6060", cfg.ListenAddr)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "FLEETGLASS_")

	var cfg models.RelayConfig

	assert.ErrorIs(t, loader.Load(context.Background(), "", cfg), ErrDstMustBeNonNilPointer)
}
