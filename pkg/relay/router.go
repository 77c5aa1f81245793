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
	"fmt"
	"strings"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
)

// CommandRouter delivers admin-issued commands to live device sessions.
// Commands are fire-and-forget: there is no queueing for offline devices
// and no delivery acknowledgement beyond the enqueue succeeding.
type CommandRouter struct {
	registry registry.Manager
	logger   logger.Logger
}

// NewCommandRouter creates a router over the registry.
func NewCommandRouter(reg registry.Manager, log logger.Logger) *CommandRouter {
	return &CommandRouter{registry: reg, logger: log}
}

// Dispatch validates the command and enqueues it on the target device's
// live session. Returns registry.ErrUnknownDevice, registry.ErrDeviceOffline,
// or the session's enqueue error.
func (r *CommandRouter) Dispatch(cmd *models.CommandRequest) error {
	if cmd == nil || strings.TrimSpace(cmd.DeviceID) == "" {
		return registry.ErrMissingDeviceID
	}

	if strings.TrimSpace(cmd.Command) == "" {
		return fmt.Errorf("%w: command is required", models.ErrValidation)
	}

	target, err := r.registry.CommandTarget(cmd.DeviceID)
	if err != nil {
		return err
	}

	if err := target.SendCommand(cmd); err != nil {
		return fmt.Errorf("failed to deliver command to %s: %w", cmd.DeviceID, err)
	}

	r.logger.Debug().
		Str("device_id", cmd.DeviceID).
		Str("command", cmd.Command).
		Msg("Command dispatched")

	return nil
}
