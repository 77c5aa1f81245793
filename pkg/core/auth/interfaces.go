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

//go:generate mockgen -destination=mock_auth.go -package=auth github.com/fleetglass/fleetglass/pkg/core/auth AuthService

// Package auth verifies admin identity for the websocket and REST surfaces.
// Devices never authenticate here; their surfaces are keyed or open by
// deployment policy.
package auth

import (
	"context"

	"github.com/fleetglass/fleetglass/pkg/models"
)

type AuthService interface {
	// VerifyToken validates a bearer token and returns the admin identity.
	VerifyToken(ctx context.Context, token string) (*models.User, error)

	// GenerateToken mints a token for an admin identity. Used by operator
	// tooling; there is no interactive login flow in the relay itself.
	GenerateToken(user *models.User) (string, error)
}
