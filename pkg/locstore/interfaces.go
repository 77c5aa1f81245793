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

//go:generate mockgen -destination=mock_locstore.go -package=locstore github.com/fleetglass/fleetglass/pkg/locstore Store,Archiver

// Package locstore keeps per-device location history. The in-memory store is
// authoritative for the live path; the Postgres archiver is best-effort and
// never blocks ingestion.
package locstore

import (
	"context"

	"github.com/fleetglass/fleetglass/pkg/models"
)

// Store is the append-only per-device location history consumed by the
// admin read surface. Records are immutable once appended; History returns
// them in insertion order.
type Store interface {
	Append(ctx context.Context, deviceID string, rec *models.LocationRecord) error
	History(ctx context.Context, deviceID string, limit int) ([]models.LocationRecord, error)
	Count(ctx context.Context, deviceID string) (int, error)
}

// Archiver receives a copy of every appended record for durable storage.
// Failures are logged by the caller and do not fail the live path.
type Archiver interface {
	Archive(ctx context.Context, deviceID string, rec *models.LocationRecord) error
	Close()
}
