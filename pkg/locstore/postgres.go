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

package locstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
)

const (
	createLocationsTable = `
		CREATE TABLE IF NOT EXISTS device_locations (
			id          BIGSERIAL PRIMARY KEY,
			device_id   TEXT NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lon         DOUBLE PRECISION NOT NULL,
			accuracy    DOUBLE PRECISION,
			reported_at BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	insertLocation = `
		INSERT INTO device_locations (device_id, lat, lon, accuracy, reported_at)
		VALUES ($1, $2, $3, $4, $5)`
)

// PostgresArchiver mirrors location records into Postgres for durable
// history. It is best-effort: callers log Archive errors and keep going.
type PostgresArchiver struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewPostgresArchiver dials the archive database and ensures the locations
// table exists.
func NewPostgresArchiver(ctx context.Context, dsn string, log logger.Logger) (*PostgresArchiver, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to initialize pool: %w", err)
	}

	if _, err := pool.Exec(ctx, createLocationsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: failed to ensure schema: %w", err)
	}

	if log != nil {
		log.Info().Msg("connected to location archive database")
	}

	return &PostgresArchiver{pool: pool, logger: log}, nil
}

// Archive writes one record to the archive table.
func (a *PostgresArchiver) Archive(ctx context.Context, deviceID string, rec *models.LocationRecord) error {
	if rec == nil {
		return fmt.Errorf("nil location record for device %s", deviceID)
	}

	_, err := a.pool.Exec(ctx, insertLocation, deviceID, rec.Lat, rec.Lon, rec.Accuracy, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: insert failed: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (a *PostgresArchiver) Close() {
	a.pool.Close()
}
