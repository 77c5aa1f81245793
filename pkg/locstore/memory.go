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
	"errors"
	"fmt"
	"sync"

	"github.com/fleetglass/fleetglass/pkg/models"
)

var errEmptyDeviceID = errors.New("device id must not be empty")

// MemoryStore is the in-memory Store implementation. History per device is a
// plain append-only slice guarded by a single RWMutex; record counts are
// small enough that per-device locking buys nothing here.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]models.LocationRecord
}

// NewMemoryStore creates an empty location store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]models.LocationRecord),
	}
}

// Append adds a record to a device's history.
func (s *MemoryStore) Append(_ context.Context, deviceID string, rec *models.LocationRecord) error {
	if deviceID == "" {
		return errEmptyDeviceID
	}

	if rec == nil {
		return fmt.Errorf("nil location record for device %s", deviceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[deviceID] = append(s.records[deviceID], *rec)

	return nil
}

// History returns the device's records in insertion order. A positive limit
// returns only the most recent limit records, still oldest-first.
func (s *MemoryStore) History(_ context.Context, deviceID string, limit int) ([]models.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[deviceID]
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}

	out := make([]models.LocationRecord, len(recs))
	copy(out, recs)

	return out, nil
}

// Count reports the number of records stored for a device.
func (s *MemoryStore) Count(_ context.Context, deviceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records[deviceID]), nil
}
