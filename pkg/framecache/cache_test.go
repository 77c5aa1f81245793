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

package framecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetglass/fleetglass/pkg/models"
)

func frame(deviceID, camera string, ts int64) *models.CameraFrame {
	return &models.CameraFrame{
		DeviceID:  deviceID,
		Camera:    camera,
		Data:      []byte{byte(ts)},
		Width:     1,
		Height:    1,
		Timestamp: ts,
	}
}

func TestPutGetLatestWins(t *testing.T) {
	cache := NewCache()

	cache.Put(frame("dev-1", models.CameraFront, 1))
	cache.Put(frame("dev-1", models.CameraFront, 2))

	got, ok := cache.Get("dev-1", models.CameraFront)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Timestamp)
	assert.Equal(t, 1, cache.Len())
}

func TestCamerasAreIndependentSlots(t *testing.T) {
	cache := NewCache()

	cache.Put(frame("dev-1", models.CameraFront, 1))
	cache.Put(frame("dev-1", models.CameraBack, 2))

	front, ok := cache.Get("dev-1", models.CameraFront)
	require.True(t, ok)
	assert.Equal(t, int64(1), front.Timestamp)

	back, ok := cache.Get("dev-1", models.CameraBack)
	require.True(t, ok)
	assert.Equal(t, int64(2), back.Timestamp)
}

func TestGetMissing(t *testing.T) {
	cache := NewCache()

	_, ok := cache.Get("dev-1", models.CameraFront)
	assert.False(t, ok)
}

func TestPutIgnoresInvalid(t *testing.T) {
	cache := NewCache()

	cache.Put(nil)
	cache.Put(&models.CameraFrame{Camera: models.CameraFront})

	assert.Zero(t, cache.Len())
}

func TestDropDevice(t *testing.T) {
	cache := NewCache()

	cache.Put(frame("dev-1", models.CameraFront, 1))
	cache.Put(frame("dev-1", models.CameraBack, 2))
	cache.Put(frame("dev-2", models.CameraFront, 3))

	cache.DropDevice("dev-1")

	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("dev-2", models.CameraFront)
	assert.True(t, ok)
}

func TestConcurrentPutGet(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				cache.Put(frame("dev-1", models.CameraFront, int64(n*100+j)))

				if got, ok := cache.Get("dev-1", models.CameraFront); ok {
					// A read must always observe a complete frame.
					assert.Len(t, got.Data, 1)
				}
			}
		}(i)
	}

	wg.Wait()
}
