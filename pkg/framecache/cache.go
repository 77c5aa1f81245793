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

// Package framecache holds the most recent camera payload per device and
// camera. It is a latest-wins cache: each Put replaces the prior frame for
// the same key, and readers always observe a complete frame because stored
// frames are immutable and replaced by pointer swap.
package framecache

import (
	"sync"

	"github.com/fleetglass/fleetglass/pkg/models"
)

type key struct {
	deviceID string
	camera   string
}

// Cache is a concurrency-safe latest-wins frame store. Growth is bounded by
// the number of live device and camera combinations; there is no eviction.
type Cache struct {
	mu     sync.RWMutex
	frames map[key]*models.CameraFrame
}

// NewCache creates an empty frame cache.
func NewCache() *Cache {
	return &Cache{
		frames: make(map[key]*models.CameraFrame),
	}
}

// Put stores a frame, overwriting any prior frame for the same device and
// camera. The frame must not be mutated by the caller after Put.
func (c *Cache) Put(frame *models.CameraFrame) {
	if frame == nil || frame.DeviceID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames[key{deviceID: frame.DeviceID, camera: frame.Camera}] = frame
}

// Get returns the latest frame for a device and camera, or false when none
// has been cached yet.
func (c *Cache) Get(deviceID, camera string) (*models.CameraFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	frame, ok := c.frames[key{deviceID: deviceID, camera: camera}]

	return frame, ok
}

// DropDevice removes all cached frames for a device. Called when a device is
// removed; a plain disconnect keeps frames so admins can still pull the last
// image.
func (c *Cache) DropDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.frames {
		if k.deviceID == deviceID {
			delete(c.frames, k)
		}
	}
}

// Len reports the number of cached device/camera slots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.frames)
}
