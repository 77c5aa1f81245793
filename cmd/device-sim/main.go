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

// device-sim is a development client that connects to the relay as a
// device, registers with the host's real hardware profile, and reports
// system stats on an interval. Useful for exercising the admin surface
// without a fleet.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws/device", "Relay device websocket URL")
	deviceID := flag.String("device-id", "", "Device id (random UUID when empty)")
	interval := flag.Duration("interval", 30*time.Second, "System info report interval")
	flag.Parse()

	id := *deviceID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *serverURL, id, *interval); err != nil {
		log.Fatalf("device-sim: %v", err)
	}
}

func run(ctx context.Context, serverURL, deviceID string, interval time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(registerMessage(deviceID)); err != nil {
		return err
	}

	log.Printf("registered as %s", deviceID)

	go readLoop(conn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteJSON(systemInfoMessage()); err != nil {
				return err
			}

			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				return err
			}
		}
	}
}

func registerMessage(deviceID string) map[string]interface{} {
	msg := map[string]interface{}{
		"type":     "register",
		"deviceId": deviceID,
	}

	if info, err := host.Info(); err == nil {
		msg["manufacturer"] = info.Platform
		msg["model"] = info.KernelArch
		msg["platformVersion"] = info.PlatformVersion
		msg["hardwareId"] = info.HostID
	}

	return msg
}

func systemInfoMessage() map[string]interface{} {
	msg := map[string]interface{}{
		"type":      "system_info",
		"timestamp": time.Now().UnixMilli(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		msg["memoryUsage"] = int64(vm.Used)
	}

	if usage, err := disk.Usage("/"); err == nil {
		msg["storageUsage"] = usage.UsedPercent
	}

	return msg
}

func readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type    string                 `json:"type"`
			Command string                 `json:"command"`
			Data    map[string]interface{} `json:"data"`
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "command":
			log.Printf("command received: %s %v", msg.Command, msg.Data)
		case "error":
			log.Printf("server error: %s", string(data))
		}
	}
}
