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

package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/fleetglass/fleetglass/pkg/config"
	"github.com/fleetglass/fleetglass/pkg/core/api"
	"github.com/fleetglass/fleetglass/pkg/core/auth"
	"github.com/fleetglass/fleetglass/pkg/events"
	"github.com/fleetglass/fleetglass/pkg/framecache"
	"github.com/fleetglass/fleetglass/pkg/lifecycle"
	"github.com/fleetglass/fleetglass/pkg/locstore"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
	"github.com/fleetglass/fleetglass/pkg/relay"
)

func main() {
	configPath := flag.String("config", "/etc/fleetglass/relay.json", "Path to relay config file")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	bootstrapLogger, err := lifecycle.CreateLogger(nil)
	if err != nil {
		return err
	}

	var cfg models.RelayConfig

	cfgLoader := config.NewConfig(bootstrapLogger)
	if err := cfgLoader.LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return err
	}

	logInstance, err := lifecycle.CreateComponentLogger("relay", cfg.Logging)
	if err != nil {
		return err
	}

	regOpts := []registry.Option{registry.WithAdminQueueSize(cfg.AdminQueueSize)}

	if cfg.Events.Enabled {
		publisher, pubErr := events.Connect(ctx, &cfg.Events, logInstance)
		if pubErr != nil {
			return pubErr
		}
		defer publisher.Close()

		regOpts = append(regOpts, registry.WithEventSink(publisher))
	}

	reg := registry.NewRegistry(logInstance, regOpts...)
	frames := framecache.NewCache()
	locs := locstore.NewMemoryStore()

	ingOpts := []relay.IngestorOption{}

	if cfg.Archive.Enabled {
		archiver, archErr := locstore.NewPostgresArchiver(ctx, cfg.Archive.DSN, logInstance)
		if archErr != nil {
			return archErr
		}
		defer archiver.Close()

		ingOpts = append(ingOpts, relay.WithArchiver(archiver))
	}

	ingestor := relay.NewIngestor(reg, frames, locs, logInstance, ingOpts...)
	cmdRouter := relay.NewCommandRouter(reg, logInstance)

	authService, err := auth.NewJWTService(&cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewAPIServer(&cfg, reg, frames, locs, ingestor, cmdRouter, logInstance,
		api.WithAuthService(authService))

	return lifecycle.RunServer(ctx, cfg.ListenAddr, server.Router(), logInstance)
}
