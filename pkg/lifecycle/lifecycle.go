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

// Package lifecycle runs the relay's HTTP server with signal-driven
// graceful shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetglass/fleetglass/pkg/logger"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// CreateLogger creates a logger instance from config, falling back to
// defaults when config is nil.
func CreateLogger(config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	return logger.New(config)
}

// CreateComponentLogger creates a logger tagged with a component field.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	return logger.NewComponent(component, config)
}

// RunServer serves handler on addr until the context is cancelled or an
// interrupt arrives, then drains connections. Live websocket sessions are
// closed by the drain; clients are expected to reconnect.
func RunServer(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Websocket sessions hold their connections open; a deadline here
		// means we close them hard.
		_ = srv.Close()

		return fmt.Errorf("graceful shutdown incomplete: %w", err)
	}

	return nil
}
