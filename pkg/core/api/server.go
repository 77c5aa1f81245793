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

// Package api exposes the relay's HTTP surface: the device and admin
// websocket endpoints, the form-encoded upload gateway, and the admin REST
// API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetglass/fleetglass/pkg/core/auth"
	"github.com/fleetglass/fleetglass/pkg/framecache"
	srHttp "github.com/fleetglass/fleetglass/pkg/http"
	"github.com/fleetglass/fleetglass/pkg/locstore"
	"github.com/fleetglass/fleetglass/pkg/logger"
	"github.com/fleetglass/fleetglass/pkg/models"
	"github.com/fleetglass/fleetglass/pkg/registry"
	"github.com/fleetglass/fleetglass/pkg/relay"
)

// APIServer routes HTTP traffic to the relay collaborators.
type APIServer struct {
	router      *mux.Router
	registry    registry.Manager
	frames      *framecache.Cache
	locs        locstore.Store
	ingestor    *relay.Ingestor
	cmdRouter   *relay.CommandRouter
	authService auth.AuthService
	config      *models.RelayConfig
	logger      logger.Logger
}

// WithAuthService sets the admin token verifier. Without it every admin
// surface answers 401.
func WithAuthService(a auth.AuthService) func(server *APIServer) {
	return func(server *APIServer) {
		server.authService = a
	}
}

// NewAPIServer wires routes over the relay collaborators.
func NewAPIServer(
	cfg *models.RelayConfig,
	reg registry.Manager,
	frames *framecache.Cache,
	locs locstore.Store,
	ing *relay.Ingestor,
	cmdRouter *relay.CommandRouter,
	log logger.Logger,
	options ...func(*APIServer),
) *APIServer {
	s := &APIServer{
		router:    mux.NewRouter(),
		registry:  reg,
		frames:    frames,
		locs:      locs,
		ingestor:  ing,
		cmdRouter: cmdRouter,
		config:    cfg,
		logger:    log,
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// Router returns the configured handler for mounting in an HTTP server.
func (s *APIServer) Router() http.Handler {
	return s.router
}

func (s *APIServer) setupRoutes() {
	s.router.Use(srHttp.CommonMiddleware(&s.config.CORS, s.logger))

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	// Live channels. Device auth is deployment policy; admin auth happens
	// after upgrade so the handshake never leaks status codes.
	s.router.HandleFunc("/ws/device", s.handleDeviceWS)
	s.router.HandleFunc("/ws/admin", s.handleAdminWS)

	// Stateless upload gateway for constrained clients.
	gateway := s.router.PathPrefix("/api/device/upload").Subrouter()
	gateway.Use(srHttp.APIKeyMiddleware(s.config.APIKey, s.logger))
	gateway.HandleFunc("/register", s.handleUploadRegister).Methods(http.MethodPost)
	gateway.HandleFunc("/camera", s.handleUploadCamera).Methods(http.MethodPost)
	gateway.HandleFunc("/location", s.handleUploadLocation).Methods(http.MethodPost)
	gateway.HandleFunc("/system-info", s.handleUploadSystemInfo).Methods(http.MethodPost)
	gateway.HandleFunc("/battery", s.handleUploadSystemInfo).Methods(http.MethodPost)
	gateway.HandleFunc("/heartbeat", s.handleUploadHeartbeat).Methods(http.MethodPost)

	// Admin REST surface.
	admin := s.router.PathPrefix("/api").Subrouter()
	admin.Use(s.bearerAuthMiddleware)
	admin.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	admin.HandleFunc("/devices/{id}", s.handleGetDevice).Methods(http.MethodGet)
	admin.HandleFunc("/devices/{id}/command", s.handlePostCommand).Methods(http.MethodPost)
	admin.HandleFunc("/devices/{id}/camera/{camera}", s.handleGetCameraFrame).Methods(http.MethodGet)
	admin.HandleFunc("/devices/{id}/locations", s.handleGetLocations).Methods(http.MethodGet)
	admin.HandleFunc("/stats", s.handleGetStats).Methods(http.MethodGet)
}

func (s *APIServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func writeJSON(w http.ResponseWriter, data interface{}, log logger.Logger) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
