/*
 * Copyright 2025 Home Relay Authors.
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

// Package api provides the HTTP API server for the home relay.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quietlane/home-relay/pkg/config"
	"github.com/quietlane/home-relay/pkg/fanout"
	relayhttp "github.com/quietlane/home-relay/pkg/http"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
	"github.com/quietlane/home-relay/pkg/notify"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second
)

// SensorService is the part of the sensor engine the API consumes.
type SensorService interface {
	State(role string) (models.SensorState, error)
	All() map[string]models.SensorState
	Comparison() *models.SensorComparison
	Roles() map[string]string
	SetRole(ctx context.Context, role, device string) error
	SetUnit(unit string) error
	Unit() string
}

// BridgeService is the part of the bridge client the API consumes.
type BridgeService interface {
	Connected() bool
	BridgeState() string
	BridgeInfo() models.BridgeInfo
	Devices() []models.ZigbeeDevice
	ClimateSensors() []models.ClimateSensor
	RenameDevice(ctx context.Context, from, to string) error
	RemoveDevice(ctx context.Context, id string, force bool) error
	PermitJoin(ctx context.Context, value bool, seconds int) error
}

// APIServer exposes the relay over HTTP: REST for commands and reads, NDJSON
// and WebSocket streams for live push.
type APIServer struct {
	router     *mux.Router
	httpServer *http.Server
	corsConfig models.CORSConfig
	logger     logger.Logger

	sensors     SensorService
	bridge      BridgeService
	notifyStore *notify.Store
	scheduler   *notify.Scheduler
	configStore *config.Store
	bus         *fanout.Bus
}

// NewAPIServer creates the API server with the given configuration.
func NewAPIServer(corsConfig models.CORSConfig, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router:     mux.NewRouter(),
		corsConfig: corsConfig,
		logger:     logger.NewTestLogger(),
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithLogger sets the server's logger.
func WithLogger(log logger.Logger) func(server *APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

// WithSensors adds the sensor engine to the API server.
func WithSensors(sensors SensorService) func(server *APIServer) {
	return func(server *APIServer) {
		server.sensors = sensors
	}
}

// WithBridge adds the bridge client to the API server.
func WithBridge(bridge BridgeService) func(server *APIServer) {
	return func(server *APIServer) {
		server.bridge = bridge
	}
}

// WithNotifications adds the notification store and scheduler.
func WithNotifications(store *notify.Store, scheduler *notify.Scheduler) func(server *APIServer) {
	return func(server *APIServer) {
		server.notifyStore = store
		server.scheduler = scheduler
	}
}

// WithConfigStore adds the dashboard config store.
func WithConfigStore(store *config.Store) func(server *APIServer) {
	return func(server *APIServer) {
		server.configStore = store
	}
}

// WithBus adds the broadcast bus that feeds the push endpoints.
func WithBus(bus *fanout.Bus) func(server *APIServer) {
	return func(server *APIServer) {
		server.bus = bus
	}
}

func (s *APIServer) setupRoutes() {
	s.router.Use(relayhttp.RequestLogMiddleware(s.logger))
	s.router.Use(relayhttp.CORSMiddleware(s.corsConfig))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/sensors/status", s.handleSensorStatus).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/sensors/devices", s.handleSensorDevices).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/sensors/config", s.handleSensorConfig).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/sensors/all", s.handleSensorAll).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/sensors/{role}", s.handleSensorRole).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/mqtt/devices", s.handleMQTTDevices).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/mqtt/bridge", s.handleMQTTBridge).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/mqtt/devices/rename", s.handleDeviceRename).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/mqtt/devices/remove", s.handleDeviceRemove).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/mqtt/permit-join", s.handlePermitJoin).Methods(http.MethodPost, http.MethodOptions)

	s.router.HandleFunc("/notifications", s.handleNotificationCreate).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/notifications", s.handleNotificationList).Methods(http.MethodGet)
	s.router.HandleFunc("/notifications/due", s.handleNotificationsDue).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/notifications/check", s.handleNotificationsCheck).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/notifications/preferences", s.handlePreferencesList).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/notifications/preferences/{type}", s.handlePreferenceSet).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/notifications/preferences/{type}", s.handlePreferenceDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/notifications/{id:[0-9]+}", s.handleNotificationDelete).Methods(http.MethodDelete, http.MethodOptions)
	s.router.HandleFunc("/notifications/{id:[0-9]+}/dismiss", s.handleNotificationDismiss).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/notifications/{id:[0-9]+}/undismiss", s.handleNotificationUndismiss).Methods(http.MethodPost, http.MethodOptions)

	s.router.HandleFunc("/config", s.handleConfigGet).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/config", s.handleConfigSave).Methods(http.MethodPost)
	s.router.HandleFunc("/config/subscribe", s.handleConfigSubscribe).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// Router exposes the handler, mainly for tests.
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown or a listener error. The write
// timeout stays unset: the push endpoints hold their response open for as
// long as the viewer stays connected.
func (s *APIServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: defaultReadTimeout,
		IdleTimeout: defaultIdleTimeout,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
