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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlane/home-relay/pkg/config"
	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
	"github.com/quietlane/home-relay/pkg/notify"
	"github.com/quietlane/home-relay/pkg/sensor"
)

type fakeSensors struct {
	states map[string]models.SensorState
	roles  map[string]string
	unit   string
	cmp    *models.SensorComparison
}

func newFakeSensors() *fakeSensors {
	return &fakeSensors{
		states: map[string]models.SensorState{},
		roles:  map[string]string{sensor.RoleIndoor: "", sensor.RoleOutdoor: ""},
		unit:   "C",
	}
}

func (f *fakeSensors) State(role string) (models.SensorState, error) {
	st, ok := f.states[role]
	if !ok {
		return models.SensorState{}, fmt.Errorf("%w: %s", sensor.ErrUnknownRole, role)
	}

	return st, nil
}

func (f *fakeSensors) All() map[string]models.SensorState   { return f.states }
func (f *fakeSensors) Comparison() *models.SensorComparison { return f.cmp }
func (f *fakeSensors) Roles() map[string]string             { return f.roles }
func (f *fakeSensors) Unit() string                         { return f.unit }

func (f *fakeSensors) SetRole(_ context.Context, role, device string) error {
	if _, ok := f.roles[role]; !ok {
		return fmt.Errorf("%w: %s", sensor.ErrUnknownRole, role)
	}

	f.roles[role] = device

	return nil
}

func (f *fakeSensors) SetUnit(unit string) error {
	if unit != "C" && unit != "F" {
		return fmt.Errorf("invalid unit %q", unit)
	}

	f.unit = unit

	return nil
}

type fakeBridge struct {
	connected   bool
	state       string
	info        models.BridgeInfo
	devices     []models.ZigbeeDevice
	climate     []models.ClimateSensor
	commandErr  error
	renamed     [][2]string
	permitValue *bool
}

func (f *fakeBridge) Connected() bool                        { return f.connected }
func (f *fakeBridge) BridgeState() string                    { return f.state }
func (f *fakeBridge) BridgeInfo() models.BridgeInfo          { return f.info }
func (f *fakeBridge) Devices() []models.ZigbeeDevice         { return f.devices }
func (f *fakeBridge) ClimateSensors() []models.ClimateSensor { return f.climate }

func (f *fakeBridge) RenameDevice(_ context.Context, from, to string) error {
	if f.commandErr != nil {
		return f.commandErr
	}

	f.renamed = append(f.renamed, [2]string{from, to})

	return nil
}

func (f *fakeBridge) RemoveDevice(context.Context, string, bool) error {
	return f.commandErr
}

func (f *fakeBridge) PermitJoin(_ context.Context, value bool, _ int) error {
	if f.commandErr != nil {
		return f.commandErr
	}

	f.permitValue = &value

	return nil
}

type testHarness struct {
	server  *APIServer
	sensors *fakeSensors
	bridge  *fakeBridge
	store   *notify.Store
	bus     *fanout.Bus
	now     time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	log := logger.NewTestLogger()
	bus := fanout.New(log)

	store, err := notify.OpenStore(context.Background(), filepath.Join(dir, "notifications.db"))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	scheduler := notify.NewScheduler(store, bus, models.NotificationConfig{
		TickInterval:        models.Duration(time.Minute),
		DefaultDismissHours: 4,
	}, log)
	scheduler.SetNowFunc(func() time.Time { return now })

	sensors := newFakeSensors()
	bridge := &fakeBridge{connected: true, state: "online"}

	server := NewAPIServer(models.CORSConfig{AllowedOrigins: []string{"*"}},
		WithLogger(log),
		WithSensors(sensors),
		WithBridge(bridge),
		WithNotifications(store, scheduler),
		WithConfigStore(config.NewStore(filepath.Join(dir, "dashboard.json"), bus, log)),
		WithBus(bus),
	)

	return &testHarness{server: server, sensors: sensors, bridge: bridge, store: store, bus: bus, now: now}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()

	h.server.Router().ServeHTTP(rr, req)

	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))

	return out
}

func TestHealth(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeResponse(t, rr)["status"])
}

func TestSensorRoleEndpoint(t *testing.T) {
	h := newTestHarness(t)
	h.sensors.states[sensor.RoleIndoor] = models.SensorState{
		Available:   true,
		Temperature: 21.5,
		FeelsLike:   21.0,
		Humidity:    45,
	}

	rr := h.do(t, http.MethodGet, "/sensors/indoor", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeResponse(t, rr)
	assert.Equal(t, 21.5, body["temperature"])
}

func TestSensorRoleUnknown(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodGet, "/sensors/garage", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSensorUnitConversionAtResponseLayer(t *testing.T) {
	h := newTestHarness(t)
	h.sensors.unit = "F"
	h.sensors.states[sensor.RoleIndoor] = models.SensorState{
		Available:   true,
		Temperature: 20.0,
		FeelsLike:   19.0,
	}

	rr := h.do(t, http.MethodGet, "/sensors/indoor", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeResponse(t, rr)
	assert.Equal(t, 68.0, body["temperature"])
	assert.Equal(t, 66.2, body["feels_like"])
}

func TestSensorConfigUpdatesRolesAndUnit(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/sensors/config", map[string]any{
		"indoor": "office-sensor",
		"unit":   "F",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "office-sensor", h.sensors.roles[sensor.RoleIndoor])
	assert.Equal(t, "F", h.sensors.unit)
}

func TestSensorConfigRejectsBadUnit(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/sensors/config", map[string]any{"unit": "K"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSensorAllIncludesComparison(t *testing.T) {
	h := newTestHarness(t)
	h.sensors.states[sensor.RoleIndoor] = models.SensorState{Available: true, Temperature: 24}
	h.sensors.states[sensor.RoleOutdoor] = models.SensorState{Available: true, Temperature: 15}
	h.sensors.cmp = &models.SensorComparison{OutsideFeelsCooler: true, Difference: -9}

	rr := h.do(t, http.MethodGet, "/sensors/all", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeResponse(t, rr)
	assert.Equal(t, "C", body["unit"])
	assert.Contains(t, body, "indoor")
	assert.Contains(t, body, "outdoor")

	cmp, ok := body["comparison"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, cmp["outside_feels_cooler"])
}

func TestDeviceRename(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/mqtt/devices/rename", map[string]any{
		"from": "0x1234", "to": "office-sensor",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, h.bridge.renamed, 1)
	assert.Equal(t, [2]string{"0x1234", "office-sensor"}, h.bridge.renamed[0])
}

func TestDeviceRenameBridgeFailure(t *testing.T) {
	h := newTestHarness(t)
	h.bridge.commandErr = fmt.Errorf("bridge rejected device/rename: device does not exist")

	rr := h.do(t, http.MethodPost, "/mqtt/devices/rename", map[string]any{
		"from": "nope", "to": "office",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "does not exist")
}

func TestDeviceRenameValidation(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/mqtt/devices/rename", map[string]any{"from": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPermitJoin(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/mqtt/permit-join", map[string]any{"value": true, "time": 120})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, h.bridge.permitValue)
	assert.True(t, *h.bridge.permitValue)
}

func TestNotificationLifecycleOverHTTP(t *testing.T) {
	h := newTestHarness(t)

	// Register.
	rr := h.do(t, http.MethodPost, "/notifications", map[string]any{
		"type":     "shot",
		"name":     "tetanus",
		"due_date": h.now.Format("2006-01-02"),
		"data":     map[string]any{"clinic": "downtown"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	id := int64(decodeResponse(t, rr)["id"].(float64))

	// Not due until the type is enabled.
	rr = h.do(t, http.MethodGet, "/notifications/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0.0, decodeResponse(t, rr)["count"])

	rr = h.do(t, http.MethodPost, "/notifications/preferences/shot?enabled=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/notifications/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decodeResponse(t, rr)["count"])

	// Dismiss, then it disappears from the due set.
	rr = h.do(t, http.MethodPost, fmt.Sprintf("/notifications/%d/dismiss", id),
		map[string]any{"mode": "permanent"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/notifications/due", nil)
	assert.Equal(t, 0.0, decodeResponse(t, rr)["count"])

	// Undismiss brings it back.
	rr = h.do(t, http.MethodPost, fmt.Sprintf("/notifications/%d/undismiss", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/notifications/due", nil)
	assert.Equal(t, 1.0, decodeResponse(t, rr)["count"])

	// List and delete.
	rr = h.do(t, http.MethodGet, "/notifications?type=shot", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decodeResponse(t, rr)["count"])

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDueEndpointReadsWithoutPush(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/notifications", map[string]any{
		"type":     "shot",
		"name":     "tetanus",
		"due_date": h.now.Format("2006-01-02"),
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPost, "/notifications/preferences/shot?enabled=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	sub, err := h.bus.Subscribe(fanout.ChannelNotification, nil)
	require.NoError(t, err)

	defer sub.Close()

	// Polling the due set must not push anything to live viewers.
	rr = h.do(t, http.MethodGet, "/notifications/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decodeResponse(t, rr)["count"])

	select {
	case msg := <-sub.C:
		t.Fatalf("unexpected broadcast from a due read: %s", msg)
	default:
	}

	// An explicit check does push the batch.
	rr = h.do(t, http.MethodPost, "/notifications/check", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decodeResponse(t, rr)["count"])

	select {
	case msg := <-sub.C:
		assert.Contains(t, string(msg), `"type":"notifications"`)
		assert.Contains(t, string(msg), "tetanus")
	case <-time.After(time.Second):
		t.Fatal("expected a notification broadcast from the check endpoint")
	}
}

func TestNotificationCreateValidation(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/notifications", map[string]any{"type": "shot"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/notifications", map[string]any{
		"type": "shot", "name": "x", "due_date": "soon",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotificationDismissBadMode(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/notifications/1/dismiss", map[string]any{"mode": "forever"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreferencesListUnconfiguredCount(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodGet, "/notifications/preferences", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeResponse(t, rr)
	assert.Equal(t, 3.0, body["unconfigured_count"]) // seeded known types

	prefs, ok := body["preferences"].([]any)
	require.True(t, ok)
	assert.Len(t, prefs, 3)
}

func TestPreferenceSetRequiresEnabledParam(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/notifications/preferences/shot", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfigRoundTripStripsSaveID(t *testing.T) {
	h := newTestHarness(t)

	rr := h.do(t, http.MethodPost, "/config", map[string]any{
		"_saveId": "xyz", "theme": "dark",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeResponse(t, rr)
	assert.NotContains(t, body, "_saveId")
	assert.Equal(t, "dark", body["theme"])

	rr = h.do(t, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dark", decodeResponse(t, rr)["theme"])
}
