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
	"errors"
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quietlane/home-relay/pkg/models"
	"github.com/quietlane/home-relay/pkg/sensor"
)

// convertUnit applies the display unit to a Celsius-pure engine state.
func convertUnit(st models.SensorState, unit string) models.SensorState {
	if unit != "F" || !st.Available {
		return st
	}

	st.Temperature = roundTenth(sensor.CelsiusToFahrenheit(st.Temperature))
	st.FeelsLike = roundTenth(sensor.CelsiusToFahrenheit(st.FeelsLike))

	return st
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *APIServer) handleSensorStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":    s.bridge.Connected(),
		"bridge_state": s.bridge.BridgeState(),
		"roles":        s.sensors.Roles(),
		"unit":         s.sensors.Unit(),
	})
}

func (s *APIServer) handleSensorDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": s.bridge.Connected(),
		"devices":   s.bridge.ClimateSensors(),
	})
}

func (s *APIServer) handleSensorConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indoor  *string `json:"indoor"`
		Outdoor *string `json:"outdoor"`
		Unit    *string `json:"unit"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.Indoor != nil {
		if err := s.sensors.SetRole(r.Context(), sensor.RoleIndoor, *req.Indoor); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.Outdoor != nil {
		if err := s.sensors.SetRole(r.Context(), sensor.RoleOutdoor, *req.Outdoor); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.Unit != nil {
		if err := s.sensors.SetUnit(*req.Unit); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"roles":  s.sensors.Roles(),
		"unit":   s.sensors.Unit(),
	})
}

func (s *APIServer) handleSensorRole(w http.ResponseWriter, r *http.Request) {
	role := mux.Vars(r)["role"]

	st, err := s.sensors.State(role)
	if err != nil {
		if errors.Is(err, sensor.ErrUnknownRole) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}

		writeError(w, err.Error(), http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, http.StatusOK, convertUnit(st, s.sensors.Unit()))
}

func (s *APIServer) handleSensorAll(w http.ResponseWriter, _ *http.Request) {
	unit := s.sensors.Unit()
	states := s.sensors.All()

	converted := make(map[string]models.SensorState, len(states))
	for role, st := range states {
		converted[role] = convertUnit(st, unit)
	}

	response := map[string]interface{}{
		"unit": unit,
	}

	for role, st := range converted {
		response[role] = st
	}

	if cmp := s.sensors.Comparison(); cmp != nil {
		if unit == "F" {
			// The difference is a delta, so only the scale factor applies.
			cmp.Difference = roundTenth(cmp.Difference * 9 / 5)
		}

		response["comparison"] = cmp
	}

	s.writeJSON(w, http.StatusOK, response)
}
