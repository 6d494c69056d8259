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
	"net/http"
)

func (s *APIServer) handleMQTTDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": s.bridge.Connected(),
		"devices":   s.bridge.Devices(),
	})
}

func (s *APIServer) handleMQTTBridge(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": s.bridge.Connected(),
		"state":     s.bridge.BridgeState(),
		"info":      s.bridge.BridgeInfo(),
	})
}

func (s *APIServer) handleDeviceRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.From == "" || req.To == "" {
		writeError(w, "Both from and to are required", http.StatusBadRequest)
		return
	}

	if err := s.bridge.RenameDevice(r.Context(), req.From, req.To); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleDeviceRemove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Force bool   `json:"force"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.ID == "" {
		writeError(w, "Device id is required", http.StatusBadRequest)
		return
	}

	if err := s.bridge.RemoveDevice(r.Context(), req.ID, req.Force); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handlePermitJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value bool `json:"value"`
		Time  int  `json:"time"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.bridge.PermitJoin(r.Context(), req.Value, req.Time); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"value":  req.Value,
	})
}
