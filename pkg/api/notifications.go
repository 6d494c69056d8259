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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quietlane/home-relay/pkg/models"
	"github.com/quietlane/home-relay/pkg/notify"
)

func (s *APIServer) handleNotificationCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    string          `json:"type"`
		Name    string          `json:"name"`
		DueDate string          `json:"due_date"`
		Data    json.RawMessage `json:"data"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.Type == "" || req.Name == "" || req.DueDate == "" {
		writeError(w, "type, name and due_date are required", http.StatusBadRequest)
		return
	}

	id, err := s.notifyStore.Upsert(r.Context(), req.Type, req.Name, req.DueDate, req.Data)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"id":     id,
	})
}

func (s *APIServer) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	events, err := s.notifyStore.ListEvents(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if events == nil {
		events = []models.NotificationEvent{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *APIServer) writeDue(w http.ResponseWriter, due []models.DueNotification, err error) {
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if due == nil {
		due = []models.DueNotification{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": due,
		"count":         len(due),
	})
}

// handleNotificationsDue is a pure read; nothing is pushed to viewers.
func (s *APIServer) handleNotificationsDue(w http.ResponseWriter, r *http.Request) {
	due, err := s.scheduler.Due(r.Context())
	s.writeDue(w, due, err)
}

// handleNotificationsCheck additionally broadcasts the batch, so a client
// can force the same push the periodic check would make.
func (s *APIServer) handleNotificationsCheck(w http.ResponseWriter, r *http.Request) {
	due, err := s.scheduler.CheckNow(r.Context())
	s.writeDue(w, due, err)
}

func notificationID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *APIServer) handleNotificationDelete(w http.ResponseWriter, r *http.Request) {
	err := s.notifyStore.DeleteEvent(r.Context(), notificationID(r))
	if errors.Is(err, notify.ErrNotFound) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleNotificationDismiss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  models.DismissMode `json:"mode"`
		Hours int                `json:"hours"`
	}

	// An empty body means the default dismissal.
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	if err := s.scheduler.DismissFor(r.Context(), notificationID(r), req.Mode, req.Hours); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleNotificationUndismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.notifyStore.Undismiss(r.Context(), notificationID(r)); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handlePreferencesList(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.notifyStore.TypePreferences(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	unconfigured, err := s.notifyStore.UnconfiguredCount(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if prefs == nil {
		prefs = []models.TypePreference{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"preferences":        prefs,
		"unconfigured_count": unconfigured,
	})
}

func (s *APIServer) handlePreferenceSet(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, "enabled query parameter must be true or false", http.StatusBadRequest)
		return
	}

	typ := mux.Vars(r)["type"]

	if err := s.notifyStore.SetTypeEnabled(r.Context(), typ, enabled); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"type":    typ,
		"enabled": enabled,
	})
}

func (s *APIServer) handlePreferenceDelete(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]

	if err := s.notifyStore.DeleteTypePreference(r.Context(), typ); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
