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
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietlane/home-relay/pkg/fanout"
)

const (
	// keepaliveInterval paces the idle markers on the NDJSON stream so
	// proxies and clients can tell a quiet stream from a dead one.
	keepaliveInterval = time.Second

	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var keepaliveLine = []byte(`{"type":"keepalive"}` + "\n")

// handleConfigSubscribe streams the config channel as NDJSON: one initial
// connected line, then data lines as they happen, with keepalive markers
// when idle. The response stays open until the client goes away.
func (s *APIServer) handleConfigSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub, err := s.bus.Subscribe(fanout.ChannelConfig, map[string]string{"type": "connected"})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C:
			if !open {
				// Dropped as a slow consumer.
				return
			}

			// msg's backing array is shared with other subscribers, so
			// the newline is written separately rather than appended.
			if _, err := w.Write(msg); err != nil {
				return
			}

			if _, err := w.Write([]byte{'\n'}); err != nil {
				return
			}

			flusher.Flush()
		case <-keepalive.C:
			if _, err := w.Write(keepaliveLine); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func validChannel(name string) bool {
	switch name {
	case fanout.ChannelSensor, fanout.ChannelConfig, fanout.ChannelNotification, fanout.ChannelCommand:
		return true
	}

	return false
}

// handleWebSocket is the WebSocket variant of the push channel. The channel
// query parameter picks which broadcast channel to follow.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = fanout.ChannelConfig
	}

	if !validChannel(channel) {
		writeError(w, "Unknown channel", http.StatusBadRequest)
		return
	}

	// The relay serves LAN dashboards from arbitrary origins, matching the
	// allow-all CORS policy on the REST surface.
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	defer conn.Close()

	sub, err := s.bus.Subscribe(channel, map[string]string{"type": "connected"})
	if err != nil {
		s.logger.Error().Err(err).Str("channel", channel).Msg("WebSocket subscribe failed")
		return
	}

	defer sub.Close()

	s.logger.Debug().
		Str("channel", channel).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket viewer connected")

	// The read loop only exists to notice the client closing.
	clientGone := make(chan struct{})

	go func() {
		defer close(clientGone)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return
		case msg, open := <-sub.C:
			if !open {
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
