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

package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlane/home-relay/pkg/logger"
)

func TestSubscribeDeliversInitialMessageFirst(t *testing.T) {
	bus := New(logger.NewTestLogger())

	sub, err := bus.Subscribe(ChannelConfig, map[string]string{"type": "connected"})
	require.NoError(t, err)

	defer sub.Close()

	bus.Broadcast(ChannelConfig, map[string]string{"type": "config-updated"})

	var first map[string]string

	require.NoError(t, json.Unmarshal(<-sub.C, &first))
	assert.Equal(t, "connected", first["type"])

	var second map[string]string

	require.NoError(t, json.Unmarshal(<-sub.C, &second))
	assert.Equal(t, "config-updated", second["type"])
}

func TestBroadcastDropsSlowSubscriber(t *testing.T) {
	bus := New(logger.NewTestLogger())

	slow, err := bus.Subscribe(ChannelSensor, nil)
	require.NoError(t, err)

	healthy, err := bus.Subscribe(ChannelSensor, nil)
	require.NoError(t, err)

	defer healthy.Close()

	start := time.Now()

	// The healthy subscriber drains after every broadcast so it can never
	// fall behind; the slow one never reads at all.
	received := 0

	for i := 0; i < 100; i++ {
		bus.Broadcast(ChannelSensor, map[string]int{"seq": i})

		msg, open := <-healthy.C
		require.True(t, open, "healthy subscriber dropped")
		require.Contains(t, string(msg), "seq")

		received++
	}

	// Non-blocking policy: 100 broadcasts against a full queue must not stall.
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, 100, received)
	assert.Equal(t, 1, bus.SubscriberCount(ChannelSensor))

	// The slow subscriber's queue is closed on removal.
	drained := 0

	for range slow.C {
		drained++
	}

	assert.Equal(t, DefaultQueueSize, drained)
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := New(logger.NewTestLogger())

	sub, err := bus.Subscribe(ChannelNotification, nil)
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.SubscriberCount(ChannelNotification))

	// Broadcasting after removal must not panic or deliver.
	bus.Broadcast(ChannelNotification, map[string]string{"type": "notifications"})

	_, open := <-sub.C
	assert.False(t, open)
}

func TestBroadcastReachesAllChannelsIndependently(t *testing.T) {
	bus := New(logger.NewTestLogger())

	sensorSub, err := bus.Subscribe(ChannelSensor, nil)
	require.NoError(t, err)

	defer sensorSub.Close()

	configSub, err := bus.Subscribe(ChannelConfig, nil)
	require.NoError(t, err)

	defer configSub.Close()

	bus.Broadcast(ChannelSensor, map[string]string{"role": "indoor"})

	select {
	case msg := <-sensorSub.C:
		assert.Contains(t, string(msg), "indoor")
	case <-time.After(time.Second):
		t.Fatal("sensor subscriber did not receive broadcast")
	}

	select {
	case <-configSub.C:
		t.Fatal("config subscriber received a sensor broadcast")
	default:
	}
}
