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

// Package fanout delivers messages from in-process producers to any number
// of live subscriber queues, one logical channel per consumer surface.
package fanout

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quietlane/home-relay/pkg/logger"
)

// Well-known channel names.
const (
	ChannelSensor       = "sensor"
	ChannelConfig       = "config"
	ChannelNotification = "notification"
	ChannelCommand      = "command"
)

// DefaultQueueSize bounds each subscriber's pending message queue. A
// subscriber that falls this far behind is dropped rather than slowing
// the broadcaster.
const DefaultQueueSize = 10

// Subscriber is one live viewer's bounded message queue. Read from C until
// it is closed; call Close when done to leave the channel.
type Subscriber struct {
	C <-chan []byte

	bus     *Bus
	channel string
	queue   chan []byte
	closed  bool
}

// Close removes the subscriber from its channel. Safe to call more than
// once and safe to race with a slow-consumer drop.
func (s *Subscriber) Close() {
	s.bus.remove(s.channel, s)
}

// Bus is a thread-safe broadcast hub. The zero value is not usable; use New.
type Bus struct {
	mu        sync.Mutex
	channels  map[string]map[*Subscriber]struct{}
	queueSize int
	log       logger.Logger
}

func New(log logger.Logger) *Bus {
	return &Bus{
		channels:  make(map[string]map[*Subscriber]struct{}),
		queueSize: DefaultQueueSize,
		log:       log,
	}
}

// Subscribe registers a new subscriber on the named channel. If initial is
// non-nil it is queued before any broadcast message, so the consumer sees
// it first.
func (b *Bus) Subscribe(channel string, initial any) (*Subscriber, error) {
	queue := make(chan []byte, b.queueSize)
	sub := &Subscriber{C: queue, bus: b, channel: channel, queue: queue}

	if initial != nil {
		encoded, err := json.Marshal(initial)
		if err != nil {
			return nil, fmt.Errorf("encode initial message: %w", err)
		}

		queue <- encoded
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		b.channels[channel] = subs
	}

	subs[sub] = struct{}{}

	b.log.Debug().
		Str("channel", channel).
		Int("subscribers", len(subs)).
		Msg("Fanout subscriber added")

	return sub, nil
}

// Broadcast encodes message once and enqueues it to every subscriber of the
// channel. The enqueue is non-blocking: a subscriber with a full queue is
// treated as dead and removed. Broadcast never blocks on a consumer.
func (b *Bus) Broadcast(channel string, message any) {
	encoded, err := json.Marshal(message)
	if err != nil {
		b.log.Error().Err(err).Str("channel", channel).Msg("Fanout message encode failed")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.channels[channel] {
		select {
		case sub.queue <- encoded:
		default:
			b.dropLocked(channel, sub)
		}
	}
}

// SubscriberCount reports the current number of subscribers on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.channels[channel])
}

func (b *Bus) remove(channel string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.channels[channel][sub]; !ok {
		return
	}

	b.dropLocked(channel, sub)
}

// dropLocked unregisters a subscriber and closes its queue. Caller holds b.mu.
func (b *Bus) dropLocked(channel string, sub *Subscriber) {
	if sub.closed {
		return
	}

	sub.closed = true

	delete(b.channels[channel], sub)
	close(sub.queue)

	b.log.Debug().
		Str("channel", channel).
		Int("subscribers", len(b.channels[channel])).
		Msg("Fanout subscriber removed")
}
