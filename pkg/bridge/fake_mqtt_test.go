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

package bridge

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

// fakeMessage is an inbound broker message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type publishedMessage struct {
	topic   string
	payload []byte
}

// fakeClient records subscriptions and publishes in place of a broker. An
// optional onPublish hook lets a test answer requests synchronously.
type fakeClient struct {
	mu         sync.Mutex
	subs       map[string]mqtt.MessageHandler
	unsubbed   []string
	published  []publishedMessage
	onPublish  func(topic string, payload []byte)
	connectErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) IsConnected() bool      { return true }
func (f *fakeClient) IsConnectionOpen() bool { return true }
func (f *fakeClient) Connect() mqtt.Token    { return &fakeToken{err: f.connectErr} }
func (f *fakeClient) Disconnect(uint)        {}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	data, _ := payload.([]byte)

	f.mu.Lock()
	f.published = append(f.published, publishedMessage{topic: topic, payload: data})
	hook := f.onPublish
	f.mu.Unlock()

	if hook != nil {
		hook(topic, data)
	}

	return &fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subs[topic] = callback

	return &fakeToken{}
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	for topic := range filters {
		f.subs[topic] = callback
	}

	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, topic := range topics {
		delete(f.subs, topic)

		f.unsubbed = append(f.unsubbed, topic)
	}

	return &fakeToken{}
}

func (f *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// deliver pushes a message through the handler subscribed to topic, using
// sub as the subscription key when wildcards are involved.
func (f *fakeClient) deliver(sub, topic string, payload []byte) bool {
	f.mu.Lock()
	handler, ok := f.subs[sub]
	f.mu.Unlock()

	if !ok {
		return false
	}

	handler(f, &fakeMessage{topic: topic, payload: payload})

	return true
}

func (f *fakeClient) subscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.subs))
	for topic := range f.subs {
		out = append(out, topic)
	}

	return out
}

func (f *fakeClient) publishedTo(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out [][]byte

	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p.payload)
		}
	}

	return out
}
