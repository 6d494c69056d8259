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

// Package bridge maintains the connection to the Zigbee gateway's MQTT
// broker: device topic subscriptions, the bridge management topics, and
// correlated request/response over the transport.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

var (
	// ErrNotConnected is returned for operations that need a live broker
	// connection.
	ErrNotConnected = errors.New("mqtt broker not connected")
	// ErrRequestTimeout is returned when the bridge does not answer a
	// correlated request in time.
	ErrRequestTimeout = errors.New("bridge request timed out")
)

// transactionIDLength truncates the uuid used as correlation id; the bridge
// echoes it back verbatim, so short ids are fine and keep payloads small.
const transactionIDLength = 8

// DeviceMessageHandler receives raw payloads published by a followed device.
type DeviceMessageHandler func(device string, payload []byte)

// Client wraps the paho MQTT client with the relay's connection policy:
// fixed-interval reconnect, one log line per outage, and subscriptions that
// survive reconnects.
type Client struct {
	cfg models.MQTTConfig
	log logger.Logger
	bus *fanout.Bus

	// newClient is the paho constructor, replaceable in tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mqtt mqtt.Client
	lost chan error

	mu            sync.Mutex
	connected     bool
	loggedFailure bool
	deviceSubs    map[string]int
	pending       map[string]chan json.RawMessage
	onDevice      DeviceMessageHandler

	registry registry
}

// New builds a bridge client. Call Run to start the connection loop and
// OnDeviceMessage before Run to receive device payloads.
func New(cfg models.MQTTConfig, bus *fanout.Bus, log logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		newClient:  mqtt.NewClient,
		lost:       make(chan error, 1),
		deviceSubs: make(map[string]int),
		pending:    make(map[string]chan json.RawMessage),
	}
}

// OnDeviceMessage registers the consumer for device topic payloads.
func (c *Client) OnDeviceMessage(handler DeviceMessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onDevice = handler
}

// Run connects to the broker and keeps the connection alive, retrying at a
// fixed interval. It returns when the context is canceled. A broker outage
// produces one warning when it starts and one info line when it ends, not a
// line per attempt.
func (c *Client) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port)).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case c.lost <- err:
			default:
			}
		})

	c.mqtt = c.newClient(opts)

	for {
		if err := c.connectOnce(); err != nil {
			c.noteOutage(err)
		} else {
			select {
			case <-ctx.Done():
				c.mqtt.Disconnect(250)
				return ctx.Err()
			case err := <-c.lost:
				c.setConnected(false)
				c.noteOutage(err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval.Duration()):
		}
	}
}

func (c *Client) connectOnce() error {
	token := c.mqtt.Connect()
	token.Wait()

	return token.Error()
}

// noteOutage logs the first failure of an outage and suppresses the rest.
func (c *Client) noteOutage(err error) {
	c.mu.Lock()
	logged := c.loggedFailure
	c.loggedFailure = true
	c.mu.Unlock()

	if !logged {
		c.log.Warn().Err(err).
			Str("host", c.cfg.Host).
			Int("port", c.cfg.Port).
			Dur("retry_interval", c.cfg.ReconnectInterval.Duration()).
			Msg("MQTT broker unreachable, retrying")
	}
}

func (c *Client) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	c.mu.Unlock()
}

// handleConnect runs on every (re)connect: it reasserts the management
// subscriptions and every device subscription taken while disconnected.
func (c *Client) handleConnect(client mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	c.loggedFailure = false

	devices := make([]string, 0, len(c.deviceSubs))
	for name := range c.deviceSubs {
		devices = append(devices, name)
	}
	c.mu.Unlock()

	c.log.Info().
		Str("host", c.cfg.Host).
		Int("port", c.cfg.Port).
		Str("base_topic", c.cfg.BaseTopic).
		Msg("Connected to MQTT broker")

	management := map[string]mqtt.MessageHandler{
		c.topic("bridge/devices"):    c.handleBridgeDevices,
		c.topic("bridge/info"):       c.handleBridgeInfo,
		c.topic("bridge/state"):      c.handleBridgeState,
		c.topic("bridge/event"):      c.handleBridgeEvent,
		c.topic("bridge/response/#"): c.handleBridgeResponse,
	}

	for topic, handler := range management {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			c.log.Error().Err(token.Error()).Str("topic", topic).Msg("Management subscription failed")
		}
	}

	for _, name := range devices {
		c.subscribeDeviceTopic(name)
	}

	// The device list is retained, but a fresh request covers brokers that
	// dropped the retained copy and picks up changes missed while offline.
	c.requestDeviceList()
}

func (c *Client) topic(suffix string) string {
	return c.cfg.BaseTopic + "/" + suffix
}

// requestDeviceList asks the gateway to republish its device list. Fired
// on connect and when join/interview activity makes the cached list stale.
func (c *Client) requestDeviceList() {
	topic := c.topic("bridge/request/devices")
	if token := c.mqtt.Publish(topic, 0, false, []byte("{}")); token.Wait() && token.Error() != nil {
		c.log.Warn().Err(token.Error()).Msg("Device list request failed")
	}
}

// SubscribeDevice starts following a device's topic. Safe to call while
// disconnected; the subscription is taken on the next connect. Calls are
// refcounted so two roles can share one device.
func (c *Client) SubscribeDevice(name string) {
	c.mu.Lock()
	c.deviceSubs[name]++
	first := c.deviceSubs[name] == 1
	connected := c.connected
	c.mu.Unlock()

	if first && connected {
		c.subscribeDeviceTopic(name)
	}
}

// subscribeDeviceTopic takes the actual broker subscription and asks the
// device for its current state, since sensor topics are not retained.
func (c *Client) subscribeDeviceTopic(name string) {
	topic := c.topic(name)

	if token := c.mqtt.Subscribe(topic, 0, c.handleDeviceMessage); token.Wait() && token.Error() != nil {
		c.log.Error().Err(token.Error()).Str("device", name).Msg("Device subscription failed")
		return
	}

	c.mqtt.Publish(topic+"/get", 0, false, []byte(`{"state": ""}`))

	c.log.Debug().Str("device", name).Msg("Following device")
}

// UnsubscribeDevice stops following a device once no role needs it.
func (c *Client) UnsubscribeDevice(name string) {
	c.mu.Lock()

	if c.deviceSubs[name] == 0 {
		c.mu.Unlock()
		return
	}

	c.deviceSubs[name]--
	last := c.deviceSubs[name] == 0

	if last {
		delete(c.deviceSubs, name)
	}

	connected := c.connected
	c.mu.Unlock()

	if last && connected {
		c.mqtt.Unsubscribe(c.topic(name))
	}
}

func (c *Client) handleDeviceMessage(_ mqtt.Client, msg mqtt.Message) {
	device := strings.TrimPrefix(msg.Topic(), c.cfg.BaseTopic+"/")

	c.mu.Lock()
	handler := c.onDevice
	c.mu.Unlock()

	if handler != nil {
		handler(device, msg.Payload())
	}
}

// Publish sends a payload to a topic under the base topic.
func (c *Client) Publish(suffix string, payload []byte) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	token := c.mqtt.Publish(c.topic(suffix), 0, false, payload)
	token.Wait()

	return token.Error()
}

// Request publishes a bridge management request with a correlation id and
// waits for the matching response. The body must be a JSON object; the
// transaction field is added to it. Replies arriving after the deadline are
// discarded.
func (c *Client) Request(ctx context.Context, op string, body map[string]any) (json.RawMessage, error) {
	c.mu.Lock()

	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	txn := uuid.NewString()[:transactionIDLength]
	reply := make(chan json.RawMessage, 1)
	c.pending[txn] = reply

	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, txn)
		c.mu.Unlock()
	}()

	if body == nil {
		body = map[string]any{}
	}

	body["transaction"] = txn

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode bridge request: %w", err)
	}

	token := c.mqtt.Publish(c.topic("bridge/request/"+op), 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish bridge request: %w", token.Error())
	}

	timeout := time.NewTimer(c.cfg.RequestTimeout.Duration())
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, op)
	case resp := <-reply:
		return resp, nil
	}
}

func (c *Client) handleBridgeResponse(_ mqtt.Client, msg mqtt.Message) {
	var envelope struct {
		Transaction string `json:"transaction"`
	}

	if err := json.Unmarshal(msg.Payload(), &envelope); err != nil || envelope.Transaction == "" {
		return
	}

	c.mu.Lock()
	reply, ok := c.pending[envelope.Transaction]
	c.mu.Unlock()

	if !ok {
		// Late or foreign reply; nobody is waiting.
		c.log.Debug().Str("transaction", envelope.Transaction).Msg("Discarding unmatched bridge response")
		return
	}

	select {
	case reply <- json.RawMessage(append([]byte(nil), msg.Payload()...)):
	default:
	}
}
