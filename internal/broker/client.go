/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	aquaErrors "aquawatch/common/errors"
	"aquawatch/common/telemetry"
)

const (
	// quiesce period granted to in-flight handler invocations on shutdown
	disconnectQuiesceMs = 250

	initialBackoff = 1 * time.Second
	maxBackoff     = 2 * time.Minute
)

// MessageHandler consumes one decoded reading delivered on a matching topic.
// A handler error is logged and counted; it never affects other handlers or
// subsequent messages.
type MessageHandler func(topic string, reading dto.Reading) error

// Client owns the MQTT session. It is the only component that speaks the wire
// transport: it subscribes to the configured topic patterns, decodes and
// validates inbound payloads, fans them out to all registered handlers whose
// pattern matches, and publishes outbound messages best-effort.
type Client struct {
	lc      logger.LoggingClient
	cfg     config.MqttConfig
	metrics *telemetry.MetricsService

	mqtt      MQTT.Client
	validate  *validator.Validate
	connected atomic.Bool

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	// factory seam so tests can substitute the paho client
	newClient func(opts *MQTT.ClientOptions) MQTT.Client
}

func NewClient(cfg config.MqttConfig, metrics *telemetry.MetricsService, lc logger.LoggingClient) *Client {
	return &Client{
		lc:        lc,
		cfg:       cfg,
		metrics:   metrics,
		validate:  validator.New(),
		handlers:  make(map[string]MessageHandler),
		newClient: MQTT.NewClient,
	}
}

// RegisterHandler registers handler for a topic pattern. Registering the same
// exact pattern string again replaces the previous handler; distinct patterns
// that both match one inbound topic are each invoked.
func (c *Client) RegisterHandler(pattern string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[pattern]; exists {
		c.lc.Infof("Replacing handler registered for topic pattern: %s", pattern)
	}
	c.handlers[pattern] = handler
	c.lc.Infof("Registered handler for topic pattern: %s", pattern)
}

// Connect establishes the broker session and subscribes to every configured
// topic pattern. On any failure the session is torn down so no subscription
// is left partially registered from the caller's perspective.
func (c *Client) Connect() aquaErrors.AquaError {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerAddress())
	opts.SetClientID(config.GenerateClientId(c.cfg.ClientId))
	opts.SetKeepAlive(time.Duration(c.cfg.KeepAliveSeconds) * time.Second)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxBackoff)
	opts.SetOrderMatters(true)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetOnConnectHandler(func(client MQTT.Client) {
		c.connected.Store(true)
		// re-subscribing after a reconnect is idempotent on the broker side
		if err := c.subscribeAll(client); err != nil {
			c.lc.Errorf("Failed to restore subscriptions after (re)connect: %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		c.connected.Store(false)
		c.lc.Errorf("Connection to MQTT broker lost: %v", err)
	})

	client := c.newClient(opts)
	// the session must be in place before the connect attempt starts: the
	// OnConnect hook flips the connected flag while this goroutine is still
	// waiting on the token, and a concurrent Publish that observes the flag
	// needs a client to publish on
	c.mqtt = client
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		c.connected.Store(false)
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeConnection,
			fmt.Sprintf("failed to connect to MQTT broker at %s: %v", c.cfg.BrokerAddress(), token.Error()))
	}

	c.connected.Store(true)
	c.lc.Infof("Connected to MQTT broker at %s", c.cfg.BrokerAddress())
	return nil
}

// ConnectWithRetry keeps attempting Connect with exponential backoff, a cap
// and jitter until it succeeds or ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) aquaErrors.AquaError {
	backoff := initialBackoff
	for {
		err := c.Connect()
		if err == nil {
			return nil
		}
		delay := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		c.lc.Warnf("MQTT connect failed, retrying in %v: %v", delay, err)
		select {
		case <-ctx.Done():
			return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeConnection,
				"gave up connecting to MQTT broker: "+ctx.Err().Error())
		case <-time.After(delay):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) subscribeAll(client MQTT.Client) error {
	var errs *multierror.Error
	for _, topic := range c.cfg.Topics {
		if token := client.Subscribe(topic, c.cfg.QoS, c.route); token.Wait() && token.Error() != nil {
			errs = multierror.Append(errs, fmt.Errorf("subscribe %s: %w", topic, token.Error()))
			continue
		}
		c.lc.Infof("Subscribed to topic: %s", topic)
	}
	return errs.ErrorOrNil()
}

// route is the single inbound entry point. One malformed payload or one
// faulty handler never stops delivery of the next message.
func (c *Client) route(_ MQTT.Client, msg MQTT.Message) {
	c.metrics.MessagesReceived.Inc(1)
	c.metrics.PayloadSize.Update(int64(len(msg.Payload())))

	reading, decodeErr := c.decode(msg.Payload())
	if decodeErr != nil {
		c.metrics.DecodeErrors.Inc(1)
		c.lc.Errorf("Dropping message on topic %s: %s", msg.Topic(), decodeErr.Message())
		return
	}

	c.Dispatch(msg.Topic(), reading)
}

// Dispatch invokes every registered handler whose pattern matches topic,
// each in isolation. Handlers run sequentially in deterministic (sorted
// pattern) order; all complete before the next inbound message is routed.
func (c *Client) Dispatch(topic string, reading dto.Reading) {
	c.mu.RLock()
	patterns := make([]string, 0, len(c.handlers))
	for pattern := range c.handlers {
		if TopicMatches(topic, pattern) {
			patterns = append(patterns, pattern)
		}
	}
	sort.Strings(patterns)
	matched := make([]MessageHandler, len(patterns))
	for i, pattern := range patterns {
		matched[i] = c.handlers[pattern]
	}
	c.mu.RUnlock()

	for i, handler := range matched {
		c.invoke(patterns[i], topic, handler, reading)
	}
}

func (c *Client) invoke(pattern string, topic string, handler MessageHandler, reading dto.Reading) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.HandlerFaults.Inc(1)
			c.lc.Errorf("Handler for pattern %s panicked on topic %s: %v", pattern, topic, r)
		}
	}()
	if err := handler(topic, reading); err != nil {
		c.metrics.HandlerFaults.Inc(1)
		c.lc.Errorf("Handler for pattern %s failed on topic %s: %v", pattern, topic, err)
	}
}

func (c *Client) decode(payload []byte) (dto.Reading, aquaErrors.AquaError) {
	var reading dto.Reading
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&reading); err != nil {
		return reading, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeDecode,
			fmt.Sprintf("invalid JSON payload: %v", err))
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}
	if err := c.validate.Struct(reading); err != nil {
		return reading, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeDecode,
			fmt.Sprintf("reading failed validation: %v", err))
	}
	return reading, nil
}

// Publish sends payload to topic. Publishing is best-effort telemetry, never
// control flow: failures are logged and reported via the return value only.
func (c *Client) Publish(topic string, payload interface{}, qos byte, retain bool) bool {
	if !c.IsConnected() {
		c.metrics.PublishErrors.Inc(1)
		c.lc.Errorf("Cannot publish to %s: not connected to MQTT broker", topic)
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		c.metrics.PublishErrors.Inc(1)
		c.lc.Errorf("Cannot publish to %s: marshalling failed: %v", topic, err)
		return false
	}
	if token := c.mqtt.Publish(topic, qos, retain, raw); token.Wait() && token.Error() != nil {
		c.metrics.PublishErrors.Inc(1)
		c.lc.Errorf("Failed to publish to %s: %v", topic, token.Error())
		return false
	}
	c.lc.Debugf("Published %d bytes to %s", len(raw), topic)
	return true
}

// Listen blocks until ctx is cancelled. Inbound messages are delivered by the
// session callbacks while this waits; on cancellation the client stops
// pulling new messages and Disconnect drains in-flight handler invocations
// for the quiesce period.
func (c *Client) Listen(ctx context.Context) {
	if !c.IsConnected() {
		c.lc.Error("Cannot listen: not connected to MQTT broker")
		return
	}
	<-ctx.Done()
	c.lc.Info("MQTT listener cancelled")
	c.Disconnect()
}

// Disconnect releases the session. Safe to call repeatedly or when never
// connected.
func (c *Client) Disconnect() {
	if c.mqtt != nil && c.connected.Load() {
		c.mqtt.Disconnect(disconnectQuiesceMs)
		c.lc.Info("Disconnected from MQTT broker")
	}
	c.connected.Store(false)
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}
