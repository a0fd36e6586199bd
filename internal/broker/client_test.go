/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package broker

import (
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var _ MQTT.Message = (*fakeMessage)(nil)

type fakeToken struct {
	err     error
	release <-chan struct{}
}

func (t *fakeToken) Wait() bool {
	if t.release != nil {
		<-t.release
	}
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.Wait() }

func (t *fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func (t *fakeToken) Error() error { return t.err }

// fakePahoClient mimics the paho session handshake: Connect fires the
// OnConnect hook asynchronously and keeps the caller parked on the token
// until the test releases it.
type fakePahoClient struct {
	opts           *MQTT.ClientOptions
	releaseConnect chan struct{}

	mu        sync.Mutex
	published []string
}

func (f *fakePahoClient) Connect() MQTT.Token {
	go f.opts.OnConnect(f)
	return &fakeToken{release: f.releaseConnect}
}

func (f *fakePahoClient) Publish(topic string, _ byte, _ bool, _ interface{}) MQTT.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return &fakeToken{}
}

func (f *fakePahoClient) Subscribe(string, byte, MQTT.MessageHandler) MQTT.Token {
	return &fakeToken{}
}

func (f *fakePahoClient) SubscribeMultiple(map[string]byte, MQTT.MessageHandler) MQTT.Token {
	return &fakeToken{}
}

func (f *fakePahoClient) Unsubscribe(...string) MQTT.Token          { return &fakeToken{} }
func (f *fakePahoClient) AddRoute(string, MQTT.MessageHandler)      {}
func (f *fakePahoClient) IsConnected() bool                         { return true }
func (f *fakePahoClient) IsConnectionOpen() bool                    { return true }
func (f *fakePahoClient) Disconnect(uint)                           {}
func (f *fakePahoClient) OptionsReader() MQTT.ClientOptionsReader   { return MQTT.ClientOptionsReader{} }

var _ MQTT.Client = (*fakePahoClient)(nil)

func (f *fakePahoClient) publishedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func newTestClient() *Client {
	cfg := config.MqttConfig{
		Scheme: "tcp", BrokerHost: "localhost", BrokerPort: 1883,
		ClientId: "test", QoS: 1, KeepAliveSeconds: 60,
		Topics: []string{"aqua/sensors/+/data"},
	}
	return NewClient(cfg, telemetry.NewMetricsService(), logger.NewMockClient())
}

func TestClient_RegisterHandler_LastWriterWins(t *testing.T) {
	c := newTestClient()
	var invoked []string

	c.RegisterHandler("aqua/sensors/+/data", func(topic string, _ dto.Reading) error {
		invoked = append(invoked, "first")
		return nil
	})
	c.RegisterHandler("aqua/sensors/+/data", func(topic string, _ dto.Reading) error {
		invoked = append(invoked, "second")
		return nil
	})

	c.Dispatch("aqua/sensors/S1/data", dto.Reading{SensorId: "S1"})
	assert.Equal(t, []string{"second"}, invoked)
}

func TestClient_Dispatch_MultiMatchFanOut(t *testing.T) {
	c := newTestClient()
	var invoked []string

	c.RegisterHandler("aqua/sensors/+/data", func(string, dto.Reading) error {
		invoked = append(invoked, "plus")
		return nil
	})
	c.RegisterHandler("aqua/#", func(string, dto.Reading) error {
		invoked = append(invoked, "hash")
		return nil
	})
	c.RegisterHandler("aqua/alerts/#", func(string, dto.Reading) error {
		invoked = append(invoked, "alerts")
		return nil
	})

	c.Dispatch("aqua/sensors/S1/data", dto.Reading{SensorId: "S1"})
	// both matching handlers ran, non-matching one did not
	assert.ElementsMatch(t, []string{"plus", "hash"}, invoked)
}

func TestClient_Dispatch_HandlerFaultIsolation(t *testing.T) {
	c := newTestClient()
	delivered := 0

	c.RegisterHandler("aqua/sensors/+/data", func(string, dto.Reading) error {
		panic("handler bug")
	})
	c.RegisterHandler("aqua/sensors/S1/data", func(string, dto.Reading) error {
		return errors.New("handler error")
	})
	c.RegisterHandler("aqua/#", func(string, dto.Reading) error {
		delivered++
		return nil
	})

	c.Dispatch("aqua/sensors/S1/data", dto.Reading{SensorId: "S1"})

	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(2), c.metrics.HandlerFaults.Count())
}

func TestClient_Route_DecodeFailureIsContained(t *testing.T) {
	c := newTestClient()
	delivered := 0
	c.RegisterHandler("aqua/sensors/+/data", func(string, dto.Reading) error {
		delivered++
		return nil
	})

	c.route(nil, &fakeMessage{topic: "aqua/sensors/S1/data", payload: []byte("{not json")})
	c.route(nil, &fakeMessage{topic: "aqua/sensors/S1/data", payload: []byte(`{"sensor_id":"S1","value":1.5,"unexpected":true}`)})
	c.route(nil, &fakeMessage{topic: "aqua/sensors/S1/data", payload: []byte(`{"value":1.5}`)})

	assert.Equal(t, 0, delivered)
	assert.Equal(t, int64(3), c.metrics.DecodeErrors.Count())
	assert.Equal(t, int64(3), c.metrics.MessagesReceived.Count())

	// a good message after the bad ones still flows
	c.route(nil, &fakeMessage{topic: "aqua/sensors/S1/data", payload: []byte(`{"sensor_id":"S1","value":1.5}`)})
	assert.Equal(t, 1, delivered)
}

func TestClient_Route_FillsMissingTimestamp(t *testing.T) {
	c := newTestClient()
	var got dto.Reading
	c.RegisterHandler("aqua/sensors/+/data", func(_ string, reading dto.Reading) error {
		got = reading
		return nil
	})

	c.route(nil, &fakeMessage{topic: "aqua/sensors/S1/data", payload: []byte(`{"sensor_id":"S1","value":42.0}`)})

	require.Equal(t, "S1", got.SensorId)
	assert.WithinDuration(t, time.Now().UTC(), got.Timestamp, 5*time.Second)
}

// a Publish racing the connect handshake must degrade, never crash: the
// OnConnect hook reports connected while Connect still waits on its token
func TestClient_Publish_DuringConnectHandshake(t *testing.T) {
	c := newTestClient()
	fake := &fakePahoClient{releaseConnect: make(chan struct{})}
	c.newClient = func(opts *MQTT.ClientOptions) MQTT.Client {
		fake.opts = opts
		return fake
	}

	var connectErr error
	connectDone := make(chan struct{})
	go func() {
		defer close(connectDone)
		connectErr = c.Connect()
	}()

	require.Eventually(t, c.IsConnected, 2*time.Second, time.Millisecond)

	assert.NotPanics(t, func() {
		ok := c.Publish("aqua/sensors/S1/data", dto.Reading{SensorId: "S1"}, 1, false)
		assert.True(t, ok)
	})
	assert.Equal(t, []string{"aqua/sensors/S1/data"}, fake.publishedTopics())

	close(fake.releaseConnect)
	<-connectDone
	assert.NoError(t, connectErr)
	assert.True(t, c.IsConnected())
}

func TestClient_Publish_NotConnected(t *testing.T) {
	c := newTestClient()
	ok := c.Publish("aqua/sensors/S1/data", dto.Reading{SensorId: "S1"}, 1, false)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.metrics.PublishErrors.Count())
}

func TestClient_Disconnect_NeverConnected(t *testing.T) {
	c := newTestClient()
	assert.NotPanics(t, func() {
		c.Disconnect()
		c.Disconnect()
	})
	assert.False(t, c.IsConnected())
}
