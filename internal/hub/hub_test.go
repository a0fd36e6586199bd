/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package hub

import (
	"errors"
	"testing"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
)

type fakeConn struct {
	sent   []dto.WSMessage
	failed bool
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.failed {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, v.(dto.WSMessage))
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestHub() *Hub {
	return NewHub(telemetry.NewMetricsService(), logger.NewMockClient())
}

func TestHub_ConnectDisconnect(t *testing.T) {
	h := newTestHub()
	a, b := &fakeConn{}, &fakeConn{}

	h.Connect(a)
	h.Connect(b)
	assert.Equal(t, 2, h.ConnectionCount())

	h.Disconnect(a)
	assert.Equal(t, 1, h.ConnectionCount())
	assert.True(t, a.closed)

	// repeated and unknown disconnects are no-ops
	h.Disconnect(a)
	h.Disconnect(&fakeConn{})
	assert.Equal(t, 1, h.ConnectionCount())
}

func TestHub_BroadcastAll_FailureIsolation(t *testing.T) {
	h := newTestHub()
	conns := []*fakeConn{{}, {failed: true}, {}, {}}
	for _, c := range conns {
		h.Connect(c)
	}

	h.BroadcastAll(dto.WSMessage{Type: dto.WSTypeSensorData})

	// all healthy connections received the message
	for i, c := range conns {
		if c.failed {
			continue
		}
		require.Len(t, c.sent, 1, "connection %d", i)
	}
	// the failing one was disconnected, and only it
	assert.Equal(t, 3, h.ConnectionCount())
	assert.True(t, conns[1].closed)
	assert.Equal(t, int64(1), h.metrics.SubscribersDropped.Count())
}

func TestHub_SendToOne_FailureDisconnects(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{failed: true}
	h.Connect(c)

	h.SendToOne(c, dto.WSMessage{Type: dto.WSTypePong})

	assert.Equal(t, 0, h.ConnectionCount())
	assert.True(t, c.closed)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	h := newTestHub()
	alerts, other := &fakeConn{}, &fakeConn{}
	h.Connect(alerts)
	h.Connect(other)
	h.Subscribe(alerts, []string{"alerts"})
	h.Subscribe(other, []string{"sensors"})

	msg := dto.WSMessage{Type: dto.WSTypeAnomalyAlert, Topic: "alerts"}
	h.BroadcastToTopic("alerts", msg)

	require.Len(t, alerts.sent, 1)
	assert.Empty(t, other.sent)

	h.BroadcastToTopic("unmatched", msg)
	assert.Len(t, alerts.sent, 1)
}

// topic matching for subscriptions is exact string comparison, not MQTT
// wildcard semantics
func TestHub_BroadcastToTopic_NoWildcardExpansion(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{}
	h.Connect(c)
	h.Subscribe(c, []string{"aqua/+/data"})

	h.BroadcastToTopic("aqua/S1/data", dto.WSMessage{Type: dto.WSTypeSensorData})
	assert.Empty(t, c.sent)

	h.BroadcastToTopic("aqua/+/data", dto.WSMessage{Type: dto.WSTypeSensorData})
	assert.Len(t, c.sent, 1)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{}
	h.Connect(c)

	h.Subscribe(c, []string{"a", "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, h.SubscriptionsOf(c))

	h.Unsubscribe(c, []string{"a", "never-subscribed"})
	assert.ElementsMatch(t, []string{"b"}, h.SubscriptionsOf(c))

	// operations on unknown connections are no-ops
	unknown := &fakeConn{}
	h.Subscribe(unknown, []string{"x"})
	h.Unsubscribe(unknown, []string{"x"})
	assert.Empty(t, h.SubscriptionsOf(unknown))
}
