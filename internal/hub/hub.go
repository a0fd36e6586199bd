/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package hub

import (
	"sync"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"

	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
)

// Conn is the minimal surface the hub needs from a live subscriber
// connection. The websocket transport adapter satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub owns the live connection set and each connection's subscribed topics.
// Any send failure disconnects the failing connection and only that one, so
// one dead subscriber can never wedge a broadcast.
type Hub struct {
	lc      logger.LoggingClient
	metrics *telemetry.MetricsService

	mu    sync.RWMutex
	conns map[Conn]map[string]struct{}
}

func NewHub(metrics *telemetry.MetricsService, lc logger.LoggingClient) *Hub {
	return &Hub{
		lc:      lc,
		metrics: metrics,
		conns:   make(map[Conn]map[string]struct{}),
	}
}

// Connect registers conn with an empty subscription set.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	h.conns[conn] = make(map[string]struct{})
	total := len(h.conns)
	h.mu.Unlock()
	h.lc.Infof("Websocket client connected, %d active", total)
}

// Disconnect removes conn and closes it. Unknown connections are a no-op, so
// a send failure and a client-initiated close racing each other is safe.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	_, known := h.conns[conn]
	delete(h.conns, conn)
	total := len(h.conns)
	h.mu.Unlock()

	if !known {
		return
	}
	conn.Close()
	h.lc.Infof("Websocket client disconnected, %d active", total)
}

// Subscribe adds topics to conn's subscription set.
func (h *Hub) Subscribe(conn Conn, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, known := h.conns[conn]
	if !known {
		return
	}
	for _, topic := range topics {
		set[topic] = struct{}{}
	}
}

// Unsubscribe removes topics from conn's subscription set.
func (h *Hub) Unsubscribe(conn Conn, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, known := h.conns[conn]
	if !known {
		return
	}
	for _, topic := range topics {
		delete(set, topic)
	}
}

// SendToOne delivers msg to a single connection, disconnecting it on failure.
func (h *Hub) SendToOne(conn Conn, msg dto.WSMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.metrics.SubscribersDropped.Inc(1)
		h.lc.Warnf("Dropping websocket client, send failed: %v", err)
		h.Disconnect(conn)
	}
}

// BroadcastAll delivers msg to every connection. Sends happen outside the
// lock against a snapshot so a slow or failing connection never blocks
// membership changes.
func (h *Hub) BroadcastAll(msg dto.WSMessage) {
	for _, conn := range h.snapshot(nil) {
		h.SendToOne(conn, msg)
	}
}

// BroadcastToTopic delivers msg only to connections whose subscription set
// contains topic, compared as an exact string.
func (h *Hub) BroadcastToTopic(topic string, msg dto.WSMessage) {
	for _, conn := range h.snapshot(&topic) {
		h.SendToOne(conn, msg)
	}
}

func (h *Hub) snapshot(topic *string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Conn, 0, len(h.conns))
	for conn, topics := range h.conns {
		if topic != nil {
			if _, subscribed := topics[*topic]; !subscribed {
				continue
			}
		}
		out = append(out, conn)
	}
	return out
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SubscriptionsOf returns a copy of conn's subscribed topics.
func (h *Hub) SubscriptionsOf(conn Conn) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.conns[conn]
	out := make([]string, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	return out
}
