/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package router

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"aquawatch/common/dto"
	"aquawatch/internal/hub"
)

// wsConn adapts a gorilla connection to the hub's Conn interface. Writes are
// serialized because the hub may broadcast from the pipeline goroutine while
// the read loop answers pings.
type wsConn struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

var _ hub.Conn = (*wsConn)(nil)

func (r *Router) serveWebsocket(c echo.Context) error {
	if r.hub.ConnectionCount() >= r.cfg.Websocket.MaxConnections {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "connection limit reached")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  r.cfg.Websocket.ReadBufferSize,
		WriteBufferSize: r.cfg.Websocket.WriteBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	raw, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		r.lc.Errorf("Websocket upgrade failed: %v", err)
		return err
	}

	conn := &wsConn{id: uuid.New().String(), conn: raw}
	r.lc.Debugf("Websocket connection %s established from %s", conn.id, c.RealIP())
	r.hub.Connect(conn)
	r.hub.SendToOne(conn, dto.WSMessage{
		Type:      dto.WSTypeConnection,
		Message:   "Connected to aquawatch real-time feed",
		Timestamp: time.Now().UTC().UnixMilli(),
	})

	r.readLoop(conn, raw)
	r.hub.Disconnect(conn)
	r.lc.Debugf("Websocket connection %s closed", conn.id)
	return nil
}

// readLoop handles inbound client frames until the connection drops.
// Malformed frames are logged and ignored; the connection stays open.
func (r *Router) readLoop(conn *wsConn, raw *websocket.Conn) {
	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.lc.Debugf("Websocket read ended: %v", err)
			}
			return
		}

		var msg dto.WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.lc.Warnf("Ignoring malformed websocket frame: %v", err)
			continue
		}

		switch msg.Type {
		case dto.WSTypeSubscribe:
			r.hub.Subscribe(conn, msg.Topics)
			r.lc.Debugf("Websocket client subscribed to %v", msg.Topics)
		case dto.WSTypePing:
			r.hub.SendToOne(conn, dto.WSMessage{
				Type:      dto.WSTypePong,
				Timestamp: time.Now().UTC().UnixMilli(),
			})
		default:
			r.lc.Warnf("Ignoring websocket frame with unknown type: %s", msg.Type)
		}
	}
}
