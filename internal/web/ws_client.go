package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single write to the peer may take.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before the read side
	// gives up on the connection.
	pongWait = 60 * time.Second

	// pingPeriod is the ping interval. It must stay under pongWait so
	// a healthy peer always answers in time.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Browsers only send small
	// control messages, so anything larger is a misbehaving peer.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outbound queue depth.
	sendBufferSize = 256
)

// WSClient is one browser connection. The hub owns registration; the
// client owns its two pump goroutines.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	// send is drained by writePump. Closed exactly once via Close.
	send chan *WSMessage

	mu     sync.Mutex
	closed bool
}

// NewWSClient wraps an upgraded connection for the given hub.
func NewWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:  hub,
		conn: conn,
		send: make(chan *WSMessage, sendBufferSize),
	}
}

// Send queues msg for delivery. A slow client never blocks the hub:
// when the buffer is full the message is dropped.
func (c *WSClient) Send(msg *WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.hub.log.Warn("Send buffer full, dropping message",
			"type", msg.Type)
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
	c.conn.Close()
}

// readPump reads frames off the connection and hands them to the hub,
// unregistering the client when the connection dies. One goroutine per
// client.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			// Normal closures are routine, only log the rest.
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {

				c.hub.log.Warn("WebSocket read error",
					"error", err)
			}

			return
		}

		c.hub.handleIncomingMessage(c, messageType, data)
	}
}

// writePump drains the send queue onto the connection and keeps the
// peer alive with periodic pings. One goroutine per client.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close drained the channel.
				c.conn.WriteMessage(
					websocket.CloseMessage, []byte{},
				)
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.hub.log.Warn("WebSocket marshal error",
					"error", err)
				continue
			}

			if err := c.conn.WriteMessage(
				websocket.TextMessage, data,
			); err != nil {
				c.hub.log.Debug("WebSocket write error",
					"error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
