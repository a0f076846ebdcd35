package rpc

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 64 << 10
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// WSHandler serves the dispatcher over WebSocket. Every text frame is a
// request; its response is written back on the same connection.
type WSHandler struct {
	d       *Dispatcher
	log     *logger.Entry
	clients atomic.Int64
}

// NewWSHandler creates the handler.
func NewWSHandler(d *Dispatcher) *WSHandler {
	return &WSHandler{d: d, log: logger.WithComponent("rpc-ws")}
}

// Clients returns the number of open connections.
func (h *WSHandler) Clients() int64 { return h.clients.Load() }

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	n := h.clients.Add(1)
	h.log.WithFields(logger.Fields{"remote": r.RemoteAddr, "clients": n}).Info("ws client connected")

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		h:    h,
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	go c.writePump(cancel)
	c.readPump(ctx)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	h    *WSHandler
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		close(c.send)
		n := c.h.clients.Add(-1)
		c.h.log.WithField("clients", n).Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.log.WithError(err).Debug("ws read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		_, body := c.h.d.DispatchJSON(ctx, msg)
		select {
		case c.send <- body:
		case <-ctx.Done():
			return
		}
	}
}

// writePump owns all writes on the connection. It closes the connection when
// send is closed or a write fails.
func (c *wsClient) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
