// Package ws bridges the line protocol onto WebSocket: each inbound text
// message is one command line, each outbound line is one text message.
package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collabsheet/sheet-service/internal/service"
)

// WSHandler upgrades HTTP requests and pumps the protocol.
type WSHandler struct {
	logger     *slog.Logger
	coord      *service.Coordinator
	queueDepth int
	upgrader   websocket.Upgrader
}

// NewWSHandler builds the bridge over the shared coordinator.
func NewWSHandler(logger *slog.Logger, coord *service.Coordinator, queueDepth int) *WSHandler {
	return &WSHandler{
		logger:     logger,
		coord:      coord,
		queueDepth: queueDepth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}

	cl := newWSClient(ws, h.queueDepth)
	defer func() {
		h.coord.Detach(cl)
		cl.Close()
	}()

	h.logger.Info("ws opened", "conn_id", cl.ID(), "remote", cl.RemoteAddr())

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		// One message carries one line; tolerate CRLF framing like the
		// TCP surface does.
		line := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r", ""), "\n")
		h.coord.Dispatch(cl, line)
	}
}

// wsClient adapts a websocket connection to the registry client
// contract: identified, non-blocking FIFO sends, idempotent close.
type wsClient struct {
	id     uuid.UUID
	ws     *websocket.Conn
	sendCh chan string

	closeOnce sync.Once
	done      chan struct{}
	dropped   atomic.Uint64
}

func newWSClient(ws *websocket.Conn, queueDepth int) *wsClient {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	c := &wsClient{
		id:     uuid.New(),
		ws:     ws,
		sendCh: make(chan string, queueDepth),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *wsClient) ID() uuid.UUID      { return c.id }
func (c *wsClient) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *wsClient) Send(msg string) {
	select {
	case <-c.done:
		c.dropped.Add(1)
		return
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
		c.dropped.Add(1)
	}
}

func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *wsClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				c.Close()
				return
			}
		}
	}
}
