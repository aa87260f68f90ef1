package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 << 10
	sendBufferSize = 128
)

var errConnClosed = errors.New("connection closed")

// Connection is one authenticated socket. It is bound to User for its whole
// lifetime; the token is not re-checked after the handshake.
type Connection struct {
	ID   string
	User *models.User

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
	logger logging.Logger
}

func newConnection(user *models.User, ws *websocket.Conn, logger logging.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:     id,
		User:   user,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
		logger: logger.With("conn_id", id, "user_id", user.ID),
	}
}

// Send enqueues a frame. A client that cannot keep up is disconnected.
func (c *Connection) Send(frame ServerFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case <-c.closed:
		return errConnClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Close sends a close frame with code and tears the socket down. It is safe
// to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// serve runs the write loop in the background and the read loop on the
// calling goroutine until the peer goes away.
func (c *Connection) serve(ctx context.Context, handle func(context.Context, *Connection, ClientFrame)) {
	go c.writeLoop()
	defer c.Close(websocket.CloseNormalClosure, "")

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn(ctx, "websocket read failed", "error", err)
			}
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			_ = c.Send(ServerFrame{Type: FrameError, Error: "invalid_frame"})
			continue
		}
		handle(ctx, c, frame)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
