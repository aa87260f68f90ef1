package ws

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/notify"
)

// Hub tracks live connections per user and pushes lifecycle events to them.
// It satisfies notify.Notifier so the delivery tracker can publish into it.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Connection]struct{}
	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]map[*Connection]struct{}),
		logger: logger.With("module", "ws"),
	}
}

func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.User.ID]
	if !ok {
		set = make(map[*Connection]struct{})
		h.conns[c.User.ID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.User.ID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.User.ID)
	}
}

// Connections returns how many sockets userID currently holds.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// SendToUser pushes frame to every connection of userID.
func (h *Hub) SendToUser(ctx context.Context, userID string, frame ServerFrame) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			h.logger.Debug(ctx, "push dropped", "conn_id", c.ID, "error", err)
		}
	}
}

// Notify routes new messages to the recipient and status changes to the
// sender.
func (h *Hub) Notify(ctx context.Context, e notify.Event) error {
	ev := e
	switch e.Type {
	case notify.EventMessageCreated:
		h.SendToUser(ctx, e.RecipientID, ServerFrame{Type: FrameMessage, Message: &ev})
	case notify.EventStatusChanged:
		h.SendToUser(ctx, e.SenderID, ServerFrame{Type: FrameStatus, Message: &ev})
	}
	return nil
}

// Shutdown closes every connection with code (1001 on server stop).
func (h *Hub) Shutdown(code int, reason string) {
	h.mu.Lock()
	all := h.conns
	h.conns = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.Close(code, reason)
		}
	}
}
