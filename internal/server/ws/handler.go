// Package ws serves the real-time chat channel over WebSocket. A connection
// is authenticated once, before the protocol upgrade, and stays bound to that
// identity until it closes.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/notify"
	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Messenger is the chat operations reachable from a socket.
type Messenger interface {
	Send(ctx context.Context, sender *models.User, conversationID, recipientID, body string) (*models.Message, error)
	Acknowledge(ctx context.Context, user *models.User, messageID string, status models.DeliveryStatus, at time.Time) (*models.Message, error)
}

type Handler struct {
	auth     Authenticator
	messages Messenger
	hub      *Hub
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHandler builds the /ws endpoint. With no allowedOrigins the upgrader
// accepts same-host origins only.
func NewHandler(a Authenticator, messages Messenger, hub *Hub, allowedOrigins []string, logger logging.Logger) *Handler {
	h := &Handler{
		auth:     a,
		messages: messages,
		hub:      hub,
		logger:   logger.With("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		}
	}
	return h
}

func tokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get(common.AccessTokenQueryParam)); t != "" {
		return t
	}
	token, err := auth.BearerToken(r.Header.Get(common.AuthorizationHeaderName))
	if err != nil {
		return ""
	}
	return token
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.auth.Authenticate(ctx, tokenFromRequest(r))
	if err != nil {
		var authErr *auth.AuthenticationError
		if errors.As(err, &authErr) {
			h.logger.Info(ctx, "websocket handshake refused", "reason", string(authErr.Reason), "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", common.BearerScheme)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error(ctx, "websocket handshake: authentication unavailable", "error", err)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn(ctx, "websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	conn := newConnection(user, socket, h.logger)
	h.hub.Register(conn)
	defer h.hub.Unregister(conn)

	conn.logger.Info(ctx, "websocket connected")
	conn.serve(ctx, h.handleFrame)
	conn.logger.Info(ctx, "websocket disconnected")
}

func (h *Handler) handleFrame(ctx context.Context, c *Connection, f ClientFrame) {
	var (
		m   *models.Message
		err error
		t   = notify.EventStatusChanged
	)

	switch f.Type {
	case FrameMessage:
		if f.ConversationID == "" || f.RecipientID == "" || f.Body == "" {
			_ = c.Send(ServerFrame{Type: FrameError, RequestID: f.RequestID, Error: "invalid_frame"})
			return
		}
		t = notify.EventMessageCreated
		m, err = h.messages.Send(ctx, c.User, f.ConversationID, f.RecipientID, f.Body)
	case FrameDelivered, FrameRead:
		if f.MessageID == "" {
			_ = c.Send(ServerFrame{Type: FrameError, RequestID: f.RequestID, Error: "invalid_frame"})
			return
		}
		var at time.Time
		if f.At != nil {
			at = *f.At
		}
		m, err = h.messages.Acknowledge(ctx, c.User, f.MessageID, models.DeliveryStatus(f.Type), at)
	default:
		_ = c.Send(ServerFrame{Type: FrameError, RequestID: f.RequestID, Error: "unknown_type"})
		return
	}

	if err != nil {
		code := errorCode(err)
		if code == "internal" {
			c.logger.Error(ctx, "websocket frame failed", "type", f.Type, "error", err)
		}
		_ = c.Send(ServerFrame{Type: FrameError, RequestID: f.RequestID, Error: code})
		return
	}

	ev := notify.NewEvent(t, m)
	_ = c.Send(ServerFrame{Type: FrameAck, RequestID: f.RequestID, Message: &ev})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return "invalid_request"
	case errors.Is(err, common.ErrorForbidden):
		return "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	case errors.Is(err, common.ErrStateTransition), errors.Is(err, delivery.ErrConcurrentUpdate):
		return "conflict"
	default:
		return "internal"
	}
}
