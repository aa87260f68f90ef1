package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
)

type MessageHandler struct {
	messages *services.MessageService
	logger   logging.Logger
}

func NewMessageHandler(messages *services.MessageService, logger logging.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

type sendRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Body        string `json:"body" validate:"required,max=4000"`
}

type ackRequest struct {
	At *time.Time `json:"at"`
}

// Send handles POST /api/v1/conversations/:id/messages.
func (h *MessageHandler) Send(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	m, err := h.messages.Send(c.Request().Context(), u, c.Param("id"), req.RecipientID, req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewMessageView(m))
}

// List handles GET /api/v1/conversations/:id/messages?limit=N&before=ID.
func (h *MessageHandler) List(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	list, err := h.messages.List(c.Request().Context(), u, c.Param("id"), c.QueryParam("before"), limit)
	if err != nil {
		return err
	}
	out := make([]MessageView, 0, len(list))
	for _, m := range list {
		out = append(out, NewMessageView(m))
	}
	return c.JSON(http.StatusOK, out)
}

// Delivered handles POST /api/v1/messages/:id/delivered.
func (h *MessageHandler) Delivered(c echo.Context) error {
	return h.ack(c, models.StatusDelivered)
}

// Read handles POST /api/v1/messages/:id/read.
func (h *MessageHandler) Read(c echo.Context) error {
	return h.ack(c, models.StatusRead)
}

func (h *MessageHandler) ack(c echo.Context, status models.DeliveryStatus) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req ackRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
		}
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	m, err := h.messages.Acknowledge(c.Request().Context(), u, c.Param("id"), status, at)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewMessageView(m))
}
