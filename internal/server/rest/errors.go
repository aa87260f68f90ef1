package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// unauthorized is the single client-facing rejection for every credential
// and token failure.
func unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, common.BearerScheme)
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
}

// newErrorHandler maps service errors to status codes. Internal details are
// logged and never returned.
func newErrorHandler(logger logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		var (
			status = http.StatusInternalServerError
			body   = errorResponse{Error: "internal error"}
			he     *echo.HTTPError
			ve     ValidationError
		)
		switch {
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			} else {
				body.Error = http.StatusText(he.Code)
			}
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			body = errorResponse{Error: "validation failed", Fields: ve.Errors}
		case errors.Is(err, common.ErrorUnauthorized):
			_ = unauthorized(c)
			return
		case errors.Is(err, common.ErrorValidation):
			status = http.StatusBadRequest
			body.Error = "invalid request"
		case errors.Is(err, common.ErrorAlreadyExists):
			status = http.StatusConflict
			body.Error = "already exists"
		case errors.Is(err, common.ErrorNotFound):
			status = http.StatusNotFound
			body.Error = "not found"
		case errors.Is(err, common.ErrorForbidden):
			status = http.StatusForbidden
			body.Error = "forbidden"
		case errors.Is(err, common.ErrStateTransition), errors.Is(err, delivery.ErrConcurrentUpdate):
			status = http.StatusConflict
			body.Error = "status not advanced"
		}

		if status >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed", "method", c.Request().Method,
				"path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error(ctx, "write error response", "error", err)
		}
	}
}
