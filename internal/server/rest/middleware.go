package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware is the request-scoped adapter over auth.Authenticator. The
// resolved identity lives in the request context for that request only.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	logger        logging.Logger
}

func NewAuthMiddleware(a *auth.Authenticator, logger logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{authenticator: a, logger: logger}
}

func (m *AuthMiddleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			user, err := m.authenticator.AuthenticateHeader(ctx, req.Header.Get(echo.HeaderAuthorization))
			if err != nil {
				var ae *auth.AuthenticationError
				if !errors.As(err, &ae) {
					m.logger.Error(ctx, "identity lookup failed", "error", err)
					return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
				}
				m.logger.Info(ctx, "request rejected", "reason", string(ae.Reason),
					"path", c.Path(), "remote_ip", c.RealIP())
				return unauthorized(c)
			}

			c.SetRequest(req.WithContext(auth.WithIdentity(ctx, user)))
			return next(c)
		}
	}
}

// currentUser returns the identity attached by RequireAuth.
func currentUser(c echo.Context) (*models.User, error) {
	u, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u, nil
}

// AccessLog logs one line per request.
func AccessLog(logger logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			logger.Info(req.Context(), "http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start).String(),
				"remote_ip", c.RealIP(),
			)
			return nil
		}
	}
}
