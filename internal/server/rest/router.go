// Package rest is the HTTP boundary: registration, login, the protected user
// endpoints and the chat polling and acknowledgement API.
package rest

import (
	"net"
	"net/http"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type RouterConfig struct {
	Logger        logging.Logger
	Authenticator *auth.Authenticator
	Users         *services.UserService
	Messages      *services.MessageService
	LoginLimiter  *RateLimiter

	// WebSocket is mounted at GET /ws when set.
	WebSocket http.Handler

	// DB is pinged by /healthz when set.
	DB Pinger

	// TrustedProxies are the peers whose X-Forwarded-For is honoured. With
	// none, the client address is the TCP peer.
	TrustedProxies []*net.IPNet
}

func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	logger = logger.With("module", "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = newErrorHandler(logger)
	e.IPExtractor = ipExtractor(cfg.TrustedProxies)

	e.Use(middleware.Recover())
	e.Use(AccessLog(logger))

	authMW := NewAuthMiddleware(cfg.Authenticator, logger)
	userHandler := NewUserHandler(cfg.Users, logger)
	messageHandler := NewMessageHandler(cfg.Messages, logger)

	e.GET("/healthz", healthHandler(cfg.DB))

	v1 := e.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", userHandler.Register)
	if cfg.LoginLimiter != nil {
		authGroup.POST("/login", userHandler.Login, cfg.LoginLimiter.Middleware())
	} else {
		authGroup.POST("/login", userHandler.Login)
	}

	protected := v1.Group("", authMW.RequireAuth())
	protected.GET("/users/me", userHandler.Me)
	protected.POST("/users/me/deactivate", userHandler.Deactivate)
	protected.POST("/conversations/:id/messages", messageHandler.Send)
	protected.GET("/conversations/:id/messages", messageHandler.List)
	protected.POST("/messages/:id/delivered", messageHandler.Delivered)
	protected.POST("/messages/:id/read", messageHandler.Read)

	if cfg.WebSocket != nil {
		e.GET("/ws", echo.WrapHandler(cfg.WebSocket))
	}

	return e
}

func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
