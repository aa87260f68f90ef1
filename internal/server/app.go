// Package server wires storage, authentication, the delivery tracker and the
// HTTP + WebSocket endpoint together and runs them until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/config"
	"github.com/dmitrijs2005/petkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/dmitrijs2005/petkeeper/internal/server/notify"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/petkeeper/internal/server/rest"
	"github.com/dmitrijs2005/petkeeper/internal/server/services"
	"github.com/dmitrijs2005/petkeeper/internal/server/ws"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *notify.RedisNotifier
	hub     *ws.Hub
	limiter *rest.RateLimiter
	http    *http.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	var rm repomanager.RepositoryManager
	if c.UsesMemoryStore() {
		logger.Warn(ctx, "using process-local storage; data is lost on restart")
		rm = repomanager.NewMemoryRepositoryManager()
	} else {
		db, err := sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		app.db = db

		rm = repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			app.close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}

	app.hub = ws.NewHub(logger)

	var external notify.Notifier = notify.NopNotifier{}
	if c.RedisURL != "" {
		rn, err := notify.NewRedisNotifier(ctx, c.RedisURL, notify.DefaultStream)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.redis = rn
		external = rn
	}

	creds := credentials.NewStore(rm.Users(app.db), credentials.Options{
		Cost:            c.BcryptCost,
		Workers:         c.HashWorkers,
		MaxSecretLength: c.MaxSecretLength,
	})
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(c.SecretKey),
		TTL:    c.AccessTokenValidityDuration,
	})
	authenticator := auth.NewAuthenticator(tokens, rm.Users(app.db))

	tracker := delivery.NewTracker(rm.Messages(app.db), delivery.Options{
		Policy:   delivery.Policy(c.ReadClampPolicy),
		Logger:   logger,
		Notifier: notify.Fanout{app.hub, external},
	})

	us := services.NewUserService(app.db, rm, creds, tokens, logger)
	ms := services.NewMessageService(app.db, rm, tracker, logger)

	proxies, err := c.TrustedProxyNets()
	if err != nil {
		app.close()
		return nil, err
	}
	app.limiter = rest.NewRateLimiter(c.LoginRatePerMinute, c.LoginRateBurst)

	rc := rest.RouterConfig{
		Logger:         logger,
		Authenticator:  authenticator,
		Users:          us,
		Messages:       ms,
		LoginLimiter:   app.limiter,
		WebSocket:      ws.NewHandler(authenticator, ms, app.hub, c.AllowedOrigins, logger),
		TrustedProxies: proxies,
	}
	if app.db != nil {
		rc.DB = app.db
	}

	app.http = &http.Server{
		Addr:              c.EndpointAddrHTTP,
		Handler:           rest.NewRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "http server listening", "addr", app.http.Addr)

	if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx)
	}()

	<-ctx.Done()
	app.logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.http.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown failed", "error", err)
	}
	// Hijacked sockets are not tracked by http.Server.
	app.hub.Shutdown(websocket.CloseGoingAway, "server shutting down")

	wg.Wait()
	app.close()
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close failed", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "db close failed", "error", err)
		}
	}
}
