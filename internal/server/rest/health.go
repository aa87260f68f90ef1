package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func healthHandler(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: time.Now().UTC()})
			}
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC()})
	}
}
