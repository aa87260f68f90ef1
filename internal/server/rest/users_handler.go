package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	users  *services.UserService
	logger logging.Logger
}

func NewUserHandler(users *services.UserService, logger logging.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type registerRequest struct {
	UserName   string `json:"username" validate:"required,username"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8"`
	IsProvider bool   `json:"is_provider"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Register handles POST /api/v1/auth/register.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.users.Register(c.Request().Context(), services.Registration{
		UserName:   req.UserName,
		Email:      req.Email,
		Password:   req.Password,
		IsProvider: req.IsProvider,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newUserView(u))
}

// Login handles POST /api/v1/auth/login with a form-encoded body.
func (h *UserHandler) Login(c echo.Context) error {
	userName := c.FormValue("username")
	password := c.FormValue("password")
	if userName == "" || password == "" {
		return unauthorized(c)
	}

	tok, err := h.users.Login(c.Request().Context(), userName, password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newUserView(u))
}

// Deactivate handles POST /api/v1/users/me/deactivate.
func (h *UserHandler) Deactivate(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.users.Deactivate(c.Request().Context(), u.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
