package handler

import (
	"net/http"
	"time"

	"rentline-api/internal/middleware"
	"rentline-api/internal/model"
	"rentline-api/internal/service"
	"rentline-api/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler exposes signup, login, logout and whoami.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Signup(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Role     string     `json:"role"`
		FullName *string    `json:"full_name,omitempty"`
		AgencyID *uuid.UUID `json:"agency_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse signup request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	if req.Role == "" {
		req.Role = model.RoleTenant
	}

	userID, err := h.auth.Signup(c.Request().Context(), req.Email, req.Password, req.Role, req.FullName, req.AgencyID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"user_id": userID})
}

func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	identity, err := h.auth.LoginByCredentials(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		middleware.ClearAuthCookie(c)
		return respondError(c, err)
	}

	middleware.SetAuthCookie(c, identity.Token, identity.ExpiresAt)
	return c.JSON(http.StatusOK, loginResponse(identity))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	// Stateless tokens: logout only clears the cookie, nothing is revoked
	// server-side.
	middleware.ClearAuthCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Whoami(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user_id":   identity.User.ID,
		"email":     identity.User.Email,
		"full_name": identity.User.FullName,
		"roles":     rolesResponse(identity.Roles),
	})
}

func loginResponse(identity *service.Identity) echo.Map {
	return echo.Map{
		"user_id":      identity.User.ID,
		"email":        identity.User.Email,
		"full_name":    identity.User.FullName,
		"roles":        rolesResponse(identity.Roles),
		"access_token": identity.Token,
		"expires_at":   identity.ExpiresAt.Format(time.RFC3339),
	}
}

func rolesResponse(roles []model.UserRole) []echo.Map {
	out := make([]echo.Map, 0, len(roles))
	for _, r := range roles {
		out = append(out, echo.Map{
			"role":      r.Role,
			"agency_id": r.AgencyID,
		})
	}
	return out
}
