package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"rentline-api/internal/middleware"
	"rentline-api/internal/service"
	"rentline-api/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NotificationHandler exposes device subscription management and a test
// broadcast push.
type NotificationHandler struct {
	notifications *service.NotificationService
	users         *service.UserService
}

func NewNotificationHandler(notifications *service.NotificationService, users *service.UserService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, users: users}
}

func (h *NotificationHandler) Subscribe(c echo.Context) error {
	log := logger.FromContext(c)
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	subscription, err := readSubscription(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription payload"})
	}

	subID, err := h.notifications.Subscribe(c.Request().Context(), identity.User.ID, subscription)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Device subscribed", zap.String("subscription_id", subID.String()))
	return c.NoContent(http.StatusNoContent)
}

func (h *NotificationHandler) Unsubscribe(c echo.Context) error {
	if _, ok := middleware.CurrentIdentity(c); !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	subscription, err := readSubscription(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid subscription payload"})
	}

	if err := h.notifications.Unsubscribe(c.Request().Context(), subscription); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SayHello pushes a greeting to every known user's devices. Useful for
// verifying a deployment's push pipeline end to end.
func (h *NotificationHandler) SayHello(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	targets, err := h.users.AllUserIDs(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	payload := service.PushPayload{
		Title: "Hello!",
		Body:  "Greeting from " + identity.User.Email,
		URL:   "/",
	}
	if err := h.notifications.Dispatch(c.Request().Context(), payload, targets); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func readSubscription(c echo.Context) (json.RawMessage, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, echo.ErrBadRequest
	}
	return body, nil
}
