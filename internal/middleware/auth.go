package middleware

import (
	"net/http"
	"strings"
	"time"

	"rentline-api/internal/service"
	"rentline-api/pkg/logger"
	"rentline-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthCookieName is the cookie carrying the bearer token between requests.
// The cookie value uses the same "bearer <token>" shape as the header.
const AuthCookieName = "authorization"

const identityContextKey = "identity"

// Auth resolves the authenticated identity from the Authorization header or,
// failing that, the auth cookie. The header wins when both are present. A
// successful resolution rewrites the cookie with the same token and expiry
// so later requests can rely on cookie-only transport; a failed one clears
// any stale cookie.
func Auth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			token, ok := bearerToken(c)
			if !ok {
				log.Debug("Missing bearer token")
				prometheus.RecordAuthError("missing_token")
				ClearAuthCookie(c)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			identity, err := auth.AuthByToken(c.Request().Context(), token)
			if err != nil {
				log.Debug("Token resolution failed", zap.Error(err))
				ClearAuthCookie(c)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			SetAuthCookie(c, identity.Token, identity.ExpiresAt)
			c.Set(identityContextKey, identity)
			return next(c)
		}
	}
}

// CurrentIdentity returns the identity resolved by the Auth middleware.
func CurrentIdentity(c echo.Context) (*service.Identity, bool) {
	identity, ok := c.Get(identityContextKey).(*service.Identity)
	return identity, ok
}

// SetAuthCookie (re-)writes the auth cookie with the given token and expiry.
func SetAuthCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     AuthCookieName,
		Value:    "bearer " + token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
	})
}

// ClearAuthCookie expires the auth cookie.
func ClearAuthCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// bearerToken extracts the token from the Authorization header, falling back
// to the auth cookie.
func bearerToken(c echo.Context) (string, bool) {
	authorization := c.Request().Header.Get(echo.HeaderAuthorization)
	if authorization == "" {
		if cookie, err := c.Cookie(AuthCookieName); err == nil {
			value, _ := decodeCookieValue(cookie.Value)
			authorization = value
		}
	}
	if authorization == "" {
		return "", false
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// decodeCookieValue undoes the URL escaping browsers may apply to the
// "bearer <token>" cookie value.
func decodeCookieValue(value string) (string, bool) {
	if strings.Contains(value, "%20") {
		return strings.ReplaceAll(value, "%20", " "), true
	}
	return value, true
}
