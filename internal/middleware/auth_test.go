package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rentline-api/internal/model"
	"rentline-api/internal/service"
	"rentline-api/pkg/database"
	"rentline-api/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

type authFixture struct {
	echo  *echo.Echo
	auth  *service.AuthService
	token string
	user  uuid.UUID
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:mw%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log := zap.NewNop()
	users := service.NewUserService(db, log)
	tokens := jwtutil.NewTokenService("test-secret", time.Hour, nil)
	auth := service.NewAuthService(users, tokens, log)

	ctx := context.Background()
	userID, err := auth.Signup(ctx, "alice@example.com", "s3cret", model.RoleTenant, nil, nil)
	require.NoError(t, err)
	identity, err := auth.LoginByCredentials(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, identity.User.ID.String())
	}, Auth(auth))

	return &authFixture{echo: e, auth: auth, token: identity.Token, user: userID}
}

func (f *authFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func authCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	res := http.Response{Header: rec.Header()}
	for _, cookie := range res.Cookies() {
		if cookie.Name == AuthCookieName {
			return cookie
		}
	}
	return nil
}

func TestAuthWithHeader(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token)
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.user.String(), rec.Body.String())

	// A successful resolution refreshes the cookie for cookie-only clients.
	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "bearer "+f.token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestAuthWithCookieOnly(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	// Browsers escape the space in the stored "bearer <token>" value.
	req.Header.Set("Cookie", AuthCookieName+"=bearer%20"+f.token)
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.user.String(), rec.Body.String())
}

func TestAuthHeaderWinsOverCookie(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token)
	req.Header.Set("Cookie", AuthCookieName+"=bearer%20garbage")
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cookie := authCookie(rec)
	require.NotNil(t, cookie, "stale cookies are cleared on failure")
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestAuthInvalidToken(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}

func TestAuthMalformedHeader(t *testing.T) {
	f := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, f.token)
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
