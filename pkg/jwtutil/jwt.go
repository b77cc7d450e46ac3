package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failure kinds. Callers collapse both into an authentication
// failure but log them differently.
var (
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	UserID uuid.UUID `json:"sub"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed, time-limited bearer tokens.
// The secret is process-wide configuration; rotating it invalidates every
// outstanding token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service. nowFn may be nil, in which case
// time.Now is used; tests inject a fixed clock.
func NewTokenService(signingKey string, ttl time.Duration, nowFn func() time.Time) *TokenService {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenService{
		secret: []byte(signingKey),
		ttl:    ttl,
		now:    nowFn,
	}
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a signed token for the subject. The issue time is truncated
// to whole seconds so the embedded expiry is stable when re-derived.
func (s *TokenService) Issue(subjectID uuid.UUID) (string, time.Time, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	claims := UserClaims{
		UserID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies the signature and expiry of a token. It returns
// ErrTokenExpired when the signature is valid but the token has elapsed, and
// ErrTokenInvalid for every other failure (bad signature, malformed payload,
// missing fields).
func (s *TokenService) Validate(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
