package service

import (
	"context"
	"errors"
	"time"

	"rentline-api/internal/model"
	"rentline-api/pkg/jwtutil"
	"rentline-api/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity is the resolved "current authenticated identity": the user, its
// role records and the bearer token proving it.
type Identity struct {
	User      model.User
	Roles     []model.UserRole
	Token     string
	ExpiresAt time.Time
}

// AuthService orchestrates credential verification and token issuance into
// a single identity concept.
type AuthService struct {
	users  *UserService
	tokens *jwtutil.TokenService
	log    *zap.Logger
}

func NewAuthService(users *UserService, tokens *jwtutil.TokenService, log *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: log}
}

// Signup creates a user with the given role. Duplicate emails surface as a
// validation failure.
func (s *AuthService) Signup(ctx context.Context, email, password, role string, fullName *string, agencyID *uuid.UUID) (uuid.UUID, error) {
	prometheus.SignupCounter.Inc()
	return s.users.Create(ctx, email, password, fullName, role, agencyID)
}

// LoginByCredentials verifies the email/password pair and mints a fresh
// token. All credential failures look identical to the caller.
func (s *AuthService) LoginByCredentials(ctx context.Context, email, password string) (*Identity, error) {
	prometheus.LoginCounter.Inc()

	user, err := s.users.GetByCredentials(ctx, email, password)
	if err != nil {
		if KindOf(err) == KindUnauthorized {
			prometheus.RecordAuthError("invalid_credentials")
		}
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, Wrap(KindInternal, "issue token", err)
	}
	prometheus.IncreaseActiveTokens()

	identity, err := s.buildIdentity(ctx, user, token, expiresAt)
	if err != nil {
		return nil, err
	}
	s.log.Info("User logged in", zap.String("email", user.Email), zap.String("user_id", user.ID.String()))
	return identity, nil
}

// AuthByToken validates a bearer token and loads the subject user. The
// token service's expired/invalid distinction is collapsed into
// Unauthorized here; only logging differentiates the two.
func (s *AuthService) AuthByToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, jwtutil.ErrTokenExpired) {
			s.log.Debug("Rejected expired token")
			prometheus.RecordAuthError("token_expired")
		} else {
			s.log.Warn("Rejected invalid token", zap.Error(err))
			prometheus.RecordAuthError("token_invalid")
		}
		return nil, Unauthorized("invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			prometheus.RecordAuthError("token_user_gone")
			return nil, Unauthorized("invalid or expired token")
		}
		return nil, err
	}

	// Keep the original token and expiry; no re-mint on resolve.
	return s.buildIdentity(ctx, user, token, claims.ExpiresAt.Time)
}

func (s *AuthService) buildIdentity(ctx context.Context, user *model.User, token string, expiresAt time.Time) (*Identity, error) {
	roles, err := s.users.RolesByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Identity{
		User:      *user,
		Roles:     roles,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
