package service

import (
	"context"
	"errors"
	"time"

	"rentline-api/internal/model"
	"rentline-api/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService owns the credential store: user identities, password hashes
// and role records.
type UserService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewUserService(db *gorm.DB, log *zap.Logger) *UserService {
	return &UserService{db: db, log: log}
}

// Create inserts a user together with its role record in one transaction.
// A duplicate email surfaces as ErrEmailTaken; the plaintext password is
// hashed before it reaches the store.
func (s *UserService) Create(ctx context.Context, email, password string, fullName *string, role string, agencyID *uuid.UUID) (uuid.UUID, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, Wrap(KindInternal, "hash password", err)
	}

	hash := string(hashed)
	user := model.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: &hash,
		FullName:       fullName,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		userRole := model.UserRole{
			ID:       uuid.New(),
			UserID:   user.ID,
			Role:     role,
			AgencyID: agencyID,
		}
		return tx.Create(&userRole).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, translateStoreError(err, "create user")
	}

	s.log.Info("User created", zap.String("email", email), zap.String("user_id", user.ID.String()))
	return user.ID, nil
}

// GetByCredentials verifies an email/password pair. Unknown email, absent
// hash and wrong password all return ErrInvalidCredentials so the caller
// cannot tell them apart.
func (s *UserService) GetByCredentials(ctx context.Context, email, password string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, translateStoreError(err, "find user by email")
	}
	if user.HashedPassword == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.HashedPassword), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GetByID returns the user or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, translateStoreError(err, "find user by id")
	}
	return &user, nil
}

// GetByIDs loads a batch of users in one query.
func (s *UserService) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	byID := make(map[uuid.UUID]model.User, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translateStoreError(err, "find users by ids")
	}
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// DisplayNamesByIDs resolves display names for a set of users in one query.
func (s *UserService) DisplayNamesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	byID, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(byID))
	for id, u := range byID {
		names[id] = u.DisplayName()
	}
	return names, nil
}

// RolesByUserID returns every role record held by the user.
func (s *UserService) RolesByUserID(ctx context.Context, userID uuid.UUID) ([]model.UserRole, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var roles []model.UserRole
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&roles).Error; err != nil {
		return nil, translateStoreError(err, "find roles by user id")
	}
	return roles, nil
}

// AllUserIDs returns the id of every known user. Feeds the broadcast chat
// default, which is gated by configuration.
func (s *UserService) AllUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&model.User{}).Pluck("id", &ids).Error; err != nil {
		return nil, translateStoreError(err, "list user ids")
	}
	return ids, nil
}
