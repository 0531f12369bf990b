package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStore persists user records. Every lookup returns ErrUserNotFound when
// nothing matches.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Transaction runs fn against a store bound to a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise,
// including on panic.
func (s *UserStore) Transaction(ctx context.Context, fn func(tx *UserStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UserStore{db: tx})
	})
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) FindByToken(ctx context.Context, token string) (*models.User, error) {
	return s.first(ctx, "token = ?", token)
}

func (s *UserStore) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// Create inserts user. A unique-index violation on email maps to ErrEmailTaken.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// SetToken fills the one-time token slot and touches no other column, so it
// cannot undo a verify or reset that committed after user was loaded.
func (s *UserStore) SetToken(ctx context.Context, userID uuid.UUID, token string, purpose models.TokenPurpose, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"token":            token,
			"token_purpose":    string(purpose),
			"token_expires_at": expiresAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to store token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile writes only the given profile columns.
func (s *UserStore) UpdateProfile(ctx context.Context, userID uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeToken applies updates to the user only while it still holds token,
// and always clears the token slot in the same statement. It returns
// ErrInvalidToken when another request consumed or replaced the token first.
func (s *UserStore) ConsumeToken(ctx context.Context, userID uuid.UUID, token string, updates map[string]interface{}) error {
	values := map[string]interface{}{
		"token":            nil,
		"token_purpose":    nil,
		"token_expires_at": nil,
	}
	for k, v := range updates {
		values[k] = v
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND token = ?", userID, token).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}
