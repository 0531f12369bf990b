package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusUnverified = "unverified"
	StatusVerified   = "verified"
)

// TokenPurpose tags the single one-time token slot so a reset token can never
// satisfy email verification and vice versa.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
)

// MaxNameLength bounds first and last names, in characters.
const MaxNameLength = 50

// Socials holds optional profile links.
type Socials struct {
	Facebook  *string `gorm:"size:255" json:"facebook"`
	Twitter   *string `gorm:"size:255" json:"twitter"`
	LinkedIn  *string `gorm:"size:255" json:"linkedin"`
	Instagram *string `gorm:"size:255" json:"instagram"`
}

// User is the credential record. Email is stored trimmed and lower-cased.
type User struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName      string        `gorm:"size:50;not null" json:"firstName"`
	LastName       string        `gorm:"size:50" json:"lastName"`
	Email          string        `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password       string        `gorm:"not null" json:"-"`
	Status         string        `gorm:"size:20;not null;default:'unverified';index" json:"status"`
	Token          *string       `gorm:"size:64;uniqueIndex" json:"-"`
	TokenPurpose   *TokenPurpose `gorm:"size:20" json:"-"`
	TokenExpiresAt *time.Time    `json:"-"`
	IsSocialUser   bool          `gorm:"not null;default:false" json:"isSocialUser"`
	Phone          *string       `gorm:"size:30" json:"phone"`
	Bio            *string       `gorm:"type:text" json:"bio"`
	Socials        Socials       `gorm:"embedded;embeddedPrefix:social_" json:"socials"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) IsVerified() bool {
	return u.Status == StatusVerified
}

// SetToken fills the one-time token slot.
func (u *User) SetToken(token string, purpose TokenPurpose, expiresAt time.Time) {
	u.Token = &token
	u.TokenPurpose = &purpose
	u.TokenExpiresAt = &expiresAt
}

// ClearToken empties the one-time token slot.
func (u *User) ClearToken() {
	u.Token = nil
	u.TokenPurpose = nil
	u.TokenExpiresAt = nil
}

// TokenValid reports whether the stored token has the given purpose and has
// not expired at now.
func (u *User) TokenValid(purpose TokenPurpose, now time.Time) bool {
	if u.Token == nil || u.TokenPurpose == nil || u.TokenExpiresAt == nil {
		return false
	}
	return *u.TokenPurpose == purpose && u.TokenExpiresAt.After(now)
}
