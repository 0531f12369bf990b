package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/models"
	"github.com/google/uuid"
)

type SignUpRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type GoogleAuthRequest struct {
	Token string `json:"token"`
}

type GitHubAuthRequest struct {
	Code  string `json:"code" query:"code" form:"code"`
	State string `json:"state" query:"state" form:"state"`
}

// UpdateProfileRequest changes only the fields that are present. An empty
// string clears an optional field.
type UpdateProfileRequest struct {
	FirstName *string         `json:"firstName"`
	LastName  *string         `json:"lastName"`
	Phone     *string         `json:"phone"`
	Bio       *string         `json:"bio"`
	Socials   *models.Socials `json:"socials"`
}

type AuthResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    AuthData `json:"data"`
}

type AuthData struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UserEnvelope struct {
	Success bool         `json:"success"`
	Data    UserResponse `json:"data"`
}

// UserResponse is the only user shape sent to clients. It never carries the
// password hash or one-time tokens.
type UserResponse struct {
	ID           uuid.UUID      `json:"id"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	Email        string         `json:"email"`
	Status       string         `json:"status"`
	IsSocialUser bool           `json:"isSocialUser"`
	Phone        *string        `json:"phone"`
	Bio          *string        `json:"bio"`
	Socials      models.Socials `json:"socials"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Status:       u.Status,
		IsSocialUser: u.IsSocialUser,
		Phone:        u.Phone,
		Bio:          u.Bio,
		Socials:      u.Socials,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Redis     string `json:"redis,omitempty"`
}
