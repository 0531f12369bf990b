package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/mailer"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Conflict
var (
	ErrEmailTaken      = errors.New("user already exists")
	ErrAlreadyVerified = errors.New("user already verified, no need to resend verification link")
)

// NotFound
var ErrUserNotFound = errors.New("user not found")

// Unauthorized
var ErrInvalidPassword = errors.New("invalid password")

// Forbidden
var ErrEmailNotVerified = errors.New("please verify your email to continue")

// BadRequest
var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidEmail     = errors.New("please fill a valid email address")
	ErrInvalidFirstName = errors.New("first name must be between 2 and 50 characters")
	ErrInvalidLastName  = errors.New("last name must be at most 50 characters")
	ErrFieldTooLong     = errors.New("field is too long")
	ErrWeakPassword     = errors.New("password must be at least 6 characters")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrInvalidIDToken   = errors.New("invalid identity token")
	ErrNoVerifiedEmail  = errors.New("cannot find a verified primary email from provider")
	ErrUnknownProvider  = errors.New("unknown identity provider")
)

// UpstreamFailure
var (
	ErrProviderExchange    = errors.New("failed to exchange code for access token")
	ErrProviderUnavailable = errors.New("identity provider request failed")
)

// Internal
var ErrEmailDelivery = errors.New("failed to send email")

const (
	minPasswordLength  = 6
	minFirstNameLength = 2
	maxPhoneLength     = 30
	maxLinkLength      = 255
)

// ForgotPasswordMessage is returned whether or not the account exists.
const ForgotPasswordMessage = "If an account with that email exists, a reset link has been sent."

// Session is the result of every flow that authenticates a user.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
	Created   bool
}

type AuthService struct {
	store     *UserStore
	tokens    *TokenIssuer
	mailer    mailer.Dispatcher
	providers map[string]IdentityProvider
	cfg       *config.Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewAuthService(db *gorm.DB, cfg *config.Config, dispatcher mailer.Dispatcher, providers ...IdentityProvider) *AuthService {
	byName := make(map[string]IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthService{
		store:     NewUserStore(db),
		tokens:    NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn),
		mailer:    dispatcher,
		providers: byName,
		cfg:       cfg,
		now:       time.Now,
		logger:    slog.Default().With("component", "auth"),
	}
}

func (s *AuthService) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *AuthService) SignUp(ctx context.Context, req *dto.SignUpRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	firstName := strings.TrimSpace(req.FirstName)
	switch {
	case firstName == "":
		return nil, missing("firstName")
	case email == "":
		return nil, missing("email")
	case req.Password == "":
		return nil, missing("password")
	}
	lastName := strings.TrimSpace(req.LastName)
	if err := validateNames(firstName, lastName); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	token, err := newOneTimeToken()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  hash,
		Status:    models.StatusUnverified,
	}
	user.SetToken(token, models.PurposeVerifyEmail, s.now().Add(s.cfg.TokenTTL))

	if err := s.store.Transaction(ctx, func(tx *UserStore) error {
		return tx.Create(ctx, user)
	}); err != nil {
		return nil, err
	}

	// The account exists either way; a lost email is recovered through resend.
	if err := s.mailer.Send(ctx, user.Email, mailer.KindVerifyEmail, s.cfg.VerificationLink(token)); err != nil {
		s.logger.ErrorContext(ctx, "verification email failed", "action", "sign_up", "user_id", user.ID.String(), "error", err)
	}

	s.logger.InfoContext(ctx, "user signed up", "action", "sign_up", "user_id", user.ID.String())
	return s.newSession(user, true)
}

func (s *AuthService) SignIn(ctx context.Context, req *dto.SignInRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, missing("email")
	}
	if req.Password == "" {
		return nil, missing("password")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidPassword
	}
	if !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	return s.newSession(user, false)
}

// VerifyEmail consumes a verification token and marks the user verified.
// Any failure is reported as ErrInvalidToken.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.TokenValid(models.PurposeVerifyEmail, s.now()) {
		return nil, ErrInvalidToken
	}

	if err := s.store.ConsumeToken(ctx, user.ID, token, map[string]interface{}{
		"status": models.StatusVerified,
	}); err != nil {
		return nil, err
	}
	user.Status = models.StatusVerified
	user.ClearToken()

	s.logger.InfoContext(ctx, "email verified", "action", "verify_email", "user_id", user.ID.String())
	return s.newSession(user, false)
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return missing("email")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified() {
		return ErrAlreadyVerified
	}

	token, err := s.refreshToken(ctx, user, models.PurposeVerifyEmail)
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, mailer.KindVerifyEmail, s.cfg.VerificationLink(token)); err != nil {
		s.logger.ErrorContext(ctx, "verification email failed", "action", "resend_verification", "user_id", user.ID.String(), "error", err)
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	return nil
}

// ForgotPassword never reveals whether email belongs to an account: unknown
// addresses and delivery failures both return nil.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.refreshToken(ctx, user, models.PurposeResetPassword)
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, mailer.KindResetPassword, s.cfg.ResetPasswordLink(token)); err != nil {
		s.logger.ErrorContext(ctx, "reset email failed", "action", "forgot_password", "user_id", user.ID.String(), "error", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	if req.Token == "" {
		return missing("token")
	}

	user, err := s.store.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if !user.TokenValid(models.PurposeResetPassword, s.now()) {
		return ErrInvalidToken
	}

	if req.NewPassword == "" {
		return missing("newPassword")
	}
	if len(req.NewPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	// A social account that sets a password gains local credentials.
	if err := s.store.ConsumeToken(ctx, user.ID, req.Token, map[string]interface{}{
		"password":       hash,
		"is_social_user": false,
	}); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "action", "reset_password", "user_id", user.ID.String())
	return nil
}

// OAuthSignIn exchanges proof with the named provider and finds or creates the
// matching user. Session.Created reports whether a user was created.
func (s *AuthService) OAuthSignIn(ctx context.Context, provider, proof string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if proof == "" {
		if provider == ProviderGitHub {
			return nil, missing("code")
		}
		return nil, missing("token")
	}

	identity, err := p.Exchange(ctx, proof)
	if err != nil {
		s.logger.WarnContext(ctx, "identity exchange failed", "action", provider+"_exchange", "error", err)
		return nil, err
	}

	email := normalizeEmail(identity.Email)
	if email == "" {
		return nil, ErrNoVerifiedEmail
	}

	hash, err := s.unusablePassword()
	if err != nil {
		return nil, err
	}

	var (
		user    *models.User
		created bool
	)
	err = s.store.Transaction(ctx, func(tx *UserStore) error {
		existing, err := tx.FindByEmail(ctx, email)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		user = &models.User{
			ID:           uuid.New(),
			FirstName:    truncateName(identity.FirstName),
			LastName:     truncateName(identity.LastName),
			Email:        email,
			Password:     hash,
			Status:       models.StatusVerified,
			IsSocialUser: true,
		}
		created = true
		return tx.Create(ctx, user)
	})
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent first login for the same email.
		user, err = s.store.FindByEmail(ctx, email)
		created = false
	}
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.InfoContext(ctx, "social user created", "action", provider+"_sign_in", "user_id", user.ID.String())
	}
	return s.newSession(user, created)
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateProfile writes only the profile columns present in req and returns the
// stored record.
func (s *AuthService) UpdateProfile(ctx context.Context, id uuid.UUID, req *dto.UpdateProfileRequest) (*models.User, error) {
	fields := make(map[string]interface{})
	if req.FirstName != nil {
		name := strings.TrimSpace(*req.FirstName)
		if name == "" {
			return nil, missing("firstName")
		}
		if err := validateNames(name, ""); err != nil {
			return nil, err
		}
		fields["first_name"] = name
	}
	if req.LastName != nil {
		name := strings.TrimSpace(*req.LastName)
		if err := validateNames("", name); err != nil {
			return nil, err
		}
		fields["last_name"] = name
	}
	if req.Bio != nil {
		fields["bio"] = optional(*req.Bio)
	}

	limited := []profileField{{"phone", "phone", req.Phone, maxPhoneLength}}
	if req.Socials != nil {
		limited = append(limited,
			profileField{"socials.facebook", "social_facebook", req.Socials.Facebook, maxLinkLength},
			profileField{"socials.twitter", "social_twitter", req.Socials.Twitter, maxLinkLength},
			profileField{"socials.linkedin", "social_linked_in", req.Socials.LinkedIn, maxLinkLength},
			profileField{"socials.instagram", "social_instagram", req.Socials.Instagram, maxLinkLength},
		)
	}
	for _, f := range limited {
		if f.value == nil {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(*f.value)) > f.max {
			return nil, fmt.Errorf("%w: %s", ErrFieldTooLong, f.name)
		}
		fields[f.column] = optional(*f.value)
	}

	if err := s.store.UpdateProfile(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.store.FindByID(ctx, id)
}

type profileField struct {
	name   string
	column string
	value  *string
	max    int
}

func (s *AuthService) newSession(user *models.User, created bool) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user, Created: created}, nil
}

// refreshToken replaces the user's one-time token. Only the token columns are
// written.
func (s *AuthService) refreshToken(ctx context.Context, user *models.User, purpose models.TokenPurpose) (string, error) {
	token, err := newOneTimeToken()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().Add(s.cfg.TokenTTL)
	if err := s.store.SetToken(ctx, user.ID, token, purpose, expiresAt); err != nil {
		return "", err
	}
	user.SetToken(token, purpose, expiresAt)
	return token, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// unusablePassword hashes a random secret nobody knows.
func (s *AuthService) unusablePassword() (string, error) {
	secret, err := newOneTimeToken()
	if err != nil {
		return "", err
	}
	return s.hashPassword(secret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateNames checks trimmed names. An empty firstName is skipped so callers
// can validate the last name alone.
func validateNames(firstName, lastName string) error {
	if n := utf8.RuneCountInString(firstName); n > 0 && (n < minFirstNameLength || n > models.MaxNameLength) {
		return ErrInvalidFirstName
	}
	if utf8.RuneCountInString(lastName) > models.MaxNameLength {
		return ErrInvalidLastName
	}
	return nil
}

// truncateName trims a provider-supplied name to fit the name columns.
func truncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= models.MaxNameLength {
		return name
	}
	return strings.TrimSpace(string([]rune(name)[:models.MaxNameLength]))
}

// optional maps a blank value to NULL.
func optional(value string) interface{} {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
