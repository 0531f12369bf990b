package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"subtrack_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Session tokens
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	// Verification / reset tokens
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	// Frontend links
	FrontendURL              string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	VerifyFailureRedirectURL string `env:"VERIFY_FAILURE_REDIRECT_URL" envDefault:"http://localhost:3000/signin?verification=failed"`

	// OAuth providers
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string `env:"GITHUB_REDIRECT_URI" envDefault:"http://localhost:3000/callback"`

	// Mail relay. Without a server token, mail is written to the log only.
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	MailFrom             string `env:"MAIL_FROM" envDefault:"no-reply@subtrack.local"`
	MailReplyTo          string `env:"MAIL_REPLY_TO"`

	// Rate limiting. Empty REDIS_URL keeps limiter state in memory.
	RedisURL         string `env:"REDIS_URL"`
	RateLimitMax     int    `env:"RATE_LIMIT_MAX" envDefault:"60"`
	AuthRateLimitMax int    `env:"AUTH_RATE_LIMIT_MAX" envDefault:"10"`

	// Logging
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogRetention time.Duration `env:"LOG_RETENTION" envDefault:"720h"`

	// Server
	Port        string `env:"PORT" envDefault:"5500"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`

	// Error tracking
	SentryDSN string `env:"SENTRY_DSN"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
}

var (
	ErrMissingJWTSecret  = errors.New("JWT_SECRET environment variable is required")
	ErrMissingDBPassword = errors.New("DB_PASSWORD environment variable is required")
)

// Load reads an optional .env file, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.DBPassword == "" {
		return ErrMissingDBPassword
	}
	return nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) VerificationLink(token string) string {
	return c.FrontendURL + "/verify-email?token=" + token
}

func (c *Config) ResetPasswordLink(token string) string {
	return c.FrontendURL + "/reset-password?token=" + token
}
