package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const minJWTSecretLength = 32

// Config holds the application configuration
type Config struct {
	Env            string `mapstructure:"env"`
	Port           string `mapstructure:"port"`
	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseURL    string `mapstructure:"database_url"`

	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`

	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LockoutWindow    time.Duration `mapstructure:"lockout_window"`
	AttemptRetention time.Duration `mapstructure:"attempt_retention"`

	PasswordMinLength    int    `mapstructure:"password_min_length"`
	PasswordSpecialChars string `mapstructure:"password_special_chars"`
	BcryptCost           int    `mapstructure:"bcrypt_cost"`

	FrontendURL      string  `mapstructure:"frontend_url"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`
	RateLimitClients int     `mapstructure:"rate_limit_clients"`

	LogLevel      string `mapstructure:"log_level"`
	AccessLogPath string `mapstructure:"access_log_path"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("database_driver", "postgres")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "hms")
	v.SetDefault("access_token_ttl", time.Hour)
	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("lockout_window", 15*time.Minute)
	v.SetDefault("attempt_retention", 24*time.Hour)
	v.SetDefault("password_min_length", 8)
	v.SetDefault("password_special_chars", "!@#$%^&*")
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("frontend_url", "")
	v.SetDefault("rate_limit_rps", 10.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("rate_limit_clients", 10000)
	v.SetDefault("log_level", "info")
	v.SetDefault("access_log_path", "logs/access.log")
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, from that file. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and policy bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.LockoutWindow <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW must be positive")
	}
	if c.AttemptRetention < c.LockoutWindow {
		return fmt.Errorf("ATTEMPT_RETENTION must not be shorter than LOCKOUT_WINDOW")
	}
	if c.PasswordMinLength <= 0 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be positive")
	}
	if c.PasswordSpecialChars == "" {
		return fmt.Errorf("PASSWORD_SPECIAL_CHARS must not be empty")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 || c.RateLimitClients < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set")
	}
	return nil
}
