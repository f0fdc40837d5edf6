package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Upload         UploadConfig         `yaml:"upload"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Logging        LoggingConfig        `yaml:"logging"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle_connections"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	SessionExpiry time.Duration `yaml:"session_expiry"`
	CookieName    string        `yaml:"cookie_name"`
}

// RateLimitConfig holds the per-IP request budgets for each tier.
// A zero limit disables the tier entirely.
type RateLimitConfig struct {
	GeneralPer15Minutes int `yaml:"general_per_15_minutes"`
	AuthPer15Minutes    int `yaml:"auth_per_15_minutes"`
	WritePer5Minutes    int `yaml:"write_per_5_minutes"`
	UploadPer15Minutes  int `yaml:"upload_per_15_minutes"`
}

type UploadConfig struct {
	MaxCSVBytes int64  `yaml:"max_csv_bytes"`
	TempDir     string `yaml:"temp_dir"`
}

type AdminBootstrapConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			SessionExpiry: time.Duration(getEnvInt("SESSION_EXPIRY_HOURS", 168)) * time.Hour,
			CookieName:    getEnv("COOKIE_NAME", "nav_token"),
		},
		RateLimit: RateLimitConfig{
			GeneralPer15Minutes: getEnvInt("RATE_LIMIT_GENERAL", 1000),
			AuthPer15Minutes:    getEnvInt("RATE_LIMIT_AUTH", 50),
			WritePer5Minutes:    getEnvInt("RATE_LIMIT_WRITE", 10),
			UploadPer15Minutes:  getEnvInt("RATE_LIMIT_UPLOAD", 3),
		},
		Upload: UploadConfig{
			MaxCSVBytes: int64(getEnvInt("UPLOAD_MAX_CSV_BYTES", 5*1024*1024)),
			TempDir:     getEnv("UPLOAD_TEMP_DIR", os.TempDir()),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Name:     getEnv("ADMIN_NAME", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads configuration from env vars, then overlays values from a
// YAML file. File values win over env values for fields the file sets.
func LoadFile(path string) (Config, error) {
	cfg, err := Load()
	if err != nil {
		// Validation re-runs after the overlay; a file may supply the
		// missing required values.
		cfg = Config{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode. Secure
// cookies and sanitized error details key off this.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
