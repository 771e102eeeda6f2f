package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration, one struct per concern.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Google     GoogleConfig
	Mail       MailConfig
	Minio      MinioConfig
	Log        LogConfig
	Telemetry  TelemetryConfig
	BcryptCost int
}

// ServerConfig holds HTTP listener settings and the URLs the API redirects to.
type ServerConfig struct {
	Host            string
	Port            string
	Env             string // "production" hides error details from clients
	FrontendURL     string
	BackendURL      string
	TrustProxy      bool // use the first X-Forwarded-For hop as the client address
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

// DatabaseConfig selects the SQL backend and sizes its connection pool.
type DatabaseConfig struct {
	Driver          string // mysql or sqlite3
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
	LogQueries      bool
}

// RedisConfig is optional; without it limiters and OAuth state live in process.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// JWTConfig configures bearer token signing.
type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
	Issuer    string
	Audience  string
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowLocalhost   bool // any http://localhost:* or http://127.0.0.1:* origin
	AllowCredentials bool
}

// LimitRule is a fixed window: at most Max requests per Window for one client.
type LimitRule struct {
	Window time.Duration
	Max    int
}

// RateLimitConfig holds the limiter rules per route group.
type RateLimitConfig struct {
	Login LimitRule
	API   LimitRule
}

// GoogleConfig enables Google sign-in when both id and secret are set.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether Google OAuth has usable credentials.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.ClientID != "YOUR_GOOGLE_CLIENT_ID_HERE"
}

// MailConfig configures SMTP delivery of password reset links.
type MailConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	RatePerSecond float64
}

// Enabled reports whether an SMTP host is configured.
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// MinioConfig configures the optional PDF export archive.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an object storage endpoint is configured.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

// LogConfig controls the zap logger and lumberjack rotation.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
}

// ErrMissingJWTSecret is returned by Load when JWT_SECRET is empty.
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required")

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15m") and, like the old Node config,
// vercel/ms style day suffixes ("7d").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	if d, err := parseDuration(value); err == nil {
		return d
	}
	log.Printf("Invalid duration %q for %s, using %s", value, key, fallback)
	return fallback
}

func parseDuration(value string) (time.Duration, error) {
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() (*Config, error) {
	// godotenv.Load does not override variables already in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	env := getEnv("APP_ENV", getEnv("NODE_ENV", "development"))
	port := getEnv("PORT", "3001")

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("HOST", "0.0.0.0"),
			Port:            port,
			Env:             env,
			FrontendURL:     strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			BackendURL:      strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:"+port), "/"),
			TrustProxy:      getEnvBool("TRUST_PROXY", false),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second),
			MaxBodyBytes:    int64(getEnvInt("HTTP_MAX_BODY_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "mysql"),
			Host:            getEnv("DB_HOST", "127.0.0.1"),
			Port:            getEnv("DB_PORT", "3306"),
			User:            getEnv("DB_USER", "root"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnv("DB_NAME", "musinotes"),
			SQLitePath:      getEnv("DB_SQLITE_PATH", "musinotes.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 2*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
			LogQueries:      getEnvBool("DB_LOG_QUERIES", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "127.0.0.1"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    os.Getenv("JWT_SECRET"),
			ExpiresIn: getEnvDuration("JWT_EXPIRES_IN", time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "musinotes-api"),
			Audience:  getEnv("JWT_AUDIENCE", "musinotes-client"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvList("ALLOWED_ORIGINS"),
			AllowLocalhost:   env == "development",
			AllowCredentials: true,
		},
		RateLimit: RateLimitConfig{
			Login: LimitRule{
				Window: getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
				Max:    getEnvInt("LOGIN_RATE_MAX", 5),
			},
			API: LimitRule{
				Window: getEnvDuration("API_RATE_WINDOW", 15*time.Minute),
				Max:    getEnvInt("API_RATE_MAX", 100),
			},
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		Mail: MailConfig{
			Host:          os.Getenv("EMAIL_HOST"),
			Port:          getEnvInt("EMAIL_PORT", 587),
			User:          os.Getenv("EMAIL_USER"),
			Password:      os.Getenv("EMAIL_PASS"),
			From:          getEnv("EMAIL_FROM", os.Getenv("EMAIL_USER")),
			RatePerSecond: getEnvFloat("EMAIL_RATE_PER_SEC", 2),
		},
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "musinotes"),
			Region:    getEnv("MINIO_REGION", "us-east-1"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "musinotes"),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		BcryptCost: getEnvInt("BCRYPT_COST", 12),
	}
	cfg.Google.RedirectURL = getEnv("GOOGLE_CALLBACK_URL", cfg.Server.BackendURL+"/api/auth/google/callback")

	if cfg.JWT.Secret == "" {
		return nil, ErrMissingJWTSecret
	}
	return cfg, nil
}
