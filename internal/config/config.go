package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel slog.Level

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	OTP OTPPolicy

	DeviceTrustDuration time.Duration
	PasswordMinLength   int

	NotifierBackend string // "smtp" | "sns"
	NotifyTimeout   time.Duration
	SMTPHost        string
	SMTPPort        string
	SMTPFrom        string
	SMTPUsername    string
	SMTPPassword    string
	SNSRegion       string
	SNSMailTopicARN string

	RedisAddr     string // empty disables Redis; the in-memory limiter is used
	RedisPassword string
	RedisDB       int

	RateLimitPerMinute   int
	HousekeepingInterval time.Duration
	AllowedOrigins       []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users          string
	OneTimeCodes   string
	TrustedDevices string
}

// OTPPolicy holds the one-time code thresholds.
type OTPPolicy struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:          getEnv("DYNAMO_TABLE_USERS", "users"),
			OneTimeCodes:   getEnv("DYNAMO_TABLE_ONE_TIME_CODES", "one_time_codes"),
			TrustedDevices: getEnv("DYNAMO_TABLE_TRUSTED_DEVICES", "trusted_devices"),
		},

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTIssuer:         getEnv("JWT_ISSUER", "insightora"),
		AccessTokenTTL:    time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		RefreshTokenTTL:   time.Duration(getEnvInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,

		OTP: OTPPolicy{
			TTL:         time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
			Cooldown:    time.Duration(getEnvInt("OTP_COOLDOWN_SECONDS", 60)) * time.Second,
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),
		},

		DeviceTrustDuration: time.Duration(getEnvInt("DEVICE_TRUST_DAYS", 30)) * 24 * time.Hour,
		PasswordMinLength:   getEnvInt("PASSWORD_MIN_LENGTH", 8),

		NotifierBackend: strings.ToLower(getEnv("NOTIFIER_BACKEND", "smtp")),
		NotifyTimeout:   time.Duration(getEnvInt("NOTIFY_TIMEOUT_SECONDS", 10)) * time.Second,
		SMTPHost:        getEnv("SMTP_HOST", "localhost"),
		SMTPPort:        getEnv("SMTP_PORT", "1025"),
		SMTPFrom:        getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SNSRegion:       getEnv("SNS_REGION", "us-east-1"),
		SNSMailTopicARN: getEnv("SNS_MAIL_TOPIC_ARN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HousekeepingInterval: time.Duration(getEnvInt("HOUSEKEEPING_INTERVAL_MINUTES", 15)) * time.Minute,
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsDevelopment reports whether the service runs in a local development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
