package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Ingest      IngestConfig
	Email       EmailConfig
	Teams       TeamsConfig
	Review      ReviewConfig
	Attachments AttachmentsConfig
	Invitations InvitationsConfig
	Ordinances  OrdinancesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// IngestConfig tunes the ordinance CSV ingestion pipeline.
type IngestConfig struct {
	BatchSize     int
	MaxErrors     int
	MaxUploadSize int64
}

// EmailConfig configures the outbound email delivery provider.
// An empty APIKey switches the dispatcher into simulate mode: messages
// are logged and marked sent without leaving the process.
type EmailConfig struct {
	APIKey       string
	APIURL       string
	FromAddress  string
	FromName     string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// TeamsConfig holds the incoming-webhook target for chat notifications.
type TeamsConfig struct {
	Enabled    bool
	WebhookURL string
}

// ReviewConfig governs AI compliance review calls.
type ReviewConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AttachmentsConfig controls project attachment storage & validation.
type AttachmentsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// InvitationsConfig governs user invitation lifetimes.
type InvitationsConfig struct {
	Expiry  time.Duration
	BaseURL string
}

// OrdinancesConfig tunes list caching for the ordinance table.
type OrdinancesConfig struct {
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ingest = IngestConfig{
		BatchSize:     v.GetInt("INGEST_BATCH_SIZE"),
		MaxErrors:     v.GetInt("INGEST_MAX_ERRORS"),
		MaxUploadSize: v.GetInt64("INGEST_MAX_UPLOAD_SIZE"),
	}

	cfg.Email = EmailConfig{
		APIKey:       v.GetString("EMAIL_API_KEY"),
		APIURL:       v.GetString("EMAIL_API_URL"),
		FromAddress:  v.GetString("EMAIL_FROM_ADDRESS"),
		FromName:     v.GetString("EMAIL_FROM_NAME"),
		PollInterval: parseDuration(v.GetString("EMAIL_POLL_INTERVAL"), time.Minute),
		BatchSize:    v.GetInt("EMAIL_BATCH_SIZE"),
		MaxAttempts:  v.GetInt("EMAIL_MAX_ATTEMPTS"),
	}

	cfg.Teams = TeamsConfig{
		Enabled:    v.GetBool("ENABLE_TEAMS_NOTIFICATIONS"),
		WebhookURL: v.GetString("TEAMS_WEBHOOK_URL"),
	}

	cfg.Review = ReviewConfig{
		Enabled: v.GetBool("ENABLE_AI_REVIEW"),
		APIKey:  v.GetString("GEMINI_API_KEY"),
		Model:   v.GetString("AI_REVIEW_MODEL"),
		Timeout: parseDuration(v.GetString("AI_REVIEW_TIMEOUT"), 60*time.Second),
	}

	maxAttachmentSize := v.GetInt64("ATTACHMENTS_MAX_FILE_SIZE")
	if maxAttachmentSize <= 0 {
		maxAttachmentSize = 25 * 1024 * 1024
	}
	cfg.Attachments = AttachmentsConfig{
		StorageDir:       v.GetString("ATTACHMENTS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("ATTACHMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("ATTACHMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxAttachmentSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("ATTACHMENTS_ALLOWED_MIME_TYPES")),
	}

	cfg.Invitations = InvitationsConfig{
		Expiry:  parseDuration(v.GetString("INVITATION_EXPIRY"), 7*24*time.Hour),
		BaseURL: v.GetString("INVITATION_BASE_URL"),
	}

	cfg.Ordinances = OrdinancesConfig{
		CacheTTL: parseDuration(v.GetString("ORDINANCE_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "compliance_review")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("INGEST_BATCH_SIZE", 100)
	v.SetDefault("INGEST_MAX_ERRORS", 10)
	v.SetDefault("INGEST_MAX_UPLOAD_SIZE", 20*1024*1024)

	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_API_URL", "https://api.resend.com/emails")
	v.SetDefault("EMAIL_FROM_ADDRESS", "noreply@plancheck.local")
	v.SetDefault("EMAIL_FROM_NAME", "PlanCheck")
	v.SetDefault("EMAIL_POLL_INTERVAL", "1m")
	v.SetDefault("EMAIL_BATCH_SIZE", 20)
	v.SetDefault("EMAIL_MAX_ATTEMPTS", 3)

	v.SetDefault("ENABLE_TEAMS_NOTIFICATIONS", false)
	v.SetDefault("TEAMS_WEBHOOK_URL", "")

	v.SetDefault("ENABLE_AI_REVIEW", false)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("AI_REVIEW_MODEL", "gemini-2.0-flash")
	v.SetDefault("AI_REVIEW_TIMEOUT", "60s")

	v.SetDefault("ATTACHMENTS_STORAGE_DIR", "./attachments")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_SECRET", "dev_attachments_secret")
	v.SetDefault("ATTACHMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("ATTACHMENTS_MAX_FILE_SIZE", 25*1024*1024)
	v.SetDefault("ATTACHMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/zip")

	v.SetDefault("INVITATION_EXPIRY", "168h")
	v.SetDefault("INVITATION_BASE_URL", "http://localhost:5173/invitations/accept")

	v.SetDefault("ORDINANCE_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
