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

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Mail     MailConfig
	Enroll   EnrollConfig
	Storage  StorageConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	TLSMode    string // "plain", "starttls" or "smtps"
	SkipVerify bool
}

// IMAPConfig describes the inbound confirmation mailbox.
type IMAPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Folder      string
	TLS         bool
	DialTimeout time.Duration
}

// MailConfig groups both directions of the mail transport.
type MailConfig struct {
	SMTP SMTPConfig
	IMAP IMAPConfig
}

// EnrollConfig governs intake validation and the confirmation scan.
type EnrollConfig struct {
	MinAge              int
	MaxAge              int
	RoomCount           int
	RoomLimit           int
	ConfirmKeyword      string
	DefaultPassword     string
	ReadRetryAttempts   int
	ReadRetryInterval   time.Duration
	ScanLockTTL         time.Duration
	MailWorkers         int
	MailRetries         int
}

// StorageConfig controls the student photo store.
type StorageConfig struct {
	PhotoDir        string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		SMTP: SMTPConfig{
			Host:       v.GetString("SMTP_HOST"),
			Port:       v.GetInt("SMTP_PORT"),
			User:       v.GetString("SMTP_USER"),
			Password:   v.GetString("SMTP_PASSWORD"),
			From:       v.GetString("SMTP_FROM"),
			TLSMode:    v.GetString("SMTP_TLS_MODE"),
			SkipVerify: v.GetBool("SMTP_SKIP_VERIFY"),
		},
		IMAP: IMAPConfig{
			Host:        v.GetString("IMAP_HOST"),
			Port:        v.GetInt("IMAP_PORT"),
			User:        v.GetString("IMAP_USER"),
			Password:    v.GetString("IMAP_PASSWORD"),
			Folder:      v.GetString("IMAP_FOLDER"),
			TLS:         v.GetBool("IMAP_TLS"),
			DialTimeout: parseDuration(v.GetString("IMAP_DIAL_TIMEOUT"), 5*time.Second),
		},
	}

	cfg.Enroll = EnrollConfig{
		MinAge:            v.GetInt("ENROLL_MIN_AGE"),
		MaxAge:            v.GetInt("ENROLL_MAX_AGE"),
		RoomCount:         v.GetInt("ENROLL_ROOM_COUNT"),
		RoomLimit:         v.GetInt("ENROLL_ROOM_LIMIT"),
		ConfirmKeyword:    v.GetString("ENROLL_CONFIRM_KEYWORD"),
		DefaultPassword:   v.GetString("ENROLL_DEFAULT_PASSWORD"),
		ReadRetryAttempts: v.GetInt("ENROLL_READ_RETRY_ATTEMPTS"),
		ReadRetryInterval: parseDuration(v.GetString("ENROLL_READ_RETRY_INTERVAL"), 5*time.Second),
		ScanLockTTL:       parseDuration(v.GetString("ENROLL_SCAN_LOCK_TTL"), 5*time.Minute),
		MailWorkers:       v.GetInt("MAIL_WORKERS"),
		MailRetries:       v.GetInt("MAIL_RETRIES"),
	}

	cfg.Storage = StorageConfig{
		PhotoDir:        v.GetString("PHOTO_STORAGE_DIR"),
		PublicBaseURL:   v.GetString("PHOTO_PUBLIC_BASE_URL"),
		SignedURLSecret: v.GetString("PHOTO_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("PHOTO_SIGNED_URL_TTL"), 24*time.Hour),
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
	v.SetDefault("DB_NAME", "preschool")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "tuyensinh@hoasen.edu.vn")
	v.SetDefault("SMTP_TLS_MODE", "starttls")
	v.SetDefault("SMTP_SKIP_VERIFY", false)

	v.SetDefault("IMAP_HOST", "localhost")
	v.SetDefault("IMAP_PORT", 993)
	v.SetDefault("IMAP_USER", "")
	v.SetDefault("IMAP_PASSWORD", "")
	v.SetDefault("IMAP_FOLDER", "INBOX")
	v.SetDefault("IMAP_TLS", true)
	v.SetDefault("IMAP_DIAL_TIMEOUT", "5s")

	v.SetDefault("ENROLL_MIN_AGE", 2)
	v.SetDefault("ENROLL_MAX_AGE", 5)
	v.SetDefault("ENROLL_ROOM_COUNT", 6)
	v.SetDefault("ENROLL_ROOM_LIMIT", 25)
	v.SetDefault("ENROLL_CONFIRM_KEYWORD", "XÁC NHẬN NHẬP HỌC")
	v.SetDefault("ENROLL_DEFAULT_PASSWORD", "hoasen123")
	v.SetDefault("ENROLL_READ_RETRY_ATTEMPTS", 5)
	v.SetDefault("ENROLL_READ_RETRY_INTERVAL", "5s")
	v.SetDefault("ENROLL_SCAN_LOCK_TTL", "5m")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_RETRIES", 3)

	v.SetDefault("PHOTO_STORAGE_DIR", "./photos")
	v.SetDefault("PHOTO_PUBLIC_BASE_URL", "http://localhost:8080/photos")
	v.SetDefault("PHOTO_SIGNED_URL_SECRET", "dev_photos_secret")
	v.SetDefault("PHOTO_SIGNED_URL_TTL", "24h")
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
