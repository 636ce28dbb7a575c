// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// Telegram
	BotToken       string
	AllowedUserIDs []int64 // empty admits everyone

	// Logging
	Env       string
	LogLevel  string
	LogFormat string

	// Delivery limits
	MaxFileSize    int64
	SendRetries    int
	SendRetryDelay time.Duration

	// Worker Pool
	MaxWorkers   int
	MaxQueueSize int

	// Rate Limiting
	RateLimitRPM   int
	RateLimitBurst int

	// Status HTTP server (empty port disables it)
	StatusPort     string
	AllowedOrigins []string

	// Cleanup
	CleanupInterval time.Duration
	MaxFileAge      time.Duration
	HistoryMaxAge   time.Duration

	// R2 Storage (optional oversize fallback)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string
	R2MaxFileAge      time.Duration

	// Paths and binaries
	DownloadDir string
	DataDir     string
	YtDlpPath   string
	FFmpegPath  string
}

// Load loads configuration from environment variables. The bot token is
// the only mandatory value.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		AllowedUserIDs: getEnvInt64Slice("ALLOWED_USER_IDS"),

		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MaxFileSize:    int64(getEnvInt("MAX_FILE_SIZE_MB", 50)) * 1024 * 1024,
		SendRetries:    getEnvInt("SEND_RETRIES", 3),
		SendRetryDelay: time.Duration(getEnvInt("SEND_RETRY_DELAY_SECONDS", 2)) * time.Second,

		MaxWorkers:   getEnvInt("MAX_WORKERS", 3),
		MaxQueueSize: getEnvInt("MAX_QUEUE_SIZE", 10),

		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 2),

		StatusPort:     getEnv("STATUS_PORT", ""),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_MINUTES", 15)) * time.Minute,
		MaxFileAge:      time.Duration(getEnvInt("MAX_FILE_AGE_MINUTES", 60)) * time.Minute,
		HistoryMaxAge:   time.Duration(getEnvInt("HISTORY_MAX_AGE_DAYS", 30)) * 24 * time.Hour,

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		R2MaxFileAge:      time.Duration(getEnvInt("R2_MAX_FILE_AGE_MINUTES", 1440)) * time.Minute,

		DownloadDir: getEnv("DOWNLOAD_DIR", "./downloads"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		YtDlpPath:   getEnv("YT_DLP_PATH", "yt-dlp"),
		FFmpegPath:  getEnv("FFMPEG_PATH", ""),
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is required")
	}

	return cfg, nil
}

// R2Enabled reports whether the oversize upload fallback is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64Slice(key string) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			slog.Warn("Ignoring invalid user ID in allow-list", "value", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
