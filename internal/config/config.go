package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalog-import-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// Server
	Port        string
	Environment string

	// Auth
	AuthToken string

	// Import settings
	BatchSize       int
	MaxErrorSamples int
	MaxUploadSize   int64
	UploadDir       string

	// Webhook settings
	WebhookTimeout     time.Duration
	WebhookMaxRetries  int
	WebhookRetryDelays []time.Duration

	// Bulk delete
	DeleteBatchSize int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	batchSize, _ := strconv.Atoi(getEnv("BATCH_SIZE", "1000"))
	maxErrorSamples, _ := strconv.Atoi(getEnv("MAX_ERROR_SAMPLES", "100"))
	maxUploadSize, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE", strconv.Itoa(500*1024*1024)), 10, 64)
	webhookTimeout, _ := strconv.Atoi(getEnv("WEBHOOK_TIMEOUT", "30"))
	webhookMaxRetries, _ := strconv.Atoi(getEnv("WEBHOOK_MAX_RETRIES", "5"))
	deleteBatchSize, _ := strconv.Atoi(getEnv("DELETE_BATCH_SIZE", "1000"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "catalog_import"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AuthToken: getEnv("AUTH_TOKEN", "dev-auth-token"),

		BatchSize:       batchSize,
		MaxErrorSamples: maxErrorSamples,
		MaxUploadSize:   maxUploadSize,
		UploadDir:       getEnv("UPLOAD_DIR", "/tmp/catalog-uploads"),

		WebhookTimeout:     time.Duration(webhookTimeout) * time.Second,
		WebhookMaxRetries:  webhookMaxRetries,
		WebhookRetryDelays: parseRetryDelays(getEnv("WEBHOOK_RETRY_DELAYS", "60,300,900,3600,7200")),

		DeleteBatchSize: deleteBatchSize,
	}
}

// parseRetryDelays parses a comma-separated list of delays in seconds.
// Malformed entries are dropped; an empty result falls back to one minute.
func parseRetryDelays(raw string) []time.Duration {
	var delays []time.Duration
	for _, part := range strings.Split(raw, ",") {
		seconds, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || seconds <= 0 {
			continue
		}
		delays = append(delays, time.Duration(seconds)*time.Second)
	}
	if len(delays) == 0 {
		delays = []time.Duration{time.Minute}
	}
	return delays
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.Product{},
		&models.ImportJob{},
		&models.Webhook{},
		&models.WebhookDelivery{},
	); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
