package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the marketplace service.
type Config struct {
	Port    string
	AppEnv  string
	SiteURL string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeSecretKey     string
	StripeWebhookSecret string

	MarketplaceSNSTopicARN  string // SNS topic for purchase/sale/allocation events
	AllocationRetryQueueURL string // SQS queue for failed allocations; empty disables retry
	DatasetsBucket          string
	DownloadURLTTL          time.Duration

	AllowedOrigins      []string
	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string
}

// LoadConfig reads configuration from the environment (and a .env file when
// present), with an optional Secrets Manager override for credentials.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	ttl, err := time.ParseDuration(getEnv("DOWNLOAD_URL_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DOWNLOAD_URL_TTL: %w", err)
	}

	cfg := &Config{
		Port:                    getEnv("PORT", "8088"),
		AppEnv:                  getEnv("APP_ENV", "development"),
		SiteURL:                 strings.TrimSuffix(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		PostgresUser:            os.Getenv("POSTGRES_USER"),
		PostgresPassword:        os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:              os.Getenv("POSTGRES_DB"),
		PostgresHost:            getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:            getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:        getEnv("POSTGRES_TIMEZONE", "UTC"),
		StripeSecretKey:         os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		MarketplaceSNSTopicARN:  os.Getenv("MARKETPLACE_SNS_TOPIC_ARN"),
		AllocationRetryQueueURL: os.Getenv("ALLOCATION_RETRY_QUEUE_URL"),
		DatasetsBucket:          getEnv("DATASETS_BUCKET", "datasets"),
		DownloadURLTTL:          ttl,
		AllowedOrigins:          splitList(os.Getenv("ALLOWED_ORIGINS")),
		CloudWatchEnabled:       getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchNamespace:     getEnv("CLOUDWATCH_NAMESPACE", "Marketplace"),
		CloudWatchLogGroup:      getEnv("CLOUDWATCH_LOG_GROUP", "/marketplace/services"),
	}

	if getBool("AWS_USE_SECRETS", false) {
		if err := cfg.applySecrets(context.Background()); err != nil {
			log.Printf("Secrets Manager override skipped: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"POSTGRES_USER", c.PostgresUser},
		{"POSTGRES_PASSWORD", c.PostgresPassword},
		{"POSTGRES_DB", c.PostgresDB},
		{"STRIPE_API_KEY", c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required environment variable %s", r.key)
		}
	}
	return nil
}

// PostgresDSN builds the gorm/pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone)
}

func (c *Config) applySecrets(ctx context.Context) error {
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		return err
	}
	sm := aws_pkg.NewSecretsClient(awsCfg)

	if m, err := sm.GetSecretMap(ctx, "marketplace/DB_CREDENTIALS"); err == nil {
		overrideFrom(m, "POSTGRES_USER", &c.PostgresUser)
		overrideFrom(m, "POSTGRES_PASSWORD", &c.PostgresPassword)
		overrideFrom(m, "POSTGRES_DB", &c.PostgresDB)
		overrideFrom(m, "POSTGRES_HOST", &c.PostgresHost)
		overrideFrom(m, "POSTGRES_PORT", &c.PostgresPort)
	} else {
		log.Printf("DB credentials secret not loaded: %v", err)
	}

	if m, err := sm.GetSecretMap(ctx, "marketplace/STRIPE"); err == nil {
		overrideFrom(m, "STRIPE_API_KEY", &c.StripeSecretKey)
		overrideFrom(m, "STRIPE_WEBHOOK_SECRET", &c.StripeWebhookSecret)
	} else {
		log.Printf("Stripe secret not loaded: %v", err)
	}
	return nil
}

func overrideFrom(m map[string]string, key string, dst *string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(strings.TrimSuffix(part, "/")); part != "" {
			out = append(out, part)
		}
	}
	return out
}
