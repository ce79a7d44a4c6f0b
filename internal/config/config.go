package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/gemloyalty/internal/backup"
	"github.com/dukerupert/gemloyalty/internal/ledger"
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	Ledger ledger.Config

	AnalyticsInterval time.Duration
	// AdminTokenHash is a bcrypt hash of the staff bearer token. Empty
	// disables the admin routes.
	AdminTokenHash string
	// RedeemRateLimit is the number of redemption requests allowed per
	// account per minute.
	RedeemRateLimit int
	// FeedOrigins are extra host patterns allowed to open the websocket
	// feed cross-origin, such as the staff dashboard host.
	FeedOrigins []string

	Backup backup.Config
}

// Load reads LOYALTY_* variables from the environment, after loading a .env
// file from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	defaults := ledger.DefaultConfig()
	cfg := &Config{
		Port:           getEnv("LOYALTY_PORT", "8080"),
		DBPath:         getEnv("LOYALTY_DB_PATH", "loyalty.db"),
		LogLevel:       getEnv("LOYALTY_LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOYALTY_LOG_FORMAT", "text"),
		AdminTokenHash: os.Getenv("LOYALTY_ADMIN_TOKEN_HASH"),
		FeedOrigins:    splitList(os.Getenv("LOYALTY_FEED_ORIGINS")),
		Ledger: ledger.Config{
			RecentActivityLimit: defaults.RecentActivityLimit,
		},
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("LOYALTY_BACKUP_S3_ENDPOINT"),
				Bucket:    os.Getenv("LOYALTY_BACKUP_S3_BUCKET"),
				Region:    getEnv("LOYALTY_BACKUP_S3_REGION", "us-east-1"),
				AccessKey: os.Getenv("LOYALTY_BACKUP_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("LOYALTY_BACKUP_S3_SECRET_KEY"),
			},
			Passphrase: os.Getenv("LOYALTY_BACKUP_PASSPHRASE"),
			Prefix:     getEnv("LOYALTY_BACKUP_PREFIX", "ledger/"),
		},
	}

	var err error
	if cfg.Ledger.SurveyPoints, err = getEnvInt("LOYALTY_SURVEY_POINTS", defaults.SurveyPoints); err != nil {
		return nil, err
	}
	if cfg.Ledger.ReferralPoints, err = getEnvInt("LOYALTY_REFERRAL_POINTS", defaults.ReferralPoints); err != nil {
		return nil, err
	}
	if cfg.Ledger.ProfileBonus, err = getEnvInt("LOYALTY_PROFILE_BONUS", defaults.ProfileBonus); err != nil {
		return nil, err
	}
	if cfg.Ledger.DedupSurveys, err = getEnvBool("LOYALTY_DEDUP_SURVEYS", false); err != nil {
		return nil, err
	}
	if cfg.AnalyticsInterval, err = getEnvDuration("LOYALTY_ANALYTICS_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RedeemRateLimit, err = getEnvInt("LOYALTY_REDEEM_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	if cfg.Backup.Interval, err = getEnvDuration("LOYALTY_BACKUP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Backup.Retention, err = getEnvDuration("LOYALTY_BACKUP_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.Ledger.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if cfg.AnalyticsInterval <= 0 {
		return nil, fmt.Errorf("LOYALTY_ANALYTICS_INTERVAL must be positive, got %s", cfg.AnalyticsInterval)
	}
	if cfg.RedeemRateLimit <= 0 {
		return nil, fmt.Errorf("LOYALTY_REDEEM_RATE_LIMIT must be positive, got %d", cfg.RedeemRateLimit)
	}
	if cfg.Backup.S3.Bucket != "" && cfg.Backup.Passphrase == "" {
		return nil, fmt.Errorf("LOYALTY_BACKUP_PASSPHRASE is required when LOYALTY_BACKUP_S3_BUCKET is set")
	}
	if cfg.Backup.Interval <= 0 {
		return nil, fmt.Errorf("LOYALTY_BACKUP_INTERVAL must be positive, got %s", cfg.Backup.Interval)
	}
	if cfg.Backup.Retention < 0 {
		return nil, fmt.Errorf("LOYALTY_BACKUP_RETENTION must not be negative, got %s", cfg.Backup.Retention)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
