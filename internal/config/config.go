// Package config loads the mirror engine's configuration from the
// environment, rejecting any key not on the recognized allow-list.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// recognized is the exact set of environment keys the engine understands.
var recognized = map[string]bool{
	"SOURCE_API_KEY":           true,
	"SOURCE_API_SECRET":        true,
	"SOURCE_API_PASSPHRASE":    true,
	"MIRROR_API_KEY":           true,
	"MIRROR_API_SECRET":        true,
	"MIRROR_API_PASSPHRASE":    true,
	"MIRROR_ENABLED_DEFAULT":   true,
	"RATIO_DEFAULT":            true,
	"TRIGGER_SCAN_INTERVAL_MS": true,
	"POSITION_SYNC_INTERVAL_S": true,
	"MARGIN_GUARD_INTERVAL_S":  true,
	"NOTIFICATION_CHAT_ID":     true,
	"SOURCE_CONTRACT":          true,
	"MIRROR_CONTRACT":          true,
	"MINIMUM_MARGIN_USD":       true,
	"TELEGRAM_BOT_TOKEN":       true,
	"DATABASE_PATH":            true,
	"DEBUG":                    true,
	"API_RETRY_COUNT":          true,
	"API_TIMEOUT_S":            true,
	"DEFAULT_LEVERAGE":         true,
	"MAX_LEVERAGE":             true,
}

// Credentials holds one venue's API auth material.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Config is the mirror engine's full runtime configuration.
type Config struct {
	Debug bool

	SourceCredentials Credentials
	MirrorCredentials Credentials

	MirrorEnabledDefault bool
	RatioDefault         decimal.Decimal

	TriggerScanInterval   time.Duration
	PositionSyncInterval  time.Duration
	MarginGuardInterval   time.Duration

	NotificationChatID int64

	SourceContract string
	MirrorContract string

	MinimumMarginUSD decimal.Decimal

	TelegramBotToken string
	DatabasePath     string

	APIRetryCount   int
	APITimeout      time.Duration
	DefaultLeverage int
	MaxLeverage     int
}

// Load builds a Config from the process environment, validating every
// required field and rejecting any recognized-looking but unknown key.
func Load() (*Config, error) {
	if err := checkUnknownKeys(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		SourceCredentials: Credentials{
			APIKey:     os.Getenv("SOURCE_API_KEY"),
			APISecret:  os.Getenv("SOURCE_API_SECRET"),
			Passphrase: os.Getenv("SOURCE_API_PASSPHRASE"),
		},
		MirrorCredentials: Credentials{
			APIKey:     os.Getenv("MIRROR_API_KEY"),
			APISecret:  os.Getenv("MIRROR_API_SECRET"),
			Passphrase: os.Getenv("MIRROR_API_PASSPHRASE"),
		},

		MirrorEnabledDefault: getEnvBool("MIRROR_ENABLED_DEFAULT", false),
		RatioDefault:         getEnvDecimal("RATIO_DEFAULT", decimal.NewFromFloat(1.0)),

		TriggerScanInterval:  getEnvDurationMS("TRIGGER_SCAN_INTERVAL_MS", 200*time.Millisecond),
		PositionSyncInterval: getEnvDurationS("POSITION_SYNC_INTERVAL_S", 30*time.Second),
		MarginGuardInterval:  getEnvDurationS("MARGIN_GUARD_INTERVAL_S", 5*time.Minute),

		SourceContract: getEnv("SOURCE_CONTRACT", ""),
		MirrorContract: getEnv("MIRROR_CONTRACT", ""),

		MinimumMarginUSD: getEnvDecimal("MINIMUM_MARGIN_USD", decimal.NewFromInt(5)),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:     getEnv("DATABASE_PATH", "data/mirrorengine.db"),

		APIRetryCount:   getEnvInt("API_RETRY_COUNT", 3),
		APITimeout:      getEnvDurationS("API_TIMEOUT_S", 30*time.Second),
		DefaultLeverage: getEnvInt("DEFAULT_LEVERAGE", 20),
		MaxLeverage:     getEnvInt("MAX_LEVERAGE", 50),
	}

	if chatID := os.Getenv("NOTIFICATION_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFICATION_CHAT_ID: %w", err)
		}
		cfg.NotificationChatID = id
	}

	if cfg.SourceCredentials.APIKey == "" || cfg.SourceCredentials.APISecret == "" {
		return nil, fmt.Errorf("source_api_credentials (SOURCE_API_KEY/SOURCE_API_SECRET) are required")
	}
	if cfg.MirrorCredentials.APIKey == "" || cfg.MirrorCredentials.APISecret == "" {
		return nil, fmt.Errorf("mirror_api_credentials (MIRROR_API_KEY/MIRROR_API_SECRET) are required")
	}
	if cfg.SourceContract == "" {
		return nil, fmt.Errorf("SOURCE_CONTRACT is required")
	}
	if cfg.MirrorContract == "" {
		return nil, fmt.Errorf("MIRROR_CONTRACT is required")
	}
	if cfg.RatioDefault.LessThan(decimal.NewFromFloat(0.1)) || cfg.RatioDefault.GreaterThan(decimal.NewFromFloat(10.0)) {
		return nil, fmt.Errorf("RATIO_DEFAULT must be in [0.1, 10.0], got %s", cfg.RatioDefault)
	}

	return cfg, nil
}

// checkUnknownKeys rejects any set environment variable that looks like ours
// (by prefix) but isn't on the recognized allow-list.
func checkUnknownKeys() error {
	ourLikely := []string{"SOURCE_", "MIRROR_", "RATIO_", "TRIGGER_", "POSITION_", "MARGIN_", "NOTIFICATION_", "MINIMUM_", "API_", "DEFAULT_", "MAX_"}
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if recognized[key] {
			continue
		}
		for _, p := range ourLikely {
			if strings.HasPrefix(key, p) {
				return fmt.Errorf("unrecognized configuration option %q", key)
			}
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationMS(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvDurationS(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if s, err := strconv.Atoi(value); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
