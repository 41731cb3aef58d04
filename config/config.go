package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"wagerbot/database"
)

// Ledger store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Telegram configuration
	TelegramToken         string
	TelegramWebhookSecret string // Echoed by Telegram in X-Telegram-Bot-Api-Secret-Token
	WebhookBaseURL        string // Public base URL Telegram and YooKassa call back to; empty means long polling

	// HTTP server configuration
	HTTPAddr string

	// Database configuration
	DatabaseURL  string
	DatabaseName string
	LedgerStore  string        // "postgres" or "memory"
	LockTimeout  time.Duration // Upper bound on any row lock wait

	// YooKassa configuration
	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string
	YooKassaAPIURL    string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)
	NATSEnabled bool

	// Logging configuration
	LogLevel  string
	LogFormat string // "json" or "text"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL combines the base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// UsesWebhook reports whether Telegram updates arrive by webhook instead of polling
func (c *Config) UsesWebhook() bool {
	return c.WebhookBaseURL != ""
}

// PaymentsEnabled reports whether YooKassa credentials are present
func (c *Config) PaymentsEnabled() bool {
	return c.YooKassaShopID != "" && c.YooKassaSecretKey != ""
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		WebhookBaseURL:        strings.TrimRight(os.Getenv("WEBHOOK_BASE_URL"), "/"),

		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),
		LedgerStore:  getEnvWithDefault("LEDGER_STORE", StorePostgres),
		LockTimeout:  5 * time.Second,

		YooKassaShopID:    os.Getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey: os.Getenv("YOOKASSA_SECRET_KEY"),
		YooKassaReturnURL: os.Getenv("YOOKASSA_RETURN_URL"),
		YooKassaAPIURL:    getEnvWithDefault("YOOKASSA_API_URL", "https://api.yookassa.ru/v3"),

		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		NATSEnabled: os.Getenv("NATS_ENABLED") == "true",

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if timeout := os.Getenv("LOCK_TIMEOUT"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("LOCK_TIMEOUT must be a positive duration, got %q", timeout)
		}
		config.LockTimeout = parsed
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.LedgerStore {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("LEDGER_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.LedgerStore)
	}

	if c.Environment == "test" {
		return nil
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.LedgerStore == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if (c.YooKassaShopID == "") != (c.YooKassaSecretKey == "") {
		return fmt.Errorf("YOOKASSA_SHOP_ID and YOOKASSA_SECRET_KEY must be set together")
	}
	if c.PaymentsEnabled() && c.YooKassaReturnURL == "" {
		return fmt.Errorf("YOOKASSA_RETURN_URL is required when payments are enabled")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment: "test",
		HTTPAddr:    ":0",
		LedgerStore: StoreMemory,
		LockTimeout: time.Second,
		LogLevel:    "debug",
		LogFormat:   "text",
	}
}
