package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Persistence
	DataBackend  string
	SQLiteDBPath string
	DataDir      string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string
	MirrorResyncOnStart bool

	// AI gateway
	GeminiAPIKey     string
	GeminiModelPro   string
	GeminiModelFlash string
	AIGatewayURL     string
	AIGatewayTimeout time.Duration
	AIGatewayEnabled bool

	// Limits and caching
	CSVMaxBytes   int64
	ViewCacheSize int
	ViewCacheTTL  time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/zenbudget.db"),
		DataDir:      getEnv("DATA_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "zenbudget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "mirror_transactions"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		MirrorResyncOnStart: getEnvBool("MIRROR_RESYNC_ON_START", false),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModelPro:   getEnv("GEMINI_MODEL_PRO", "gemini-1.5-pro"),
		GeminiModelFlash: getEnv("GEMINI_MODEL_FLASH", "gemini-1.5-flash"),
		AIGatewayURL:     getEnv("AI_GATEWAY_URL", ""),
		AIGatewayTimeout: getEnvDuration("AI_GATEWAY_TIMEOUT", 60*time.Second),
		AIGatewayEnabled: getEnvBool("AI_GATEWAY_ENABLED", true),

		CSVMaxBytes:   int64(getEnvInt("CSV_MAX_BYTES", 1<<20)),
		ViewCacheSize: getEnvInt("VIEW_CACHE_SIZE", 64),
		ViewCacheTTL:  getEnvDuration("VIEW_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AIGatewayURL != "" {
		if parsedURL, err := url.Parse(c.AIGatewayURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AI gateway URL '%s': %v", c.AIGatewayURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid AI gateway URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.AIGatewayTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid AI gateway timeout %v: must be at least 1 second", c.AIGatewayTimeout))
	}
	if c.GeminiModelPro == "" || c.GeminiModelFlash == "" {
		errors = append(errors, "Gemini model names cannot be empty")
	}

	if c.CSVMaxBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid CSV max bytes %d: must be positive", c.CSVMaxBytes))
	}
	if c.ViewCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid view cache size %d: must be at least 1", c.ViewCacheSize))
	}
	if c.ViewCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid view cache TTL %v: must be at least 1 second", c.ViewCacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateMirror checks the settings the spreadsheet mirror worker needs on
// top of Validate.
func (c *Config) ValidateMirror() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for the mirror worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required for the mirror worker")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name cannot be empty")
	}
	if len(errors) > 0 {
		return fmt.Errorf("mirror configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// AIMode reports how the advisor reaches the model: "remote" through
// AIGatewayURL, "local" with an in-process Gemini client, or "disabled".
func (c *Config) AIMode() string {
	switch {
	case c.AIGatewayURL != "":
		return "remote"
	case c.GeminiAPIKey != "":
		return "local"
	default:
		return "disabled"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
