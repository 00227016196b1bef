// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment the server runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// DefaultDPDBaseURL is Health Canada's Drug Product Database API
const DefaultDPDBaseURL = "https://health-products.canada.ca/api/drug/"

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes
	HTMLDir           string
	TrustProxyOnly    bool
	CORSOrigins       []string // empty disables CORS headers

	// Drug Product Database gateway
	DPDBaseURL string
	DPDLang    string
	DPDTimeout time.Duration
	DPDRate    float64 // outbound requests per second
	DPDBurst   int64

	// Lookup engine
	LookupMaxResults  int
	LookupConcurrency int // 0 fetches every retained drug code at once

	// Sessions
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	MaxSessions          int

	// Inbound rate limiting
	RateLimitRate     float64
	RateLimitCapacity int64
}

// LoadEnvFile reads a .env file from the working directory, then from the executable directory.
// A missing file is not an error: the process environment is used as is.
func LoadEnvFile() {
	if err := godotenv.Load(); err == nil {
		return
	}

	ex, err := os.Executable()
	if err != nil {
		return
	}
	_ = godotenv.Load(filepath.Join(filepath.Dir(ex), ".env"))
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 65536),      // 64KB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default
		HTMLDir:           getEnvWithDefault("HTML_DIR", "html"),
		TrustProxyOnly:    getBoolEnvWithDefault("TRUST_PROXY_ONLY", false),
		CORSOrigins:       getListEnv("CORS_ALLOWED_ORIGINS"),

		DPDBaseURL: getEnvWithDefault("DPD_BASE_URL", DefaultDPDBaseURL),
		DPDLang:    getEnvWithDefault("DPD_LANG", "en"),
		DPDTimeout: getDurationEnvWithDefault("DPD_TIMEOUT", 30*time.Second),
		DPDRate:    getFloatEnvWithDefault("DPD_RATE", 50),
		DPDBurst:   getInt64EnvWithDefault("DPD_BURST", 200),

		LookupMaxResults:  getIntEnvWithDefault("LOOKUP_MAX_RESULTS", 100),
		LookupConcurrency: getIntEnvWithDefault("LOOKUP_CONCURRENCY", 0),

		SessionTTL:           getDurationEnvWithDefault("SESSION_TTL", 2*time.Hour),
		SessionSweepInterval: getDurationEnvWithDefault("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		MaxSessions:          getIntEnvWithDefault("MAX_SESSIONS", 10000),

		RateLimitRate:     getFloatEnvWithDefault("RATE_LIMIT_RATE", 5),
		RateLimitCapacity: getInt64EnvWithDefault("RATE_LIMIT_CAPACITY", 1000),
	}

	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}
	cfg.Env = env

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ParseEnvironment accepts the short and long names of each environment
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: %v, got: %s",
		[]Environment{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}, value)
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validateBaseURL(cfg.DPDBaseURL); err != nil {
		return fmt.Errorf("invalid DPD_BASE_URL: %w", err)
	}

	if cfg.DPDLang != "en" && cfg.DPDLang != "fr" {
		return fmt.Errorf("invalid DPD_LANG: must be en or fr, got: %s", cfg.DPDLang)
	}

	if cfg.DPDTimeout < 0 {
		return fmt.Errorf("invalid DPD_TIMEOUT: must not be negative, got: %s", cfg.DPDTimeout)
	}

	if cfg.DPDRate <= 0 || cfg.DPDBurst <= 0 {
		return fmt.Errorf("invalid DPD_RATE/DPD_BURST: must be positive, got: %v/%d", cfg.DPDRate, cfg.DPDBurst)
	}

	if cfg.LookupMaxResults < 1 || cfg.LookupMaxResults > 1000 {
		return fmt.Errorf("invalid LOOKUP_MAX_RESULTS: must be between 1 and 1000, got: %d", cfg.LookupMaxResults)
	}

	if cfg.LookupConcurrency < 0 {
		return fmt.Errorf("invalid LOOKUP_CONCURRENCY: must not be negative, got: %d", cfg.LookupConcurrency)
	}

	if cfg.SessionTTL < time.Minute {
		return fmt.Errorf("invalid SESSION_TTL: min 1m, got: %s", cfg.SessionTTL)
	}

	if cfg.SessionSweepInterval < time.Second {
		return fmt.Errorf("invalid SESSION_SWEEP_INTERVAL: min 1s, got: %s", cfg.SessionSweepInterval)
	}

	if cfg.MaxSessions < 1 {
		return fmt.Errorf("invalid MAX_SESSIONS: must be positive, got: %d", cfg.MaxSessions)
	}

	if cfg.RateLimitRate <= 0 || cfg.RateLimitCapacity <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_RATE/RATE_LIMIT_CAPACITY: must be positive, got: %v/%d", cfg.RateLimitRate, cfg.RateLimitCapacity)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	logLevel = strings.ToLower(logLevel)

	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateBaseURL checks that the gateway URL is an absolute http(s) URL
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

// getListEnv splits a comma-separated environment variable, dropping empty entries
func getListEnv(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault accepts Go durations ("90s", "2h")
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"HTML_DIR",
		"TRUST_PROXY_ONLY",
		"DPD_BASE_URL",
		"DPD_LANG",
		"DPD_TIMEOUT",
		"DPD_RATE",
		"DPD_BURST",
		"LOOKUP_MAX_RESULTS",
		"LOOKUP_CONCURRENCY",
		"SESSION_TTL",
		"SESSION_SWEEP_INTERVAL",
		"MAX_SESSIONS",
		"RATE_LIMIT_RATE",
		"RATE_LIMIT_CAPACITY",
	}
}
