// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the cache database and exports (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	CacheTTL     time.Duration // Fetch-cache entry lifetime
	FetchTimeout time.Duration // Per-symbol upstream fetch timeout

	PermissionsFile string // Optional YAML module-permission table; defaults apply when empty

	AlphaVantageAPIKey string
	IEXToken           string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible snapshot backup configuration.
// Works against AWS S3 and Cloudflare R2 (custom endpoint).
type BackupConfig struct {
	Enabled   bool
	Endpoint  string // Empty for AWS S3, custom URL for R2
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Schedule  string // Cron spec; empty disables the scheduled job (manual trigger stays available)
	Keep      int    // Number of snapshots to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADEPULSE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port, err := getEnvInt("TRADEPULSE_PORT", 8086)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvInt("TRADEPULSE_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	if cacheTTL <= 0 {
		return nil, fmt.Errorf("TRADEPULSE_CACHE_TTL_SECONDS must be positive, got %d", cacheTTL)
	}

	fetchTimeout, err := getEnvInt("TRADEPULSE_FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	if fetchTimeout <= 0 {
		return nil, fmt.Errorf("TRADEPULSE_FETCH_TIMEOUT_SECONDS must be positive, got %d", fetchTimeout)
	}

	backupKeep, err := getEnvInt("TRADEPULSE_BACKUP_KEEP", 7)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               port,
		LogLevel:           getEnv("TRADEPULSE_LOG_LEVEL", "info"),
		DevMode:            getEnv("TRADEPULSE_DEV_MODE", "") == "true",
		CacheTTL:           time.Duration(cacheTTL) * time.Second,
		FetchTimeout:       time.Duration(fetchTimeout) * time.Second,
		PermissionsFile:    getEnv("TRADEPULSE_PERMISSIONS_FILE", ""),
		AlphaVantageAPIKey: getEnv("ALPHAVANTAGE_API_KEY", ""),
		IEXToken:           getEnv("IEX_CLOUD_TOKEN", ""),
		Backup: &BackupConfig{
			Enabled:   getEnv("TRADEPULSE_BACKUP_ENABLED", "") == "true",
			Endpoint:  getEnv("TRADEPULSE_BACKUP_ENDPOINT", ""),
			Region:    getEnv("TRADEPULSE_BACKUP_REGION", "auto"),
			Bucket:    getEnv("TRADEPULSE_BACKUP_BUCKET", ""),
			AccessKey: getEnv("TRADEPULSE_BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("TRADEPULSE_BACKUP_SECRET_KEY", ""),
			Schedule:  getEnv("TRADEPULSE_BACKUP_SCHEDULE", ""),
			Keep:      backupKeep,
		},
	}

	if cfg.Backup.Enabled && cfg.Backup.Bucket == "" {
		return nil, fmt.Errorf("backup enabled but TRADEPULSE_BACKUP_BUCKET is not set")
	}

	return cfg, nil
}

// CacheDBPath returns the path of the SQLite fetch-cache database.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// ExportDir returns the directory dataset exports are written to.
func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return n, nil
}
