package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string // "production" or "development"
	MongoURI    string // Primary structured store

	// Local fallback store (development only)
	LocalStorePath   string // SQLite file path, empty disables the fallback
	LocalStoreWrites bool   // Explicit opt-in; never honored in production

	// Curation engine defaults
	DedupThreshold float64 // Similarity score above which passages are duplicates

	// Retention sweep for terminal buckets
	RetentionCron string // Standard 5-field cron expression
	RetentionDays int    // Terminal buckets older than this are purged

	SourcesFile string // Archive source registry (YAML)
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3002"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),
		MongoURI:    getEnv("MONGODB_URI", ""),

		LocalStorePath:   getEnv("LOCAL_STORE_PATH", ""),
		LocalStoreWrites: getBoolEnv("LOCAL_STORE_WRITES", false),

		DedupThreshold: getFloatEnv("DEDUP_THRESHOLD", 0.9),

		RetentionCron: getEnv("RETENTION_CRON", "0 2 * * *"),
		RetentionDays: getIntEnv("RETENTION_DAYS", 30),

		SourcesFile: getEnv("SOURCES_FILE", "sources.yaml"),
	}
}

// IsProduction reports whether the server runs in a production deployment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ArchiveSource describes one origin system passages can be harvested from
type ArchiveSource struct {
	System string `yaml:"system"` // Key used in passage source references
	Label  string `yaml:"label"`  // Human-readable display label
	Kind   string `yaml:"kind"`   // "journal", "notes", "email", "documents"
}

// SourcesConfig is the archive source registry loaded from sources.yaml
type SourcesConfig struct {
	Sources []ArchiveSource `yaml:"sources"`
}

// LoadSources loads the archive source registry from a YAML file
func LoadSources(filePath string) (*SourcesConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var cfg SourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	return &cfg, nil
}

// LabelFor returns the display label for an origin system, falling back to
// the system key itself when the registry has no entry.
func (s *SourcesConfig) LabelFor(system string) string {
	if s == nil {
		return system
	}
	for _, src := range s.Sources {
		if src.System == system {
			return src.Label
		}
	}
	return system
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// RetentionWindow converts the retention day count into a duration
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
