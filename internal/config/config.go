package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AzureDevOpsConfig holds the connection settings for one organization.
// The PAT comes from the environment only; it is never read from or written
// to any configuration file.
type AzureDevOpsConfig struct {
	OrgURL    string
	Project   string
	PAT       string
	RateLimit float64 // requests per second across all workers
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	AzureDevOps AzureDevOpsConfig
	DataDir     string
	ConfigDir   string
	LogDir      string
}

// ConfigError marks configuration problems that should abort the run.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for installed binaries)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve data paths
	dataDir := os.Getenv("ADOFLOW_DATA_DIR")
	if dataDir == "" {
		if exeDir != "" {
			dataDir = exeDir
		} else {
			dataDir = "."
		}
	}

	configDir := getEnv("ADOFLOW_CONFIG_DIR", filepath.Join(dataDir, "config"))
	logDir := getEnv("ADOFLOW_LOG_DIR", filepath.Join(dataDir, "logs"))

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", dataDir).Msg("Failed to create data directory")
	}

	cfg := &AppConfig{
		AzureDevOps: AzureDevOpsConfig{
			OrgURL:    strings.TrimRight(getEnv("AZURE_DEVOPS_ORG_URL", ""), "/"),
			Project:   getEnv("AZURE_DEVOPS_PROJECT", ""),
			PAT:       getEnv("AZURE_DEVOPS_PAT", ""),
			RateLimit: getEnvFloat("ADOFLOW_RATE_LIMIT", 10),
		},
		DataDir:   dataDir,
		ConfigDir: configDir,
		LogDir:    logDir,
	}

	return cfg, nil
}

// RequireAzureDevOps reports a ConfigError when any connection setting that
// fetch, sync, or refresh needs is absent.
func (c *AppConfig) RequireAzureDevOps() error {
	var missing []string
	if c.AzureDevOps.OrgURL == "" {
		missing = append(missing, "AZURE_DEVOPS_ORG_URL")
	}
	if c.AzureDevOps.Project == "" {
		missing = append(missing, "AZURE_DEVOPS_PROJECT")
	}
	if c.AzureDevOps.PAT == "" {
		missing = append(missing, "AZURE_DEVOPS_PAT")
	}
	if len(missing) > 0 {
		return NewConfigError("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-positive or malformed numeric setting")
	}
	return fallback
}
