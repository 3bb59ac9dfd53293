package configs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/apilens/apilens/internal/domain"
)

// IntrospectionTarget is a pre-configured API to introspect on startup.
type IntrospectionTarget struct {
	URL      string            `yaml:"url"`
	Protocol string            `yaml:"protocol,omitempty"` // rest, graphql or websocket; empty means auto-detect
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	Targets []interface{} `yaml:"targets"`
}

// Config holds the final application configuration, merged from file and environment variables.
// Fields are loaded from environment variables with the prefix "APILENS_", potentially overriding file settings.
type Config struct {
	// Config File Path (Loaded first from env)
	ConfigFilePath string `envconfig:"CONFIG_FILE"`

	// File-loaded fields (merged)
	Targets []IntrospectionTarget // Loaded from FileConfig

	// Environment-overridable fields
	ListenAddr               string        `envconfig:"LISTEN_ADDR" default:":8080"`
	HTTPClientTimeout        time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	ShutdownTimeout          time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"5s"`
	ServerWriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ServerIdleTimeout        time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	OtelExporterOtlpEndpoint string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool          `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel                 string        `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StorageBackend         string        `envconfig:"STORAGE_BACKEND" default:"memory"`
	StorageDir             string        `envconfig:"STORAGE_DIR" default:"data/schemas"`
	StorageBackups         bool          `envconfig:"STORAGE_BACKUPS" default:"false"`
	StorageBackupRetention int           `envconfig:"STORAGE_BACKUP_RETENTION" default:"5"`
	StorageMaxSchemas      int           `envconfig:"STORAGE_MAX_SCHEMAS" default:"0"`
	StorageMaxAge          time.Duration `envconfig:"STORAGE_MAX_AGE" default:"0s"`
	AutoSave               bool          `envconfig:"AUTO_SAVE" default:"true"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration first from environment variables (to get file path),
// then from the specified YAML file, and finally merges/overrides with environment variables again.
func Load() (*Config, error) {
	// 1. Load initial config from Env (primarily to get ConfigFilePath)
	var initialCfg Config
	if err := envconfig.Process("apilens", &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	// 2. Load config from YAML file if path is specified
	fileCfg := FileConfig{}
	if initialCfg.ConfigFilePath != "" {
		yamlFile, err := os.ReadFile(initialCfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		if err := yaml.Unmarshal(yamlFile, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file '%s': %w", initialCfg.ConfigFilePath, err)
		}
		slog.Info("Loaded configuration from file.", "path", initialCfg.ConfigFilePath)
	}

	// 3. Create final config, starting with file values, then process Env vars again for overrides.
	finalCfg := initialCfg

	// Parse targets - support both string and object formats
	finalCfg.Targets = make([]IntrospectionTarget, 0, len(fileCfg.Targets))
	for _, target := range fileCfg.Targets {
		switch v := target.(type) {
		case string:
			// Simple string format
			finalCfg.Targets = append(finalCfg.Targets, IntrospectionTarget{URL: v})
		case map[string]interface{}:
			// Object format with protocol and headers
			it := IntrospectionTarget{}
			if url, ok := v["url"].(string); ok {
				it.URL = url
			}
			if protocol, ok := v["protocol"].(string); ok {
				it.Protocol = protocol
			}
			if headers, ok := v["headers"].(map[string]interface{}); ok {
				it.Headers = make(map[string]string)
				for k, val := range headers {
					if strVal, ok := val.(string); ok {
						it.Headers[k] = strVal
					}
				}
			}
			if it.URL == "" {
				slog.Warn("Ignoring target without url", "target", v)
				continue
			}
			if it.Protocol != "" && !domain.Protocol(it.Protocol).IsValid() {
				slog.Warn("Target has unknown protocol, will auto-detect instead", "url", it.URL, "protocol", it.Protocol)
				it.Protocol = ""
			}
			finalCfg.Targets = append(finalCfg.Targets, it)
		default:
			slog.Warn("Ignoring invalid target format", "target", target)
		}
	}

	// Process environment variables AGAIN to allow overrides over file settings.
	if err := envconfig.Process("apilens", &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}

	return &finalCfg, nil
}
