package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"physio-predictor/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port            int
	MetricsEnabled  bool
	ArtifactsDir    string
	BundlePath      string // when set, artifacts are read from this bbolt bundle
	ModelBackend    string
	RemoteModelURL  string
	RemoteTimeout   time.Duration
	MaxUploadBytes  int64
	TopK            int
	StrictCells     bool // reject recordings with unreadable cells
	LogLevel        string
	ShutdownTimeout time.Duration
}

type ConfigFile struct {
	Server struct {
		Port            int    `yaml:"port"`
		MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		MetricsEnabled  *bool  `yaml:"metricsEnabled"`
	} `yaml:"server"`

	Model struct {
		ArtifactsDir  string `yaml:"artifactsDir"`
		BundlePath    string `yaml:"bundlePath"`
		Backend       string `yaml:"backend"`
		RemoteURL     string `yaml:"remoteURL"`
		RemoteTimeout string `yaml:"remoteTimeout"`
	} `yaml:"model"`

	Inference struct {
		TopK        int  `yaml:"topK"`
		StrictCells bool `yaml:"strictCells"`
	} `yaml:"inference"`

	System struct {
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads a .env file when present, then the YAML file named by
// CONFIG_FILE or, without one, the environment alone.
func Load() (Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	metricsEnabled := true
	if config.Server.MetricsEnabled != nil {
		metricsEnabled = *config.Server.MetricsEnabled
	}

	// Environment variables override the file
	settings := Settings{
		Port:            getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		MetricsEnabled:  getBoolFromEnvOrConfig(common.EnvMetricsEnabled, metricsEnabled),
		ArtifactsDir:    getEnvOrDefault(common.EnvArtifactsDir, orDefault(config.Model.ArtifactsDir, common.DefaultArtifactsDir)),
		BundlePath:      getEnvOrDefault(common.EnvBundlePath, config.Model.BundlePath),
		ModelBackend:    getEnvOrDefault(common.EnvModelBackend, orDefault(config.Model.Backend, common.DefaultModelBackend)),
		RemoteModelURL:  getEnvOrDefault(common.EnvRemoteModelURL, config.Model.RemoteURL),
		RemoteTimeout:   getDurationFromEnvOrConfig(common.EnvRemoteTimeout, config.Model.RemoteTimeout, common.DefaultRemoteTimeout),
		MaxUploadBytes:  getInt64FromEnvOrConfig(common.EnvMaxUploadBytes, config.Server.MaxUploadBytes, common.DefaultMaxUploadBytes),
		TopK:            getIntFromEnvOrConfig(common.EnvTopK, config.Inference.TopK, common.DefaultTopK),
		StrictCells:     getBoolFromEnvOrConfig(common.EnvStrictCells, config.Inference.StrictCells),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		ShutdownTimeout: getDurationFromEnvOrConfig(common.EnvShutdownTimeout, config.Server.ShutdownTimeout, common.DefaultShutdownTimeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Port:            getIntOrDefault(common.EnvPort, common.DefaultPort),
		MetricsEnabled:  getBoolOrDefault(common.EnvMetricsEnabled, true),
		ArtifactsDir:    getEnvOrDefault(common.EnvArtifactsDir, common.DefaultArtifactsDir),
		BundlePath:      os.Getenv(common.EnvBundlePath), // optional
		ModelBackend:    getEnvOrDefault(common.EnvModelBackend, common.DefaultModelBackend),
		RemoteModelURL:  os.Getenv(common.EnvRemoteModelURL),
		RemoteTimeout:   getDurationOrDefault(common.EnvRemoteTimeout, mustDuration(common.DefaultRemoteTimeout)),
		MaxUploadBytes:  int64(getIntOrDefault(common.EnvMaxUploadBytes, common.DefaultMaxUploadBytes)),
		TopK:            getIntOrDefault(common.EnvTopK, common.DefaultTopK),
		StrictCells:     getBoolOrDefault(common.EnvStrictCells, false),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		ShutdownTimeout: getDurationOrDefault(common.EnvShutdownTimeout, mustDuration(common.DefaultShutdownTimeout)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Level returns the zerolog level for LogLevel.
func (s *Settings) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

func getDurationFromEnvOrConfig(key, configValue, defaultValue string) time.Duration {
	if env := os.Getenv(key); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			return d
		}
	}
	if d, err := time.ParseDuration(configValue); err == nil {
		return d
	}
	return mustDuration(defaultValue)
}

// validateSettings performs range checks on every setting
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}

	switch settings.ModelBackend {
	case common.BackendSoftmax:
		if settings.ArtifactsDir == "" && settings.BundlePath == "" {
			return fmt.Errorf("an artifacts directory or bundle path is required")
		}
	case common.BackendRemote:
		if settings.RemoteModelURL == "" {
			return fmt.Errorf("remote model URL is required for the %s backend", common.BackendRemote)
		}
		if !strings.HasPrefix(settings.RemoteModelURL, "http://") && !strings.HasPrefix(settings.RemoteModelURL, "https://") {
			return fmt.Errorf("remote model URL must be http(s), got %q", settings.RemoteModelURL)
		}
	default:
		return fmt.Errorf("model backend must be %q or %q, got %q", common.BackendSoftmax, common.BackendRemote, settings.ModelBackend)
	}

	if settings.RemoteTimeout < 100*time.Millisecond || settings.RemoteTimeout > time.Minute {
		return fmt.Errorf("remote model timeout must be between 100ms and 1m, got %v", settings.RemoteTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	if settings.MaxUploadBytes < common.MinMaxUploadBytes || settings.MaxUploadBytes > common.MaxMaxUploadBytes {
		return fmt.Errorf("max upload bytes must be between %d and %d, got %d",
			common.MinMaxUploadBytes, common.MaxMaxUploadBytes, settings.MaxUploadBytes)
	}
	if settings.TopK < common.MinTopK || settings.TopK > common.MaxTopK {
		return fmt.Errorf("top-k must be between %d and %d, got %d", common.MinTopK, common.MaxTopK, settings.TopK)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	return nil
}
