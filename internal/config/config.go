package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the job client.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Polling  PollingConfig  `yaml:"polling"`
	Audio    AudioConfig    `yaml:"audio"`
	Identity IdentityConfig `yaml:"identity"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Events   EventsConfig   `yaml:"events"`
}

type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type AudioConfig struct {
	RecorderCommand string        `yaml:"recorder_command"`
	InputFormat     string        `yaml:"input_format"`
	InputDevice     string        `yaml:"input_device"`
	SampleRate      int           `yaml:"sample_rate"`
	Channels        int           `yaml:"channels"`
	MaxDuration     time.Duration `yaml:"max_duration"`
}

type IdentityConfig struct {
	Path           string `yaml:"path"`
	InstallationID string `yaml:"installation_id"`
}

type JobsConfig struct {
	DefaultProvider string `yaml:"default_provider"`
	AutoCopy        bool   `yaml:"auto_copy"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type EventsConfig struct {
	Addr string `yaml:"addr"`
}

// Load resolves configuration from the file named by VOXJOB_CONFIG (if any),
// environment variables and defaults.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("VOXJOB_CONFIG"))
}

// LoadFrom resolves configuration from an optional YAML file. Environment
// variables override values from the file.
func LoadFrom(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	file, err := readFile(strings.TrimSpace(path))
	if err != nil {
		return Config{}, err
	}

	defaultIdentity := filepath.Join(home, ".config", "voxjob", "installation-id")

	cfg := Config{
		Backend: BackendConfig{
			BaseURL:    envOrDefault("VOXJOB_BACKEND_URL", firstNonEmpty(file.Backend.BaseURL, "http://localhost:8000")),
			APIVersion: envOrDefault("VOXJOB_API_VERSION", firstNonEmpty(file.Backend.APIVersion, "1.0.0")),
			Timeout:    envOrDefaultMillis("VOXJOB_BACKEND_TIMEOUT_MS", durationOr(file.Backend.Timeout, 30*time.Second)),
		},
		Polling: PollingConfig{
			Interval: envOrDefaultMillis("VOXJOB_POLL_INTERVAL_MS", durationOr(file.Polling.Interval, 2*time.Second)),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("VOXJOB_FFMPEG_COMMAND", firstNonEmpty(file.Audio.RecorderCommand, "ffmpeg")),
			InputFormat:     envOrDefault("VOXJOB_AUDIO_INPUT_FORMAT", firstNonEmpty(file.Audio.InputFormat, "pulse")),
			InputDevice: firstNonEmpty(
				os.Getenv("VOXJOB_AUDIO_INPUT_DEVICE"),
				file.Audio.InputDevice,
				"default",
			),
			SampleRate:  envOrDefaultInt("VOXJOB_SAMPLE_RATE", intOr(file.Audio.SampleRate, 48000)),
			Channels:    envOrDefaultInt("VOXJOB_CHANNELS", intOr(file.Audio.Channels, 1)),
			MaxDuration: envOrDefaultMillis("VOXJOB_MAX_RECORDING_MS", durationOr(file.Audio.MaxDuration, 10*time.Second)),
		},
		Identity: IdentityConfig{
			Path:           envOrDefault("VOXJOB_IDENTITY_FILE", firstNonEmpty(file.Identity.Path, defaultIdentity)),
			InstallationID: envOrDefault("VOXJOB_INSTALLATION_ID", strings.TrimSpace(file.Identity.InstallationID)),
		},
		Jobs: JobsConfig{
			DefaultProvider: strings.ToLower(envOrDefault("VOXJOB_PROVIDER", firstNonEmpty(file.Jobs.DefaultProvider, "openai"))),
			AutoCopy:        envOrDefaultBool("VOXJOB_AUTO_COPY", file.Jobs.AutoCopy),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(envOrDefault("VOXJOB_LOG_LEVEL", firstNonEmpty(file.Logging.Level, "info"))),
			Format: strings.ToLower(envOrDefault("VOXJOB_LOG_FORMAT", firstNonEmpty(file.Logging.Format, "text"))),
			Output: envOrDefault("VOXJOB_LOG_OUTPUT", firstNonEmpty(file.Logging.Output, "stderr")),
		},
		Metrics: MetricsConfig{
			Addr: envOrDefault("VOXJOB_METRICS_ADDR", strings.TrimSpace(file.Metrics.Addr)),
		},
		Events: EventsConfig{
			Addr: envOrDefault("VOXJOB_EVENTS_ADDR", strings.TrimSpace(file.Events.Addr)),
		},
	}

	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 2 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.MaxDuration <= 0 {
		cfg.Audio.MaxDuration = 10 * time.Second
	}

	return cfg, nil
}

func readFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return file, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func durationOr(value time.Duration, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func intOr(value int, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
