package state

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexGustafsson/relay/internal/completion"
	"github.com/AlexGustafsson/relay/internal/instructions"
	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen string `yaml:"listen" env:"RELAY_LISTEN"`

	// InstructionBaseURL is the location instruction documents are fetched
	// from.
	InstructionBaseURL string `yaml:"instructionBaseUrl" env:"RELAY_INSTRUCTION_BASE_URL"`
	// MergeMode is used for activations not specifying one.
	MergeMode string `yaml:"mergeMode" env:"RELAY_MERGE_MODE"`

	Ollama     *OllamaConfig     `yaml:"ollama,omitempty"`
	Prometheus *PrometheusConfig `yaml:"prometheus,omitempty"`

	LogLevel slog.Level `yaml:"logLevel" env:"LOG_LEVEL"`
}

type OllamaConfig struct {
	Enabled   bool          `yaml:"enabled" env:"RELAY_OLLAMA_ENABLED"`
	KeepAlive time.Duration `yaml:"keepAlive" env:"RELAY_OLLAMA_KEEP_ALIVE"`
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled" env:"RELAY_PROMETHEUS_ENABLED"`
}

// DefaultConfig returns the default config.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",

		InstructionBaseURL: instructions.DefaultBaseURL,
		MergeMode:          string(completion.MergeTruthy),

		Ollama: &OllamaConfig{
			Enabled:   false,
			KeepAlive: 0,
		},
		Prometheus: &PrometheusConfig{
			Enabled: true,
		},

		LogLevel: slog.LevelInfo,
	}
}

// LoadConfig returns the config stored in path, populated with values from
// environment variables. If path doesn't exist it is created with the default
// config. An empty path uses the default config.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if err := CreateConfigIfNotExists(path); err != nil {
			return nil, err
		}

		var err error
		config, err = ReadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if err := config.PopulateFromEnvironment(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// PopulateFromEnvironment populates the config with values from environment
// variables.
func (c *Config) PopulateFromEnvironment() error {
	return env.Parse(c)
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}

	if _, err := completion.ParseMergeMode(c.MergeMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// CreateConfigIfNotExists makes sure that a config file exists. If it doesn't,
// it is created and populated with the default config.
func CreateConfigIfNotExists(path string) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}

	config := DefaultConfig()
	return config.Store(path)
}

// ReadConfig reads a config file from the specified path.
func ReadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Store stores the config in the specified path.
// Writes are atomic.
func (c *Config) Store(path string) (err error) {
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(file.Name())
		}
	}()

	encoder := yaml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}
