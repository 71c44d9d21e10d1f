package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is the internal service address used when neither the
// config file nor BACKEND_URL names a backend.
const DefaultBackendURL = "http://backend:8000"

type Config struct {
	Backend struct {
		URL       string        `yaml:"url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
	} `yaml:"backend"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Upload struct {
		AllowedExtensions []string `yaml:"allowed_extensions"`
		MaxBytes          int64    `yaml:"max_bytes"`
	} `yaml:"upload"`

	UI struct {
		DefaultMode      string `yaml:"default_mode"`
		PreviewSentences int    `yaml:"preview_sentences"`
	} `yaml:"ui"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/thinktank/config.yaml"),
			"/etc/thinktank/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Backend.URL == "" {
		config.Backend.URL = DefaultBackendURL
	}
	if config.Backend.Timeout == 0 {
		config.Backend.Timeout = 60 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if len(config.Upload.AllowedExtensions) == 0 {
		config.Upload.AllowedExtensions = []string{".pdf", ".txt"}
	}
	if config.Upload.MaxBytes == 0 {
		config.Upload.MaxBytes = 20 << 20
	}

	if config.UI.DefaultMode == "" {
		config.UI.DefaultMode = "indexed"
	}
	if config.UI.PreviewSentences == 0 {
		config.UI.PreviewSentences = 3
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		config.Backend.URL = backendURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}
