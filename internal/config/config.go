package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/keys"
	"github.com/manash/imgstudio/pkg/models"
)

// FileName is the config file inside the configuration directory.
const FileName = "config.yaml"

type ProviderSettings struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type ExportSettings struct {
	Prefix string  `yaml:"prefix"`
	Format string  `yaml:"format"`
	Scale  float64 `yaml:"scale"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec"`
	DataDir    string `yaml:"data_dir"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	Verbose    bool   `yaml:"verbose"`

	Export    ExportSettings              `yaml:"export"`
	Server    ServerSettings              `yaml:"server"`
	Providers map[string]ProviderSettings `yaml:"providers,omitempty"`
}

// Default returns the built-in settings. dir is the configuration directory
// and becomes the default data directory.
func Default(dir string) *Config {
	return &Config{
		Provider:   string(models.ProviderGemini),
		TimeoutSec: 120,
		DataDir:    dir,
		LogLevel:   "info",
		LogFormat:  "console",
		Export: ExportSettings{
			Prefix: image.DefaultPrefix,
			Format: string(models.FormatPNG),
			Scale:  1.0,
		},
		Server: ServerSettings{
			Addr: "127.0.0.1:8080",
		},
		Providers: map[string]ProviderSettings{},
	}
}

// DefaultPath is config.yaml in the configuration directory.
func DefaultPath() (string, error) {
	dir, err := keys.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load layers defaults, the YAML file at path and the environment. An empty
// path means DefaultPath. A missing file is not an error.
func Load(path string) (*Config, error) {
	dir, err := keys.ConfigDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(dir, FileName)
	}

	cfg := Default(dir)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IMGSTUDIO_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("IMGSTUDIO_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("IMGSTUDIO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("IMGSTUDIO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("IMGSTUDIO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("IMGSTUDIO_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSec = n
		}
	}

	if c.Providers == nil {
		c.Providers = map[string]ProviderSettings{}
	}
	for _, p := range models.ValidProviders() {
		name := string(p)
		ps := c.Providers[name]
		prefix := strings.ToUpper(name)
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			ps.BaseURL = v
		}
		c.Providers[name] = ps
	}
}

// Validate checks the settings that cannot be defaulted later.
func (c *Config) Validate() error {
	if !models.ProviderType(c.Provider).IsValid() {
		return fmt.Errorf("unknown provider %q (valid: %v)", c.Provider, models.ValidProviders())
	}
	if c.TimeoutSec < 0 {
		return fmt.Errorf("timeout_sec must not be negative, got %d", c.TimeoutSec)
	}
	if _, err := models.ParseOutputFormat(c.Export.Format); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	if !models.IsValidScale(c.Export.Scale) {
		return fmt.Errorf("export.scale: %w: %v", models.ErrInvalidScale, c.Export.Scale)
	}
	return nil
}

// ProviderSettings returns the settings for the configured provider.
func (c *Config) ProviderSettings() ProviderSettings {
	return c.Providers[c.Provider]
}

// ExportFormat is Export.Format parsed; Validate guarantees it is valid.
func (c *Config) ExportFormat() models.OutputFormat {
	f, _ := models.ParseOutputFormat(c.Export.Format)
	return f
}

// Save writes c to path as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
