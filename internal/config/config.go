package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigName = "config.yml"

var ErrNoSources = errors.New("no sources configured")

// ResolvePath returns explicit when set, otherwise the path built from env vars.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir := os.Getenv("CONFIG_FILEPATH")
	name := os.Getenv("CONFIG_FILENAME")
	if dir == "" && name == "" {
		return ""
	}
	if name == "" {
		name = defaultConfigName
	}
	return filepath.Join(dir, name)
}

// Load reads the yaml file at path (if any) and overlays env vars.
// An empty path means env-only configuration.
func Load(path string) (*Config, error) {
	op := "config.Load()"

	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: config file %q: %w", op, path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cfg.configPath = path
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if cfg.SourcesFilePath != "" {
		sources, err := ReadSourcesFromFile(cfg.SourcesFilePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cfg.Sources = append(cfg.Sources, sources...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// ReadSourcesFromFile reads a standalone yaml list of sources.
func ReadSourcesFromFile(path string) ([]SourceConfig, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %q: %w", path, err)
	}
	return f.Sources, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("source #%d: empty name", i)
		}
		if s.Type == "" {
			return fmt.Errorf("source %q: empty type", s.Name)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	switch c.DBConfig.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBConfig.Driver)
	}

	switch c.Reconciler.ImagePolicy {
	case "", "carried", "tracked":
	default:
		return fmt.Errorf("unknown image policy %q", c.Reconciler.ImagePolicy)
	}

	if c.SchedulerConfig.Parallelism < 1 {
		c.SchedulerConfig.Parallelism = 1
	}
	return nil
}

// EnabledSources returns the sources that are not switched off.
func (c *Config) EnabledSources() []SourceConfig {
	res := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.IsEnabled() {
			res = append(res, s)
		}
	}
	return res
}

// Source finds a configured source by name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

func (c *Config) Path() string {
	return c.configPath
}

func (c DBConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ResolveAPIKey prefers the inline key and falls back to the env var named by apiKeyEnv.
func (s SourceConfig) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	return ""
}

func (s SourceConfig) ResolveAPISecret() string {
	if s.APISecret != "" {
		return s.APISecret
	}
	if s.APISecretEnv != "" {
		return os.Getenv(s.APISecretEnv)
	}
	return ""
}

func (s SourceConfig) GetTimeout() time.Duration {
	if s.Timeout <= 0 {
		return 30 * time.Second
	}
	return s.Timeout
}

func (a AIConfig) GetTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// Enabled reports whether category enrichment has what it needs to run.
func (a AIConfig) Enabled() bool {
	return a.AIApiToken != "" && a.ModelName != ""
}
