package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources Sources `yaml:"sources"`
	Fetch   Fetch   `yaml:"fetch"`
	Store   Store   `yaml:"store"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Sources struct {
	Feed    FeedSource    `yaml:"feed"`
	Page    PageSource    `yaml:"page"`
	Extract ExtractSource `yaml:"extract"`
}

// FeedSource configures the syndication feed importer. Endpoints are tried in order.
type FeedSource struct {
	Name      string   `yaml:"name"`
	Language  string   `yaml:"language"`
	Endpoints []string `yaml:"endpoints"`
	MaxItems  int      `yaml:"max_items"`
}

// PageSource configures the HTML page importer.
type PageSource struct {
	Name      string   `yaml:"name"`
	Language  string   `yaml:"language"`
	BaseURL   string   `yaml:"base_url"`
	Endpoints []string `yaml:"endpoints"`
	Category  string   `yaml:"category"`
	MaxItems  int      `yaml:"max_items"`
}

// ExtractSource configures the content-extraction API importer.
type ExtractSource struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Fetch struct {
	Timeout   time.Duration `yaml:"timeout"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	UserAgent string        `yaml:"user_agent"`
}

type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for newsbridge.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsbridge")
}

// DataDir returns the XDG data directory for newsbridge.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsbridge")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newsbridge/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsbridge init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Feed: FeedSource{
				Name:     "Times of Israel",
				Language: "en",
				MaxItems: 10,
			},
			Page: PageSource{
				Name:     "The Jerusalem Post",
				Language: "en",
				BaseURL:  "https://www.jpost.com",
				Category: "News",
				MaxItems: 6,
			},
			Extract: ExtractSource{
				Name:      "Diffbot",
				BaseURL:   "https://api.diffbot.com",
				APIKeyEnv: "DIFFBOT_TOKEN",
			},
		},
		Fetch: Fetch{
			Timeout:   30 * time.Second,
			BaseDelay: time.Second,
			MaxDelay:  8 * time.Second,
		},
		Store:   Store{Driver: "sqlite"},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.BaseDelay < 0 || c.Fetch.MaxDelay < 0 {
		return fmt.Errorf("fetch delays cannot be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// ExtractAPIKey reads the extraction API credential from the configured env var.
// An empty result means the credential is missing.
func (c *Config) ExtractAPIKey() string {
	if c.Sources.Extract.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Sources.Extract.APIKeyEnv))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
