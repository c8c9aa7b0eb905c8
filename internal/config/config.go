package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/cwygoda/papers/internal/domain"
)

// Credentials are the basic-auth pair sent with every request.
type Credentials struct {
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
}

// Fetch controls what is downloaded and how.
type Fetch struct {
	IndexURL       string `toml:"index_url" yaml:"index_url"`
	From           int    `toml:"from" yaml:"from"`
	Group          string `toml:"group" yaml:"group"`
	UserAgent      string `toml:"user_agent" yaml:"user_agent"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// History controls the SQLite run log.
type History struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	DBPath  string `toml:"db_path" yaml:"db_path"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Status configures the optional read-only HTTP status server.
type Status struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Config holds application configuration.
type Config struct {
	Credentials Credentials `toml:"credentials" yaml:"credentials"`
	Fetch       Fetch       `toml:"fetch" yaml:"fetch"`
	History     History     `toml:"history" yaml:"history"`
	Logging     Logging     `toml:"logging" yaml:"logging"`
	Status      Status      `toml:"status" yaml:"status"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Fetch: Fetch{
			IndexURL:  domain.DefaultIndexBase,
			From:      int(domain.DefaultStartYear),
			UserAgent: "papers/1.0",
		},
		History: History{
			Enabled: true,
			DBPath:  DefaultDBPath(),
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "papers", "history.db")
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "papers", "config.toml")
}

// Load starts from Default, decodes the file at path and applies the
// environment. An empty path means DefaultConfigPath, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultConfigPath()
	}
	if err := cfg.LoadFile(path); err != nil {
		if !(optional && errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile decodes path into c. Files ending in .yaml or .yml are read as
// YAML, everything else as TOML.
func (c *Config) LoadFile(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	file, err := os.Open(expanded)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(c); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(file).Decode(c); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

// ApplyEnv loads a .env file from the working directory if present, then
// overrides fields from the process environment. Variables already set in
// the environment win over .env entries.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if v, ok := os.LookupEnv("DOC_USERNAME"); ok {
		c.Credentials.Username = v
	}
	if v, ok := os.LookupEnv("DOC_PASSWORD"); ok {
		c.Credentials.Password = v
	}
	if v := os.Getenv("PAPERS_INDEX_URL"); v != "" {
		c.Fetch.IndexURL = v
	}
	if v := os.Getenv("PAPERS_DB"); v != "" {
		c.History.DBPath = v
	}
	if v := os.Getenv("PAPERS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PAPERS_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PAPERS_TIMEOUT must be a whole number of seconds, got %q", v)
		}
		c.Fetch.TimeoutSeconds = n
	}
	return nil
}

func (c *Config) normalize() error {
	c.Fetch.IndexURL = strings.TrimSpace(c.Fetch.IndexURL)
	c.Fetch.Group = strings.ToLower(strings.TrimSpace(c.Fetch.Group))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.History.DBPath != "" {
		p, err := ExpandPath(c.History.DBPath)
		if err != nil {
			return err
		}
		c.History.DBPath = p
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Fetch.IndexURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("fetch.index_url must be an absolute http(s) URL, got %q", c.Fetch.IndexURL)
	}
	if !domain.Year(c.Fetch.From).Supported() {
		return fmt.Errorf("fetch.from: %w: available years are %d to %d", domain.ErrYearOutOfRange, domain.FirstYear, domain.EndYear-1)
	}
	if c.Fetch.Group != "" {
		if _, err := domain.ParseCategory(c.Fetch.Group); err != nil {
			return fmt.Errorf("fetch.group: %w", err)
		}
	}
	if c.Fetch.TimeoutSeconds < 0 {
		return errors.New("fetch.timeout_seconds must be >= 0")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errors.New("history.db_path must be set when history is enabled")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// RequireCredentials reports an error when either credential is empty.
func (c *Config) RequireCredentials() error {
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return errors.New("credentials required: set DOC_USERNAME and DOC_PASSWORD (environment, .env, or [credentials] in the config file)")
	}
	return nil
}

// Timeout returns the per-request timeout, zero meaning none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
