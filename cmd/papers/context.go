package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwygoda/papers/internal/adapter/sqlite"
	"github.com/cwygoda/papers/internal/config"
	"github.com/cwygoda/papers/internal/domain"
	"github.com/cwygoda/papers/internal/logging"
)

type globalFlags struct {
	config    string
	db        string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads the config file and environment once, then lets
// persistent flags override them.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if v := strings.TrimSpace(c.flags.db); v != "" {
			path, err := config.ExpandPath(v)
			if err != nil {
				c.configErr = err
				return
			}
			cfg.History.DBPath = path
		}
		if v := strings.TrimSpace(c.flags.logLevel); v != "" {
			cfg.Logging.Level = strings.ToLower(v)
		}
		if v := strings.TrimSpace(c.flags.logFormat); v != "" {
			cfg.Logging.Format = strings.ToLower(v)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(out io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: out,
	})
}

// withHistory opens the run database for the duration of fn.
func (c *commandContext) withHistory(fn func(*domain.HistoryService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	repo, err := sqlite.New(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(domain.NewHistoryService(repo))
}
