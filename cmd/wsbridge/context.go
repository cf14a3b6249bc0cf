package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/config"
	"github.com/omochice/wsbridge/internal/logging"
)

type commandContext struct {
	configPath string
	overrides  config.Overrides

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configPath), c.overrides)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// setup loads the config, builds the logger and takes the lock file. The
// returned cleanup releases all of them.
func (c *commandContext) setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	lock, err := acquireLock(cfg.LockFile)
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}

	return cfg, logger, func() {
		if lock != nil {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release lock", zap.Error(err))
			}
		}
		closeLog()
	}, nil
}

// acquireLock takes an exclusive lock on path. An empty path disables locking.
func acquireLock(path string) (*flock.Flock, error) {
	if path == "" {
		return nil, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another wsbridge instance holds " + path)
	}
	return lock, nil
}
