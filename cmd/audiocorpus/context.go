package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"audiocorpus/internal/config"
	"audiocorpus/internal/logging"
	"audiocorpus/internal/progress"
)

type commandContext struct {
	configFlag      *string
	stageConfigFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, stageConfigFlag *string) *commandContext {
	return &commandContext{
		configFlag:      configFlag,
		stageConfigFlag: stageConfigFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.stageConfigFlag != nil && strings.TrimSpace(*c.stageConfigFlag) != "" {
			if err := cfg.ApplyOverrideFile(strings.TrimSpace(*c.stageConfigFlag)); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session bundles what most commands need: config, logger and store.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  progress.Store
	closer io.Closer
}

func (s *session) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := progress.Open(ctx, cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, store: store, closer: closer}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
