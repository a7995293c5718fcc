package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"fewshot/internal/classindex"
	"fewshot/internal/config"
	"fewshot/internal/episodecache"
	"fewshot/internal/ledger"
	"fewshot/internal/loader"
	"fewshot/internal/logging"
	"fewshot/internal/pipeline"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
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
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) episodeCache() (*episodecache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return episodecache.New(cfg.Cache.Path, cfg.Cache.Enabled, logger), nil
}

func (c *commandContext) withLedger(fn func(*ledger.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withPipeline builds the full pipeline for a command. The seed flag, when
// set, replaces the configured seed.
func (c *commandContext) withPipeline(cmd *cobra.Command, seed uint64, fn func(context.Context, *pipeline.Pipeline) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	index, err := classindex.Load(cfg.Dataset.TrainDir, cfg.Dataset.EvalDir)
	if err != nil {
		return err
	}
	cache, err := c.episodeCache()
	if err != nil {
		return err
	}
	decoder := loader.NewImageDecoder(cfg.Dataset.ImageWidth, cfg.Dataset.ImageHeight)
	ld := loader.New(decoder, cfg.Loader.Workers, logger)

	return c.withLedger(func(store *ledger.Store) error {
		opts := []pipeline.Option{pipeline.WithProgress(cmd.ErrOrStderr())}
		if cmd.Flags().Changed("seed") {
			opts = append(opts, pipeline.WithSeed(seed))
		}
		p, err := pipeline.New(cfg, index, cache, ld, store, logger, opts...)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, p)
	})
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
