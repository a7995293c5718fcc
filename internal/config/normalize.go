package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDataset(); err != nil {
		return err
	}
	c.normalizeEpisode()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeLoader()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeDataset() error {
	if value, ok := os.LookupEnv("FEWSHOT_TRAIN_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Dataset.TrainDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("FEWSHOT_EVAL_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Dataset.EvalDir = strings.TrimSpace(value)
	}
	var err error
	if c.Dataset.TrainDir, err = expandPath(strings.TrimSpace(c.Dataset.TrainDir)); err != nil {
		return fmt.Errorf("dataset.train_dir: %w", err)
	}
	if c.Dataset.EvalDir, err = expandPath(strings.TrimSpace(c.Dataset.EvalDir)); err != nil {
		return fmt.Errorf("dataset.eval_dir: %w", err)
	}
	if c.Dataset.ImageWidth == 0 {
		c.Dataset.ImageWidth = defaultImageWidth
	}
	if c.Dataset.ImageHeight == 0 {
		c.Dataset.ImageHeight = defaultImageHeight
	}
	return nil
}

func (c *Config) normalizeEpisode() {
	if c.Episode.EvalEpisodes == 0 {
		c.Episode.EvalEpisodes = defaultEvalEpisodes
	}
}

func (c *Config) normalizeCache() error {
	var err error
	c.Cache.Path = strings.TrimSpace(c.Cache.Path)
	if c.Cache.Path == "" {
		c.Cache.Path = defaultCachePath
	}
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLoader() {
	if c.Loader.Workers <= 0 {
		c.Loader.Workers = c.Episode.MetaBatchSize
	}
	if c.Loader.Workers <= 0 {
		c.Loader.Workers = 1
	}
	if c.Loader.Prefetch < 0 {
		c.Loader.Prefetch = 0
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
