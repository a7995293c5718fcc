package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDataset(); err != nil {
		return err
	}
	if err := c.validateEpisode(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDataset() error {
	if strings.TrimSpace(c.Dataset.TrainDir) == "" {
		return errors.New("dataset.train_dir must be set (or export FEWSHOT_TRAIN_DIR)")
	}
	if strings.TrimSpace(c.Dataset.EvalDir) == "" {
		return errors.New("dataset.eval_dir must be set (or export FEWSHOT_EVAL_DIR)")
	}
	if filepath.Clean(c.Dataset.TrainDir) == filepath.Clean(c.Dataset.EvalDir) {
		return errors.New("dataset.train_dir and dataset.eval_dir must be different directories")
	}
	return ensurePositive([]namedValue{
		{"dataset.image_width", c.Dataset.ImageWidth},
		{"dataset.image_height", c.Dataset.ImageHeight},
	})
}

func (c *Config) validateEpisode() error {
	if err := ensurePositive([]namedValue{
		{"episode.nway", c.Episode.NWay},
		{"episode.meta_batchsz", c.Episode.MetaBatchSize},
		{"episode.total_episodes", c.Episode.TotalEpisodes},
		{"episode.eval_episodes", c.Episode.EvalEpisodes},
	}); err != nil {
		return err
	}
	if c.Episode.KShot < 0 || c.Episode.KQuery < 0 {
		return errors.New("episode.kshot and episode.kquery must be >= 0")
	}
	if c.NImgPerClass() <= 0 {
		return errors.New("episode.kshot + episode.kquery must be positive")
	}
	if c.Episode.TotalEpisodes%c.Episode.MetaBatchSize != 0 {
		return fmt.Errorf("episode.total_episodes (%d) must be a multiple of episode.meta_batchsz (%d)",
			c.Episode.TotalEpisodes, c.Episode.MetaBatchSize)
	}
	if c.Episode.EvalEpisodes%c.Episode.MetaBatchSize != 0 {
		return fmt.Errorf("episode.eval_episodes (%d) must be a multiple of episode.meta_batchsz (%d)",
			c.Episode.EvalEpisodes, c.Episode.MetaBatchSize)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) == "" {
		return errors.New("cache.path must be set when cache.enabled is true")
	}
	return nil
}

type namedValue struct {
	key   string
	value int
}

func ensurePositive(values []namedValue) error {
	for _, v := range values {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}
	return nil
}
