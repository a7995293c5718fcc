package testsupport

import (
	"path/filepath"
	"testing"

	"fewshot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Geometry defaults to a tiny 2-way episode over 4x4 images so tests stay fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Dataset.TrainDir = filepath.Join(base, "train")
	cfgVal.Dataset.EvalDir = filepath.Join(base, "eval")
	cfgVal.Dataset.ImageWidth = 4
	cfgVal.Dataset.ImageHeight = 4
	cfgVal.Episode.NWay = 2
	cfgVal.Episode.KShot = 1
	cfgVal.Episode.KQuery = 1
	cfgVal.Episode.MetaBatchSize = 2
	cfgVal.Episode.TotalEpisodes = 4
	cfgVal.Episode.EvalEpisodes = 2
	cfgVal.Episode.Seed = 7
	cfgVal.Cache.Enabled = true
	cfgVal.Cache.Path = filepath.Join(base, "cache", "filelist.json")
	cfgVal.Loader.Workers = 2
	cfgVal.Loader.Prefetch = 1
	cfgVal.Paths.StateDir = filepath.Join(base, "state")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithEpisode overrides the episode geometry.
func WithEpisode(nway, kshot, kquery, metaBatch int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Episode.NWay = nway
		b.cfg.Episode.KShot = kshot
		b.cfg.Episode.KQuery = kquery
		b.cfg.Episode.MetaBatchSize = metaBatch
	}
}

// WithEpisodeCounts overrides the train and eval episode counts.
func WithEpisodeCounts(total, eval int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Episode.TotalEpisodes = total
		b.cfg.Episode.EvalEpisodes = eval
	}
}

// WithCache toggles the episode cache and optionally relocates it.
func WithCache(enabled bool, name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = enabled
		if name != "" {
			b.cfg.Cache.Path = filepath.Join(b.baseDir, "cache", name)
		}
	}
}

// WithSeed fixes the random seed.
func WithSeed(seed uint64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Episode.Seed = seed
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Dataset.TrainDir)
}
