package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"fewshot/internal/fileutil"
	"fewshot/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Dataset locates the class directories and the decoded image geometry.
type Dataset struct {
	TrainDir    string `toml:"train_dir"`
	EvalDir     string `toml:"eval_dir"`
	ImageWidth  int    `toml:"image_width"`
	ImageHeight int    `toml:"image_height"`
}

// Episode contains the episode and meta-batch geometry.
type Episode struct {
	NWay          int    `toml:"nway"`
	KShot         int    `toml:"kshot"`
	KQuery        int    `toml:"kquery"`
	MetaBatchSize int    `toml:"meta_batchsz"`
	TotalEpisodes int    `toml:"total_episodes"`
	EvalEpisodes  int    `toml:"eval_episodes"`
	Seed          uint64 `toml:"seed"`
}

// Cache contains configuration for the persisted training file list.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Loader contains configuration for parallel image decoding.
type Loader struct {
	Workers  int `toml:"workers"`
	Prefetch int `toml:"prefetch"`
}

// Paths contains directories owned by fewshot itself.
type Paths struct {
	StateDir string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fewshot.
//
// Configuration sections by subsystem:
//   - Dataset: train/held-out class roots and target image size
//   - Episode: nway, kshot, kquery, meta-batch size and episode counts
//   - Cache: persisted training file list
//   - Loader: decode parallelism and prefetch depth
//   - Paths: state directory (run ledger, locks)
//   - Logging: log format and level
type Config struct {
	Dataset Dataset `toml:"dataset"`
	Episode Episode `toml:"episode"`
	Cache   Cache   `toml:"cache"`
	Loader  Loader  `toml:"loader"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fewshot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "validate", resolvedPath, err)
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fewshot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// NImgPerClass returns the number of images drawn per class per episode (kshot + kquery).
func (c *Config) NImgPerClass() int {
	return c.Episode.KShot + c.Episode.KQuery
}

// ImagesPerEpisode returns nway * (kshot + kquery).
func (c *Config) ImagesPerEpisode() int {
	return c.Episode.NWay * c.NImgPerClass()
}

// ImageDim returns the flattened pixel dimension of one decoded RGB image.
func (c *Config) ImageDim() int {
	return c.Dataset.ImageWidth * c.Dataset.ImageHeight * 3
}

// LedgerPath returns the run ledger database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// EnsureDirectories creates directories fewshot writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) != "" {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
