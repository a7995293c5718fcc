package episodecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"fewshot/internal/classindex"
	"fewshot/internal/fileutil"
	"fewshot/internal/logging"
	"fewshot/internal/services"
)

const (
	lockRetryDelay = 50 * time.Millisecond
	// freeSpaceMargin is reserved on top of the payload size before writing.
	freeSpaceMargin = 16 << 20
)

// BuildFunc samples a fresh flattened path list.
type BuildFunc func(ctx context.Context) ([]string, error)

// Result is the outcome of LoadOrBuild.
type Result struct {
	Paths     []string
	FromCache bool
	Stale     bool
	Persisted bool
}

// Info describes the cache file on disk.
type Info struct {
	Path       string
	Exists     bool
	Compressed bool
	Size       int64
	Entries    int
	Modified   time.Time
}

// Cache reads and writes the episode file list.
type Cache struct {
	path    string
	enabled bool
	logger  *slog.Logger
	// freeBytes is swapped in tests.
	freeBytes func(string) (uint64, error)
}

// New creates a cache bound to path. A disabled cache or an empty path makes
// every run sample fresh episodes without touching the filesystem.
func New(path string, enabled bool, logger *slog.Logger) *Cache {
	return &Cache{
		path:      strings.TrimSpace(path),
		enabled:   enabled,
		logger:    logging.NewComponentLogger(logger, "episodecache"),
		freeBytes: fileutil.FreeBytes,
	}
}

// Path returns the configured cache location.
func (c *Cache) Path() string {
	return c.path
}

// Enabled reports whether training runs use the cache.
func (c *Cache) Enabled() bool {
	return c.enabled && c.path != ""
}

func (c *Cache) compressed() bool {
	return strings.HasSuffix(c.path, ".zst")
}

func (c *Cache) usable(mode classindex.Mode) bool {
	return c.Enabled() && mode == classindex.ModeTrain
}

// LoadOrBuild returns the cached list for training runs when present, or
// calls build and persists its result for training runs. want is the expected
// list length; a cached list of another length is stale and rebuilt. A want
// of zero accepts any cached length.
func (c *Cache) LoadOrBuild(ctx context.Context, mode classindex.Mode, want int, build BuildFunc) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)

	var stale bool
	if c.usable(mode) {
		paths, found, err := c.read(ctx)
		if err != nil {
			return Result{}, err
		}
		if found {
			if want <= 0 || len(paths) == want {
				logger.Info("loaded episode cache",
					logging.String("path", c.path),
					logging.Int("entry_count", len(paths)))
				return Result{Paths: paths, FromCache: true}, nil
			}
			stale = true
			logging.WarnWithContext(logger, "episode cache does not match configured geometry",
				"episode_cache_stale",
				logging.String("path", c.path),
				logging.Int("entry_count", len(paths)),
				logging.Int("expected_count", want),
				logging.String(logging.FieldErrorHint, "delete the cache or restore the previous episode settings"),
				logging.String(logging.FieldImpact, "episodes will be resampled and the cache rewritten"))
		}
	}

	if build == nil {
		return Result{}, services.Wrap(services.ErrSampling, "episodecache", "build", "no build function", nil)
	}
	paths, err := build(ctx)
	if err != nil {
		return Result{}, err
	}
	if want > 0 && len(paths) != want {
		return Result{}, services.Wrap(services.ErrShape, "episodecache", "build",
			fmt.Sprintf("built %d paths, expected %d", len(paths), want), nil)
	}

	result := Result{Paths: paths, Stale: stale}
	if !c.usable(mode) {
		logger.Debug("episode cache bypassed",
			logging.String(logging.FieldMode, string(mode)),
			logging.Bool("enabled", c.Enabled()))
		return result, nil
	}
	if err := c.write(ctx, paths); err != nil {
		return Result{}, err
	}
	result.Persisted = true
	logger.Info("saved episode cache",
		logging.String("path", c.path),
		logging.Int("entry_count", len(paths)))
	return result, nil
}

// Load reads the cached list regardless of mode. The bool is false when no
// cache file exists.
func (c *Cache) Load(ctx context.Context) ([]string, bool, error) {
	if c.path == "" {
		return nil, false, nil
	}
	return c.read(ctx)
}

// Stats inspects the cache file.
func (c *Cache) Stats(ctx context.Context) (Info, error) {
	info := Info{Path: c.path, Compressed: c.compressed()}
	if c.path == "" {
		return info, nil
	}
	st, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, services.Wrap(services.ErrIO, "episodecache", "stat", c.path, err)
	}
	info.Exists = true
	info.Size = st.Size()
	info.Modified = st.ModTime()

	paths, _, err := c.read(ctx)
	if err != nil {
		return info, err
	}
	info.Entries = len(paths)
	return info, nil
}

// Clear removes the cache file. It reports whether a file was removed.
func (c *Cache) Clear(ctx context.Context) (bool, error) {
	if c.path == "" {
		return false, nil
	}
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(c.path + ".lock")
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return false, services.Wrap(services.ErrIO, "episodecache", "lock", c.path, err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrIO, "episodecache", "clear", c.path, err)
	}
	c.logger.Info("cleared episode cache", logging.String("path", c.path))
	return true, nil
}

func (c *Cache) read(ctx context.Context) ([]string, bool, error) {
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, services.Wrap(services.ErrIO, "episodecache", "stat", c.path, err)
	}

	lock := flock.New(c.path + ".lock")
	if _, err := lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, false, services.Wrap(services.ErrIO, "episodecache", "lock", c.path, err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, services.Wrap(services.ErrIO, "episodecache", "read", c.path, err)
	}
	if c.compressed() {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, false, services.Wrap(services.ErrIO, "episodecache", "read", "create zstd decoder", err)
		}
		defer decoder.Close()
		data, err = decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, false, services.Wrap(services.ErrIO, "episodecache", "read", "decompress "+c.path, err)
		}
	}

	var paths []string
	if err := json.Unmarshal(bytes.TrimSpace(data), &paths); err != nil {
		return nil, false, services.Wrap(services.ErrIO, "episodecache", "read", "parse "+c.path, err)
	}
	return paths, true, nil
}

func (c *Cache) write(ctx context.Context, paths []string) error {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return services.Wrap(services.ErrIO, "episodecache", "write", "marshal", err)
	}
	if c.compressed() {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return services.Wrap(services.ErrIO, "episodecache", "write", "create zstd encoder", err)
		}
		data = encoder.EncodeAll(data, nil)
		_ = encoder.Close()
	}

	if free, err := c.freeBytes(c.path); err == nil {
		need := uint64(len(data)) + freeSpaceMargin
		if free < need {
			return services.Wrap(services.ErrIO, "episodecache", "write",
				fmt.Sprintf("insufficient space for %s: need %s, have %s",
					c.path, humanize.IBytes(need), humanize.IBytes(free)), nil)
		}
	} else {
		c.logger.Debug("free space check skipped", logging.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "episodecache", "write", "create cache directory", err)
	}
	lock := flock.New(c.path + ".lock")
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return services.Wrap(services.ErrIO, "episodecache", "lock", c.path, err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "episodecache", "write", c.path, err)
	}
	return nil
}
