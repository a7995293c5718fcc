package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"fewshot/internal/batcher"
	"fewshot/internal/classindex"
	"fewshot/internal/config"
	"fewshot/internal/episodecache"
	"fewshot/internal/ledger"
	"fewshot/internal/loader"
	"fewshot/internal/logging"
	"fewshot/internal/sampler"
	"fewshot/internal/services"
)

// ErrStop may be returned by a BatchFunc to end a run early without error.
// The batch it was returned for counts as delivered.
var ErrStop = errors.New("stop batch stream")

// BatchFunc consumes one complete meta-batch.
type BatchFunc func(batch batcher.Batch) error

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithProgress sends sampling progress to w. A terminal gets a progress bar;
// anything else gets sampled log lines.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		p.progress = w
	}
}

// WithSeed overrides the configured seed.
func WithSeed(seed uint64) Option {
	return func(p *Pipeline) {
		p.seed = seed
	}
}

// Pipeline produces meta-batches for one dataset configuration.
type Pipeline struct {
	cfg      *config.Config
	index    *classindex.Index
	cache    *episodecache.Cache
	loader   *loader.Loader
	ledger   *ledger.Store
	logger   *slog.Logger
	progress io.Writer
	seed     uint64
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Mode      classindex.Mode
	Episodes  int
	Batches   int
	FromCache bool
	Elapsed   time.Duration
}

// New assembles a pipeline. store may be nil to skip run recording.
func New(cfg *config.Config, index *classindex.Index, cache *episodecache.Cache, ld *loader.Loader, store *ledger.Store, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil || index == nil || cache == nil || ld == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new",
			"config, class index, cache and loader are required", nil)
	}
	p := &Pipeline{
		cfg:    cfg,
		index:  index,
		cache:  cache,
		loader: ld,
		ledger: store,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		seed:   cfg.Episode.Seed,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Episodes returns how many episodes a run of mode draws.
func (p *Pipeline) Episodes(mode classindex.Mode) int {
	if mode == classindex.ModeEval {
		return p.cfg.Episode.EvalEpisodes
	}
	return p.cfg.Episode.TotalEpisodes
}

// Paths resolves the flat file list for mode, from the cache when allowed.
func (p *Pipeline) Paths(ctx context.Context, mode classindex.Mode) (episodecache.Result, error) {
	ctx = services.WithMode(ctx, string(mode))
	episodes := p.Episodes(mode)
	nway := p.cfg.Episode.NWay
	nimg := p.cfg.NImgPerClass()

	build := func(ctx context.Context) ([]string, error) {
		classes := p.index.Split(mode)
		logger := logging.WithContext(services.WithStage(ctx, "sampling"), p.logger)
		logger.Info("sampling episodes",
			logging.Int("episodes", episodes),
			logging.Int("classes", len(classes)),
			logging.Int("eligible_classes", classindex.Eligible(classes, nimg)),
			logging.String("root", p.index.Root(mode)))

		report, finish := p.progressReporter(logger, episodes)
		defer finish()
		s := sampler.New(sampler.NewRand(p.seed, sampler.StreamSampler))
		return s.SampleMany(ctx, classes, nway, nimg, episodes, report)
	}
	return p.cache.LoadOrBuild(ctx, mode, episodes*nway*nimg, build)
}

// Run streams every meta-batch of mode to fn in order. fn may return ErrStop
// to finish early.
func (p *Pipeline) Run(ctx context.Context, mode classindex.Mode, fn BatchFunc) (Summary, error) {
	started := time.Now()
	summary := Summary{Mode: mode, Episodes: p.Episodes(mode)}

	run, err := p.beginRun(ctx, mode)
	if err != nil {
		return summary, err
	}
	summary.RunID = run.ID
	ctx = services.WithRunID(services.WithMode(ctx, string(mode)), run.ID)
	logger := logging.WithContext(ctx, p.logger)

	err = p.run(ctx, mode, fn, &summary)
	summary.Elapsed = time.Since(started)
	if errors.Is(err, ErrStop) {
		err = nil
	}
	p.finishRun(ctx, run.ID, summary.Batches, err)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(logger, "batch run failed", "pipeline_run_failed",
				logging.Error(err),
				logging.String("kind", services.Kind(err)),
				logging.Int("batches", summary.Batches))
		}
		return summary, err
	}
	logger.Info("batch run complete",
		logging.Int("batches", summary.Batches),
		logging.Bool("from_cache", summary.FromCache),
		logging.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, mode classindex.Mode, fn BatchFunc, summary *Summary) error {
	result, err := p.Paths(ctx, mode)
	if err != nil {
		return err
	}
	summary.FromCache = result.FromCache
	if p.ledger != nil && result.FromCache {
		if err := p.ledger.SetFromCache(ctx, summary.RunID, true); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record cache hit", "ledger_update_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run history shows a fresh sample"))
		}
	}

	b, err := p.newBatcher()
	if err != nil {
		return err
	}
	size := b.BatchSize()
	if len(result.Paths)%size != 0 {
		return services.Wrap(services.ErrShape, "pipeline", "run",
			fmt.Sprintf("%d paths do not form whole meta-batches of %d", len(result.Paths), size), nil)
	}

	stream := p.prefetch(ctx, result.Paths, size)
	defer stream.stop()

	for item := range stream.out {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item.err != nil {
			return item.err
		}
		batches, err := b.MakeBatches(item.images)
		if err != nil {
			return err
		}
		for _, batch := range batches {
			err := fn(batch)
			if err == nil || errors.Is(err, ErrStop) {
				summary.Batches++
			}
			if err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (p *Pipeline) newBatcher() (*batcher.Batcher, error) {
	return batcher.New(p.cfg.Episode.NWay, p.cfg.NImgPerClass(), p.cfg.Episode.MetaBatchSize,
		sampler.NewRand(p.seed, sampler.StreamBatcher))
}

type decoded struct {
	images [][]float32
	err    error
}

type prefetcher struct {
	out    <-chan decoded
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

func (f prefetcher) stop() {
	f.cancel()
	for range f.out {
	}
	f.wg.Wait()
}

// prefetch decodes meta-batches ahead of the consumer, keeping at most
// loader.prefetch of them buffered.
func (p *Pipeline) prefetch(ctx context.Context, paths []string, size int) prefetcher {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan decoded, max(p.cfg.Loader.Prefetch, 0))
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for start := 0; start < len(paths); start += size {
			images, err := p.loader.Load(ctx, paths[start:start+size])
			select {
			case out <- decoded{images: images, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return prefetcher{out: out, cancel: cancel, wg: wg}
}

func (p *Pipeline) beginRun(ctx context.Context, mode classindex.Mode) (ledger.Run, error) {
	run := ledger.Run{
		Mode:      string(mode),
		NWay:      p.cfg.Episode.NWay,
		KShot:     p.cfg.Episode.KShot,
		KQuery:    p.cfg.Episode.KQuery,
		MetaBatch: p.cfg.Episode.MetaBatchSize,
		Episodes:  p.Episodes(mode),
		Seed:      p.seed,
	}
	if p.ledger == nil {
		run.ID = "unrecorded"
		return run, nil
	}
	started, err := p.ledger.Begin(ctx, run)
	if err != nil {
		return run, services.Wrap(services.ErrIO, "pipeline", "record run", p.ledger.Path(), err)
	}
	return started, nil
}

func (p *Pipeline) finishRun(ctx context.Context, id string, batches int, runErr error) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Finish(ctx, id, batches, runErr); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record run result", "ledger_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history shows the run as still running"))
	}
}

// progressReporter returns a sampler progress callback and a finish func.
func (p *Pipeline) progressReporter(logger *slog.Logger, total int) (sampler.ProgressFunc, func()) {
	if f, ok := p.progress.(*os.File); ok && isTerminal(f) {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(f),
			progressbar.OptionSetDescription("Sampling episodes"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("episodes"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		return func(done, _ int) {
				_ = bar.Set(done)
			}, func() {
				_ = bar.Finish()
			}
	}

	progress := logging.NewProgressSampler(10)
	return func(done, total int) {
		if percent, ok := progress.Observe(done, total); ok {
			logger.Info("sampling progress",
				logging.Int("done", done),
				logging.Int("total", total),
				logging.Float64("percent", percent))
		}
	}, func() {}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
