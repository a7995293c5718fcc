package pipeline_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"

	"fewshot/internal/batcher"
	"fewshot/internal/classindex"
	"fewshot/internal/config"
	"fewshot/internal/episodecache"
	"fewshot/internal/ledger"
	"fewshot/internal/loader"
	"fewshot/internal/pipeline"
	"fewshot/internal/services"
	"fewshot/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	store  *ledger.Store
	pipe   *pipeline.Pipeline
	cache  *episodecache.Cache
	loader *loader.Loader
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.WriteClassTree(t, cfg.Dataset.TrainDir, 3, 3)
	testsupport.WriteClassTree(t, cfg.Dataset.EvalDir, 2, 2)
	return buildFixture(t, cfg)
}

func buildFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	index, err := classindex.Load(cfg.Dataset.TrainDir, cfg.Dataset.EvalDir)
	if err != nil {
		t.Fatalf("classindex.Load: %v", err)
	}
	store := testsupport.MustOpenLedger(t, cfg)
	cache := episodecache.New(cfg.Cache.Path, cfg.Cache.Enabled, nil)
	ld := loader.New(loader.NewImageDecoder(cfg.Dataset.ImageWidth, cfg.Dataset.ImageHeight), cfg.Loader.Workers, nil)
	pipe, err := pipeline.New(cfg, index, cache, ld, store, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, pipe: pipe, cache: cache, loader: ld}
}

// checkBatch verifies that examples sharing a label share a class colour and
// that every shot group covers each label once.
func checkBatch(t *testing.T, batch batcher.Batch, cfg *config.Config) {
	t.Helper()
	nway := cfg.Episode.NWay
	if batch.MetaBatch != cfg.Episode.MetaBatchSize || batch.Examples != cfg.ImagesPerEpisode() || batch.Dim != cfg.ImageDim() || batch.Ways != nway {
		t.Fatalf("unexpected batch geometry %+v", batch)
	}
	for e := range batch.MetaBatch {
		colour := map[int]float32{}
		for i := range batch.Examples {
			label := batch.Classes[e][i]
			red := batch.Image(e, i)[0]
			if prev, ok := colour[label]; ok && prev != red {
				t.Fatalf("episode %d: label %d maps to two classes", e, label)
			}
			colour[label] = red
		}
		reds := map[float32]bool{}
		for _, red := range colour {
			reds[red] = true
		}
		if len(reds) != nway {
			t.Fatalf("episode %d: expected %d distinct classes, got %d", e, nway, len(reds))
		}
		for k := range batch.Examples / nway {
			group := slices.Clone(batch.Classes[e][k*nway : (k+1)*nway])
			slices.Sort(group)
			for c := range nway {
				if group[c] != c {
					t.Fatalf("episode %d shot %d: labels %v do not cover all classes", e, k, group)
				}
			}
		}
	}
}

func TestRunTrainDeliversAllBatchesAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var batches int
	summary, err := f.pipe.Run(ctx, classindex.ModeTrain, func(batch batcher.Batch) error {
		checkBatch(t, batch, f.cfg)
		batches++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := f.cfg.Episode.TotalEpisodes / f.cfg.Episode.MetaBatchSize
	if batches != want || summary.Batches != want {
		t.Fatalf("expected %d batches, delivered %d (summary %d)", want, batches, summary.Batches)
	}
	if summary.FromCache {
		t.Fatal("first run should sample fresh episodes")
	}
	if _, err := os.Stat(f.cfg.Cache.Path); err != nil {
		t.Fatalf("expected training run to write cache: %v", err)
	}

	second, err := f.pipe.Run(ctx, classindex.ModeTrain, func(batcher.Batch) error { return nil })
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second training run should read the cache")
	}

	runs, err := f.store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Status != ledger.StatusCompleted || run.Batches != want {
			t.Fatalf("unexpected run record %+v", run)
		}
	}
	got, err := f.store.Get(ctx, second.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.FromCache {
		t.Fatal("expected ledger to record the cache hit")
	}
}

func TestRunEvalSkipsCache(t *testing.T) {
	f := newFixture(t)

	summary, err := f.pipe.Run(context.Background(), classindex.ModeEval, func(batch batcher.Batch) error {
		checkBatch(t, batch, f.cfg)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != f.cfg.Episode.EvalEpisodes/f.cfg.Episode.MetaBatchSize {
		t.Fatalf("unexpected eval batch count %d", summary.Batches)
	}
	if _, err := os.Stat(f.cfg.Cache.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("eval run must not write the cache, stat err=%v", err)
	}
}

func TestRunStopsOnErrStop(t *testing.T) {
	f := newFixture(t)
	summary, err := f.pipe.Run(context.Background(), classindex.ModeTrain, func(batcher.Batch) error {
		return pipeline.ErrStop
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batches != 1 {
		t.Fatalf("expected the stopping batch to count, got %d", summary.Batches)
	}
}

func TestRunStopSkipsLaterDecodeFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEpisodeCounts(4, 2))
	testsupport.WriteClassTree(t, cfg.Dataset.TrainDir, 3, 3)
	testsupport.WriteClassTree(t, cfg.Dataset.EvalDir, 2, 2)
	index, err := classindex.Load(cfg.Dataset.TrainDir, cfg.Dataset.EvalDir)
	if err != nil {
		t.Fatalf("classindex.Load: %v", err)
	}

	perBatch := int64(cfg.Episode.MetaBatchSize * cfg.ImagesPerEpisode())
	var calls atomic.Int64
	decoder := loader.DecodeFunc(func(_ context.Context, path string) ([]float32, error) {
		if calls.Add(1) > perBatch {
			return nil, services.Wrap(services.ErrDecode, "test", "decode", path, nil)
		}
		return make([]float32, cfg.ImageDim()), nil
	})
	store := testsupport.MustOpenLedger(t, cfg)
	pipe, err := pipeline.New(cfg, index, episodecache.New(cfg.Cache.Path, false, nil),
		loader.New(decoder, cfg.Loader.Workers, nil), store, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	var delivered int
	summary, err := pipe.Run(context.Background(), classindex.ModeTrain, func(batcher.Batch) error {
		delivered++
		return pipeline.ErrStop
	})
	if err != nil {
		t.Fatalf("expected stop before the failing batch, got %v", err)
	}
	if delivered != 1 || summary.Batches != 1 {
		t.Fatalf("expected one delivered batch, got %d (summary %d)", delivered, summary.Batches)
	}
	run, err := store.Get(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if run.Status != ledger.StatusCompleted || run.Batches != 1 {
		t.Fatalf("unexpected ledger record %+v", run)
	}
}

func TestRunCancellationBetweenBatches(t *testing.T) {
	f := newFixture(t, testsupport.WithEpisodeCounts(8, 2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delivered int
	summary, err := f.pipe.Run(ctx, classindex.ModeTrain, func(batcher.Batch) error {
		delivered++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if delivered != 1 || summary.Batches != 1 {
		t.Fatalf("expected exactly one delivered batch, got %d (summary %d)", delivered, summary.Batches)
	}
	run, err := f.store.Get(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != ledger.StatusCanceled {
		t.Fatalf("expected canceled run, got %s", run.Status)
	}
}

func TestRunDecodeFailureIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCache(false, ""))
	names := testsupport.WriteClassTree(t, cfg.Dataset.TrainDir, 2, 2)
	testsupport.WriteClassTree(t, cfg.Dataset.EvalDir, 2, 2)
	testsupport.WriteFile(t, filepath.Join(cfg.Dataset.TrainDir, names[0], "img000.png"), 32)
	f := buildFixture(t, cfg)

	var delivered int
	summary, err := f.pipe.Run(context.Background(), classindex.ModeTrain, func(batcher.Batch) error {
		delivered++
		return nil
	})
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected no batches after decode failure, got %d", delivered)
	}
	run, err := f.store.Get(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != ledger.StatusFailed || run.ErrorKind != "decode" {
		t.Fatalf("unexpected run record %+v", run)
	}
}

func TestRunSamplingFailure(t *testing.T) {
	f := newFixture(t, testsupport.WithEpisode(4, 1, 1, 2))
	_, err := f.pipe.Run(context.Background(), classindex.ModeTrain, func(batcher.Batch) error { return nil })
	if !errors.Is(err, services.ErrSampling) {
		t.Fatalf("expected ErrSampling, got %v", err)
	}
}

func TestPathsReproducibleWithSeed(t *testing.T) {
	f := newFixture(t, testsupport.WithCache(false, ""))
	first, err := f.pipe.Paths(context.Background(), classindex.ModeTrain)
	if err != nil {
		t.Fatalf("Paths: %v", err)
	}
	second, err := f.pipe.Paths(context.Background(), classindex.ModeTrain)
	if err != nil {
		t.Fatalf("Paths: %v", err)
	}
	if !slices.Equal(first.Paths, second.Paths) {
		t.Fatal("expected identical path lists for a fixed seed")
	}
	if len(first.Paths) != f.cfg.Episode.TotalEpisodes*f.cfg.ImagesPerEpisode() {
		t.Fatalf("unexpected path count %d", len(first.Paths))
	}
}

func TestDatasetYieldsUntilEOF(t *testing.T) {
	f := newFixture(t)
	ds, err := pipeline.NewDataset(context.Background(), f.pipe, classindex.ModeTrain)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	if ds.Name() == "" {
		t.Fatal("expected dataset name")
	}

	for pass := range 2 {
		count := 0
		for {
			spec, inputs, labels, err := ds.Yield()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("pass %d: Yield: %v", pass, err)
			}
			if spec != classindex.ModeTrain {
				t.Fatalf("unexpected spec %v", spec)
			}
			if len(inputs) != 1 || len(labels) != 1 {
				t.Fatalf("expected one input and one label tensor")
			}
			want := []int{f.cfg.Episode.MetaBatchSize, f.cfg.ImagesPerEpisode(), f.cfg.ImageDim()}
			if got := inputs[0].Shape().Dimensions; !slices.Equal(got, want) {
				t.Fatalf("unexpected input shape %v, want %v", got, want)
			}
			count++
		}
		if count != ds.Len() {
			t.Fatalf("pass %d: yielded %d batches, want %d", pass, count, ds.Len())
		}
		ds.Reset()
	}
}
