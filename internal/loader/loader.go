package loader

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fewshot/internal/logging"
)

// Loader decodes path lists in parallel while preserving order.
type Loader struct {
	decoder Decoder
	workers int
	logger  *slog.Logger
}

// New creates a loader running at most workers decodes at once.
func New(decoder Decoder, workers int, logger *slog.Logger) *Loader {
	if workers <= 0 {
		workers = 1
	}
	return &Loader{
		decoder: decoder,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "loader"),
	}
}

// Workers returns the decode concurrency.
func (l *Loader) Workers() int {
	return l.workers
}

// Load decodes every path and returns the results in input order. The first
// error cancels the remaining decodes and is returned with no partial result.
func (l *Loader) Load(ctx context.Context, paths []string) ([][]float32, error) {
	started := time.Now()
	out := make([][]float32, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			img, err := l.decoder.Decode(gctx, path)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.logger.Debug("decoded images",
		logging.Int("count", len(paths)),
		logging.Int("workers", l.workers),
		logging.Duration("elapsed", time.Since(started)))
	return out, nil
}
