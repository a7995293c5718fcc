package batcher

import (
	"fmt"
	"math/rand/v2"

	"fewshot/internal/services"
)

// Batcher holds the episode geometry and the random source used for the
// per-shot class permutations.
type Batcher struct {
	nway      int
	nimg      int
	metaBatch int
	rng       *rand.Rand
	canonical []int
}

// New constructs a batcher for nway classes, nimg images per class and
// metaBatch episodes per batch.
func New(nway, nimg, metaBatch int, rng *rand.Rand) (*Batcher, error) {
	if nway <= 0 || nimg <= 0 || metaBatch <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "batcher", "new",
			fmt.Sprintf("nway (%d), images per class (%d) and meta batch (%d) must be positive", nway, nimg, metaBatch), nil)
	}
	if rng == nil {
		return nil, services.Wrap(services.ErrConfiguration, "batcher", "new", "random source is required", nil)
	}
	canonical := make([]int, 0, nway*nimg)
	for c := range nway {
		for range nimg {
			canonical = append(canonical, c)
		}
	}
	return &Batcher{
		nway:      nway,
		nimg:      nimg,
		metaBatch: metaBatch,
		rng:       rng,
		canonical: canonical,
	}, nil
}

// Ways returns N.
func (b *Batcher) Ways() int { return b.nway }

// ImagesPerClass returns nimg.
func (b *Batcher) ImagesPerClass() int { return b.nimg }

// MetaBatch returns M.
func (b *Batcher) MetaBatch() int { return b.metaBatch }

// EpisodeSize returns N*nimg.
func (b *Batcher) EpisodeSize() int { return b.nway * b.nimg }

// BatchSize returns the number of stream items consumed per meta-batch.
func (b *Batcher) BatchSize() int { return b.metaBatch * b.EpisodeSize() }

// CanonicalLabels returns the class-contiguous label sequence of one episode.
func (b *Batcher) CanonicalLabels() []int {
	return append([]int(nil), b.canonical...)
}

// Arranged is one meta-batch in shot-major order. Items and Labels have one
// row per episode, each of length N*nimg.
type Arranged[T any] struct {
	Items  [][]T
	Labels [][]int
}

// Arrange reorders stream into shot-major meta-batches. The stream length must
// be a non-zero multiple of BatchSize; otherwise nothing is produced.
func Arrange[T any](b *Batcher, stream []T) ([]Arranged[T], error) {
	if err := b.checkLength(len(stream)); err != nil {
		return nil, err
	}

	size := b.BatchSize()
	episode := b.EpisodeSize()
	out := make([]Arranged[T], 0, len(stream)/size)
	for base := 0; base < len(stream); base += size {
		batch := Arranged[T]{
			Items:  make([][]T, b.metaBatch),
			Labels: make([][]int, b.metaBatch),
		}
		for e := range b.metaBatch {
			block := stream[base+e*episode : base+(e+1)*episode]
			items := make([]T, 0, episode)
			labels := make([]int, 0, episode)
			for k := range b.nimg {
				for _, c := range b.rng.Perm(b.nway) {
					offset := c*b.nimg + k
					items = append(items, block[offset])
					labels = append(labels, b.canonical[offset])
				}
			}
			batch.Items[e] = items
			batch.Labels[e] = labels
		}
		out = append(out, batch)
	}
	return out, nil
}

func (b *Batcher) checkLength(n int) error {
	size := b.BatchSize()
	if n == 0 || n%size != 0 {
		return services.Wrap(services.ErrShape, "batcher", "arrange",
			fmt.Sprintf("stream length %d is not a positive multiple of %d (meta batch %d x nway %d x images per class %d)",
				n, size, b.metaBatch, b.nway, b.nimg), nil)
	}
	return nil
}
