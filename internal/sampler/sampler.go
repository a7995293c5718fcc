package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"

	"fewshot/internal/classindex"
	"fewshot/internal/services"
)

// Pair is one labelled file of an episode.
type Pair struct {
	Label int
	Path  string
}

// Episode is one sampled few-shot task.
type Episode struct {
	Classes []classindex.Class
	Pairs   []Pair
}

// Paths returns the episode's file paths in label order.
func (e Episode) Paths() []string {
	paths := make([]string, len(e.Pairs))
	for i, pair := range e.Pairs {
		paths[i] = pair.Path
	}
	return paths
}

// ProgressFunc receives the number of episodes drawn so far.
type ProgressFunc func(done, total int)

// Sampler draws episodes using an injected random source.
type Sampler struct {
	rng *rand.Rand
}

// New constructs a sampler. A nil rng uses a clock-seeded generator.
func New(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = NewRand(0, StreamSampler)
	}
	return &Sampler{rng: rng}
}

// Sample draws one episode of n classes with nimg files each.
func (s *Sampler) Sample(classes []classindex.Class, n, nimg int) (Episode, error) {
	if n <= 0 || nimg <= 0 {
		return Episode{}, services.Wrap(services.ErrSampling, "sampler", "sample episode",
			fmt.Sprintf("nway (%d) and images per class (%d) must be positive", n, nimg), nil)
	}
	if len(classes) < n {
		return Episode{}, services.Wrap(services.ErrSampling, "sampler", "sample episode",
			fmt.Sprintf("need %d classes, have %d", n, len(classes)), nil)
	}

	picked := s.draw(len(classes), n)
	s.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})

	episode := Episode{
		Classes: make([]classindex.Class, 0, n),
		Pairs:   make([]Pair, 0, n*nimg),
	}
	for label, idx := range picked {
		class := classes[idx]
		if len(class.Files) < nimg {
			return Episode{}, services.Wrap(services.ErrSampling, "sampler", "sample episode",
				fmt.Sprintf("class %q has %d files, need %d", class.Name, len(class.Files), nimg), nil)
		}
		episode.Classes = append(episode.Classes, class)
		for _, f := range s.draw(len(class.Files), nimg) {
			episode.Pairs = append(episode.Pairs, Pair{Label: label, Path: class.Files[f]})
		}
	}
	return episode, nil
}

// SampleMany draws count episodes and returns their paths flattened in
// episode order. Cancellation is checked between episodes.
func (s *Sampler) SampleMany(ctx context.Context, classes []classindex.Class, n, nimg, count int, progress ProgressFunc) ([]string, error) {
	if count < 0 {
		return nil, services.Wrap(services.ErrSampling, "sampler", "sample episodes",
			fmt.Sprintf("episode count %d is negative", count), nil)
	}
	paths := make([]string, 0, count*n*nimg)
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		episode, err := s.Sample(classes, n, nimg)
		if err != nil {
			return nil, err
		}
		for _, pair := range episode.Pairs {
			paths = append(paths, pair.Path)
		}
		if progress != nil {
			progress(i+1, count)
		}
	}
	return paths, nil
}

// draw picks k distinct indices from [0, n) uniformly, returned in draw order.
func (s *Sampler) draw(n, k int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := range k {
		j := i + s.rng.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
