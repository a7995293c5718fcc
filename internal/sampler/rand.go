package sampler

import (
	"math/rand/v2"
	"time"
)

// Stream identifiers keep the sampler and batcher generators independent
// even when they share a seed.
const (
	StreamSampler uint64 = 0x5a4d
	StreamBatcher uint64 = 0xb47c
)

// NewRand returns a PCG generator for seed and stream. A zero seed draws one
// from the clock.
func NewRand(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, stream))
}
