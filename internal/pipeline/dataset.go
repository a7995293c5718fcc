package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"

	"fewshot/internal/batcher"
	"fewshot/internal/classindex"
)

var _ train.Dataset = (*Dataset)(nil)

// Dataset implements train.Dataset over one mode's meta-batches. Each Yield
// decodes one meta-batch and returns the image tensor as the single input and
// the one-hot label tensor as the single label.
type Dataset struct {
	ctx     context.Context
	name    string
	mode    classindex.Mode
	p       *Pipeline
	paths   []string
	batcher *batcher.Batcher
	next    int
}

// NewDataset resolves the path list for mode and returns a dataset positioned
// at the first meta-batch.
func NewDataset(ctx context.Context, p *Pipeline, mode classindex.Mode) (*Dataset, error) {
	result, err := p.Paths(ctx, mode)
	if err != nil {
		return nil, err
	}
	b, err := p.newBatcher()
	if err != nil {
		return nil, err
	}
	return &Dataset{
		ctx:     ctx,
		name:    fmt.Sprintf("fewshot-%s-%dway-%dshot", mode, p.cfg.Episode.NWay, p.cfg.Episode.KShot),
		mode:    mode,
		p:       p,
		paths:   result.Paths,
		batcher: b,
	}, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string {
	return ds.name
}

// Len returns the number of meta-batches per pass.
func (ds *Dataset) Len() int {
	return len(ds.paths) / ds.batcher.BatchSize()
}

// Yield implements train.Dataset. It returns io.EOF after the last meta-batch.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	batch, err := ds.NextBatch()
	if err != nil {
		return nil, nil, nil, err
	}
	images, onehot := batch.Tensors()
	return ds.mode, []*tensors.Tensor{images}, []*tensors.Tensor{onehot}, nil
}

// NextBatch decodes and arranges the next meta-batch.
func (ds *Dataset) NextBatch() (batcher.Batch, error) {
	if err := ds.ctx.Err(); err != nil {
		return batcher.Batch{}, err
	}
	if ds.next >= ds.Len() {
		return batcher.Batch{}, io.EOF
	}
	size := ds.batcher.BatchSize()
	start := ds.next * size
	images, err := ds.p.loader.Load(ds.ctx, ds.paths[start:start+size])
	if err != nil {
		return batcher.Batch{}, err
	}
	batches, err := ds.batcher.MakeBatches(images)
	if err != nil {
		return batcher.Batch{}, err
	}
	ds.next++
	return batches[0], nil
}

// Reset implements train.Dataset. The same episodes are replayed; shot-group
// permutations keep advancing.
func (ds *Dataset) Reset() {
	ds.next = 0
}
