package batcher

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"fewshot/internal/services"
)

// Batch is one meta-batch ready for training. Images has shape
// (MetaBatch, Examples, Dim) and Labels (MetaBatch, Examples, Ways), both
// flattened row-major. Classes keeps the integer label of every example.
type Batch struct {
	Images    []float32
	Labels    []float32
	Classes   [][]int
	MetaBatch int
	Examples  int
	Dim       int
	Ways      int
}

// MakeBatches arranges decoded images and one-hot encodes their labels. Every
// image must have the same non-zero dimension.
func (b *Batcher) MakeBatches(images [][]float32) ([]Batch, error) {
	if err := b.checkLength(len(images)); err != nil {
		return nil, err
	}
	dim := len(images[0])
	if dim == 0 {
		return nil, services.Wrap(services.ErrShape, "batcher", "make batches", "image 0 is empty", nil)
	}
	for i, img := range images {
		if len(img) != dim {
			return nil, services.Wrap(services.ErrShape, "batcher", "make batches",
				fmt.Sprintf("image %d has dimension %d, expected %d", i, len(img), dim), nil)
		}
	}

	arranged, err := Arrange(b, images)
	if err != nil {
		return nil, err
	}

	examples := b.EpisodeSize()
	batches := make([]Batch, 0, len(arranged))
	for _, a := range arranged {
		batch := Batch{
			Images:    make([]float32, 0, b.metaBatch*examples*dim),
			Labels:    make([]float32, b.metaBatch*examples*b.nway),
			Classes:   a.Labels,
			MetaBatch: b.metaBatch,
			Examples:  examples,
			Dim:       dim,
			Ways:      b.nway,
		}
		for e, row := range a.Items {
			for i, img := range row {
				batch.Images = append(batch.Images, img...)
				batch.Labels[(e*examples+i)*b.nway+a.Labels[e][i]] = 1
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// Image returns the pixels of example i of episode e.
func (b *Batch) Image(e, i int) []float32 {
	start := (e*b.Examples + i) * b.Dim
	return b.Images[start : start+b.Dim]
}

// OneHot returns the label row of example i of episode e.
func (b *Batch) OneHot(e, i int) []float32 {
	start := (e*b.Examples + i) * b.Ways
	return b.Labels[start : start+b.Ways]
}

// Tensors converts the batch into gomlx tensors shaped
// (MetaBatch, Examples, Dim) and (MetaBatch, Examples, Ways).
func (b *Batch) Tensors() (images, labels *tensors.Tensor) {
	images = tensors.FromFlatDataAndDimensions(b.Images, b.MetaBatch, b.Examples, b.Dim)
	labels = tensors.FromFlatDataAndDimensions(b.Labels, b.MetaBatch, b.Examples, b.Ways)
	return images, labels
}
