// Package loader decodes episode image files into flat float32 pixel vectors.
//
// Decoding runs on a bounded worker pool, but results are always returned in
// the order of the input paths. The batcher's label alignment depends on that
// order. Any decode failure aborts the whole load; no image is ever skipped.
package loader
