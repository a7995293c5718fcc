// Package services defines shared utilities consumed by the sampling,
// caching, decoding, and batching components.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, modes, and stage names for logging.
//   - Structured error markers plus the Wrap helper so every failure can be
//     classified with errors.Is (I/O, sampling, shape, decode, configuration).
//
// Every marked failure is fatal to a run. Nothing in the pipeline retries or
// drops a sample, because positional alignment between images and labels
// would silently break.
package services
