// Package pipeline wires the class index, sampler, episode cache, loader and
// batcher into one stream of meta-batches.
//
// The flat path list is resolved once per run, from the cache for training
// runs when possible. Meta-batches are decoded ahead of the consumer by a
// prefetch goroutine, arranged shot-major and delivered strictly in order.
// Cancellation is observed between meta-batches and a partial batch is never
// delivered. Runs are recorded in the ledger when one is configured.
//
// Dataset adapts the same flow to the gomlx train.Dataset interface.
package pipeline
