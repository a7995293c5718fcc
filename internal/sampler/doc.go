// Package sampler draws few-shot episodes from a class listing.
//
// An episode picks N distinct classes, then shuffles that pick, then draws
// nimg distinct files from each class in draw order. Labels are positional:
// the i-th class of the final order is label i. All randomness comes from the
// injected *rand.Rand so runs are reproducible under a fixed seed.
package sampler
