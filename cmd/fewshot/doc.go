// Command fewshot samples few-shot episodes from a class-per-directory image
// dataset and streams shot-major meta-batches.
//
// Subcommands cover configuration, class inspection, episode sampling and
// caching, batch generation and the run history kept in the state directory.
package main
