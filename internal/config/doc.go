// Package config loads, normalizes, and validates fewshot configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FEWSHOT_TRAIN_DIR. The Config type centralizes every knob the sampler,
// batcher, loader, and CLI need so dataset roots and episode geometry are
// resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
