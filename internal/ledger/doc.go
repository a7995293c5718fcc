// Package ledger records batch-generation runs in a SQLite database under the
// state directory.
//
// Each run stores its mode, episode geometry, seed, whether the file list came
// from the episode cache, how many meta-batches were delivered and how it
// ended. The schema is embedded and versioned; a version mismatch asks the
// operator to delete the database rather than migrating it.
package ledger
