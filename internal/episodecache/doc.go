// Package episodecache persists the flattened file-path list of pre-sampled
// training episodes so long runs can resume with the identical episode
// sequence.
//
// Only training runs read or write the cache. Labels are never stored since
// they follow from position alone. The file is a JSON array of strings,
// zstd-compressed when the path ends in ".zst", written atomically under an
// exclusive flock on "<path>.lock"; readers take the shared lock.
package episodecache
