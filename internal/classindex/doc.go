// Package classindex discovers the class directories under the training and
// held-out dataset roots.
//
// A class is a directory directly below a root; its member files are the
// regular, non-hidden files it contains. Both lists keep the filesystem listing
// order returned by the operating system. The index is built once at startup
// and never modified afterward.
package classindex
