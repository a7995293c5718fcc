// Package batcher turns the flat, episode-major stream of decoded images into
// shot-major meta-batches.
//
// The input arrives episode by episode, each episode holding N class blocks of
// nimg consecutive images. For every episode and every shot index k the
// batcher gathers one image per class, visiting the classes in a fresh random
// permutation, and concatenates the resulting shot groups in shot order. Each
// shot group therefore covers all N labels exactly once. Labels are one-hot
// encoded to width N.
package batcher
