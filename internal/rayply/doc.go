// Package rayply implements the binary-little-endian PLY variant used
// for ray clouds and point clouds: a self-describing text header
// followed by fixed-width binary vertex records with no padding.
//
// The package is built for clouds too large to hold in memory. Writers
// append bounded-size chunks and patch the header's vertex count once
// the true total is known at close; readers deliver records one bounded
// chunk at a time, forward-only. Peak memory for both directions is
// proportional to the chunk size, never to the cloud size.
//
// Only the binary_little_endian format is supported. ASCII and
// big-endian files are rejected at header parse, never misread.
package rayply
