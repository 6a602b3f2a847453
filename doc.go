// Package jac implements a columnar, block-oriented compressed container
// for collections of JSON records.
//
// A JAC file is a file header followed by a sequence of independently
// framed, checksummed blocks and an optional trailing index footer. Each
// block regroups its records' fields into columns (the columnar package),
// applies dictionary and delta encodings where the data supports it, and
// compresses each field's column independently (the compress package)
// before framing it (the block package).
//
// Writer and Compress build containers; Reader, Decompress, and Project
// read them back, either fully or one projected field at a time. See
// CompressOptions and DecompressOptions for the functional options that
// configure both directions.
package jac
