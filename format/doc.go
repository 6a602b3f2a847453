// Package format defines the on-disk layout of a JAC container: the file
// header, block framing, field directory entries, the optional index footer,
// and the primitive codecs (varint, bit-packing, CRC32C, arbitrary-precision
// decimal, type tags) that those structures are built from.
//
// Everything in this package is pure encoding/decoding of bytes; it has no
// knowledge of how a block's columns are assembled (see package columnar) or
// how a stream of blocks is written or read (see the root jac package's
// Writer and Reader).
//
// # Layout
//
//	FILE_MAGIC(4) || FileHeader || BlockFrame* || [IndexFooter || u64_LE(footer_offset)]
//
//	BlockFrame  = BLK_MAGIC(4) || BlockHeader || segments || crc32c(4)
//	IndexFooter = IDX_MAGIC(4) || index_len || block_count || BlockIndexEntry* || crc32c(4)
//
// All multi-byte integers that are not ULEB128 varints are little-endian.
package format
