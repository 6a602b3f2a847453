package compress

import "github.com/iambrandonn/jac/format"

// ZstdCompressor implements compressor catalogue entry 1 (Zstandard).
// Level is the wire-format level byte (valid range 1..22); it is mapped
// onto klauspost/compress/zstd's four discrete EncoderLevel buckets since
// the pure-Go implementation does not expose the full libzstd level range.
//
// Performance characteristics:
//   - Compression ratio: best of the two catalogue entries, at the cost of
//     CPU time proportional to Level.
//   - Memory usage: pooled encoders/decoders amortize allocation across
//     many segments.
type ZstdCompressor struct {
	Level uint8
}

var _ Codec = ZstdCompressor{}

// NewZstdCompressor creates a Zstd compressor at the wire format's default
// level.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{Level: format.MinZstdLevel + 2}
}

// NewZstdCompressorLevel creates a Zstd compressor at the given wire-format
// level, clamped to [format.MinZstdLevel, format.MaxZstdLevel].
func NewZstdCompressorLevel(level uint8) ZstdCompressor {
	if level < format.MinZstdLevel {
		level = format.MinZstdLevel
	}

	if level > format.MaxZstdLevel {
		level = format.MaxZstdLevel
	}

	return ZstdCompressor{Level: level}
}
