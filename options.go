package jac

import (
	"fmt"

	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/options"
)

// CompressOptions controls how a Writer columnarizes and frames records.
// Build one with the With* functional options below; the zero value is not
// meant to be used directly — construct via DefaultCompressOptions.
type CompressOptions struct {
	blockTargetRecords     uint64
	defaultCompressor      format.CompressorID
	defaultCompressionLevel uint8
	canonicalizeKeys       bool
	canonicalizeNumbers    bool
	limits                 format.Limits
	containerHint           format.ContainerHint
	userMetadata            []byte
	parallel                ParallelConfig
	emitIndex               bool
}

// DefaultCompressOptions returns the reference defaults: 8,192-record target
// blocks, Zstandard at the wire format's default level, no canonicalization,
// reference Limits, and the automatic parallel heuristic.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		blockTargetRecords:      8_192,
		defaultCompressor:       format.CompressorZstd,
		defaultCompressionLevel: format.MinZstdLevel + 2,
		limits:                  format.DefaultLimits(),
		parallel:                DefaultParallelConfig(),
	}
}

// CompressOption configures a CompressOptions value.
type CompressOption = options.Option[*CompressOptions]

// WithBlockTargetRecords sets the soft per-block record target (distinct
// from Limits.MaxRecordsPerBlock, the hard cap).
func WithBlockTargetRecords(n uint64) CompressOption {
	return options.New(func(o *CompressOptions) error {
		if n == 0 {
			return fmt.Errorf("block target records must be > 0")
		}

		o.blockTargetRecords = n

		return nil
	})
}

// WithDefaultCompressor sets the codec used for every field segment.
func WithDefaultCompressor(id format.CompressorID) CompressOption {
	return options.New(func(o *CompressOptions) error {
		if id != format.CompressorIdentity && id != format.CompressorZstd {
			return fmt.Errorf("invalid default compressor: %s", id)
		}

		o.defaultCompressor = id

		return nil
	})
}

// WithDefaultCompressionLevel sets the Zstandard level byte (1..22); it is
// ignored when the default compressor is identity.
func WithDefaultCompressionLevel(level uint8) CompressOption {
	return options.New(func(o *CompressOptions) error {
		if level < format.MinZstdLevel || level > format.MaxZstdLevel {
			return fmt.Errorf("compression level %d out of range [%d,%d]", level, format.MinZstdLevel, format.MaxZstdLevel)
		}

		o.defaultCompressionLevel = level

		return nil
	})
}

// WithCanonicalizeKeys sorts each block's field directory lexicographically
// by field name instead of first-observation order.
func WithCanonicalizeKeys(enabled bool) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.canonicalizeKeys = enabled })
}

// WithCanonicalizeNumbers records the canonicalize_numbers file header flag
// and canonicalizes every Decimal (stripping trailing zero digits) before
// it is added to a column.
func WithCanonicalizeNumbers(enabled bool) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.canonicalizeNumbers = enabled })
}

// WithLimits overrides the default per-field/per-block caps. Values are
// clamped to their hard maximums.
func WithLimits(limits format.Limits) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.limits = limits.Clamp() })
}

// WithContainerHint records the input container-format hint (NDJSON vs
// JSON-array) in the file header.
func WithContainerHint(hint format.ContainerHint) CompressOption {
	return options.New(func(o *CompressOptions) error {
		if hint == 3 {
			return fmt.Errorf("container hint 3 is reserved")
		}

		o.containerHint = hint

		return nil
	})
}

// WithUserMetadata attaches opaque bytes to the file header.
func WithUserMetadata(meta []byte) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.userMetadata = append([]byte(nil), meta...) })
}

// WithParallelConfig overrides the parallel-compression heuristic's inputs.
func WithParallelConfig(cfg ParallelConfig) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.parallel = cfg })
}

// WithEmitIndex requests a trailing IDX1 index footer, giving a Reader O(1)
// block enumeration instead of a header-to-end scan.
func WithEmitIndex(enabled bool) CompressOption {
	return options.NoError(func(o *CompressOptions) { o.emitIndex = enabled })
}

// DecompressOptions controls Reader behavior.
type DecompressOptions struct {
	limits          format.Limits
	verifyChecksums bool
	lenient         bool
}

// DefaultDecompressOptions returns strict-mode defaults with checksum
// verification enabled and reference Limits.
func DefaultDecompressOptions() DecompressOptions {
	return DecompressOptions{
		limits:          format.DefaultLimits(),
		verifyChecksums: true,
	}
}

// DecompressOption configures a DecompressOptions value.
type DecompressOption = options.Option[*DecompressOptions]

// WithDecompressLimits overrides the caps enforced while decoding.
func WithDecompressLimits(limits format.Limits) DecompressOption {
	return options.NoError(func(o *DecompressOptions) { o.limits = limits.Clamp() })
}

// WithVerifyChecksums toggles block-frame CRC32C verification.
func WithVerifyChecksums(enabled bool) DecompressOption {
	return options.NoError(func(o *DecompressOptions) { o.verifyChecksums = enabled })
}

// WithLenient enables lenient mode: a block whose framing (magic, header,
// directory layout) is invalid is skipped by resyncing on the next block
// magic, rather than halting iteration. Segment-level errors inside an
// accepted framing still fail that block even in lenient mode.
func WithLenient(enabled bool) DecompressOption {
	return options.NoError(func(o *DecompressOptions) { o.lenient = enabled })
}
