package compress

import (
	"fmt"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
)

// Compressor compresses an uncompressed segment payload.
//
// Memory management:
//   - Returned slice is owned by the caller; it may be the input slice
//     itself (NoOpCompressor returns its input unchanged)
//   - Input slice is not modified
//   - Internal buffers may be reused for efficiency
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a compressed segment payload back to its
// original bytes.
//
// Thread Safety: Decompressor implementations must be safe for concurrent
// use.
type Decompressor interface {
	// Decompress decompresses data and returns the original bytes, or
	// errs.ErrDecompressError if the underlying codec reports failure.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions of one entry in the compressor catalogue.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec builds a Codec for one of the two implemented catalogue
// entries (identity, zstd). target names the caller for error context.
func CreateCodec(id format.CompressorID, target string) (Codec, error) {
	switch id {
	case format.CompressorIdentity:
		return NewNoOpCompressor(), nil
	case format.CompressorZstd:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: invalid %s compressor: %s", errs.ErrUnsupportedCompression, target, id)
	}
}

// CreateEncodeCodec builds a Codec for encoding at a specific wire-format
// level byte (ignored for identity). Unlike GetCodec, which returns a
// pooled codec fixed at the package default level, this is what a Block
// Builder uses so a caller's WithDefaultCompressionLevel option actually
// reaches the Zstandard encoder.
func CreateEncodeCodec(id format.CompressorID, level uint8) (Codec, error) {
	switch id {
	case format.CompressorIdentity:
		return NewNoOpCompressor(), nil
	case format.CompressorZstd:
		return NewZstdCompressorLevel(level), nil
	default:
		return nil, errs.NewCompressionError(uint8(id))
	}
}

var builtinCodecs = map[format.CompressorID]Codec{
	format.CompressorIdentity: NewNoOpCompressor(),
	format.CompressorZstd:     NewZstdCompressor(),
}

// GetCodec retrieves a built-in Codec for id. Ids 2 and 3 (reserved) and any
// other value return errs.NewCompressionError(id).
func GetCodec(id format.CompressorID) (Codec, error) {
	if codec, ok := builtinCodecs[id]; ok {
		return codec, nil
	}

	return nil, errs.NewCompressionError(uint8(id))
}
