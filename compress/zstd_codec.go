package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/iambrandonn/jac/errs"
)

// zstdDecoderPool pools zstd decoders for reuse across segments. The
// klauspost/compress/zstd library is explicitly designed for decoder reuse:
// "The decoder has been designed to operate without allocations after a
// warmup. This means that you should store the decoder for best
// performance."
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1), // single-threaded for predictable performance
			zstd.WithDecoderLowmem(false),  // use more memory for better performance
		)
		if err != nil {
			// cannot happen with these fixed, valid options
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}

		return decoder
	},
}

// zstdEncoderPools holds one pool per EncoderLevel bucket, since a pooled
// encoder is bound to the level it was created with.
var zstdEncoderPools [int(zstd.SpeedBestCompression) + 1]sync.Pool

func init() {
	for lvl := zstd.SpeedFastest; lvl <= zstd.SpeedBestCompression; lvl++ {
		lvl := lvl
		zstdEncoderPools[lvl] = sync.Pool{
			New: func() any {
				encoder, err := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(lvl),
					zstd.WithEncoderCRC(false), // outer block CRC already covers this
				)
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
				}

				return encoder
			},
		}
	}
}

// encoderLevel maps the wire format's 1..22 level byte onto klauspost's four
// discrete EncoderLevel buckets, since the pure-Go implementation does not
// expose the full libzstd level range.
func encoderLevel(level uint8) zstd.EncoderLevel {
	switch {
	case level <= 5:
		return zstd.SpeedFastest
	case level <= 12:
		return zstd.SpeedDefault
	case level <= 18:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Compress compresses data using Zstandard at c.Level via a pooled encoder.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	lvl := encoderLevel(c.Level)
	pool := &zstdEncoderPools[lvl]

	encoder, _ := pool.Get().(*zstd.Encoder)
	defer pool.Put(encoder)

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses Zstd-compressed data via a pooled decoder.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decoder, _ := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDecompressError, err)
	}

	return decompressed, nil
}
