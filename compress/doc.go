// Package compress implements the container format's closed compressor
// catalogue: identity (id 0) and Zstandard (id 1). Ids 2 and 3 are reserved
// and intentionally have no registered Codec, so CreateCodec and GetCodec
// return errs.ErrUnsupportedCompression for them rather than falling back to
// identity.
//
// A field's directory entry carries the compressor id and, for Zstandard,
// a level byte in the wire format's 1..22 range. Both directions
// (Compressor, Decompressor) are safe for concurrent use: NoOpCompressor is
// stateless, and ZstdCompressor pools encoders/decoders internally.
package compress
