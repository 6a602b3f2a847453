package format

import (
	"fmt"

	"github.com/iambrandonn/jac/errs"
)

// maxVarintLen is the longest a ULEB128 encoding of a u64 can be.
const maxVarintLen = 10

// AppendUvarint appends the ULEB128 encoding of v to dst and returns the
// extended slice.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}

	return append(dst, byte(v))
}

// EncodeUvarint returns the ULEB128 encoding of v as a freshly allocated
// slice of 1 to 10 bytes.
func EncodeUvarint(v uint64) []byte {
	return AppendUvarint(make([]byte, 0, maxVarintLen), v)
}

// DecodeUvarint reads a ULEB128-encoded u64 from the front of src.
//
// It returns the decoded value and the number of bytes consumed. An input
// that runs out of bytes before the continuation bit clears is
// errs.ErrUnexpectedEof; an input whose continuation chain exceeds 10 bytes
// is errs.ErrLimitExceeded (a malformed encoding can otherwise never
// terminate).
func DecodeUvarint(src []byte) (uint64, int, error) {
	var result uint64
	var shift uint

	for i := 0; i < len(src); i++ {
		if i >= maxVarintLen {
			return 0, 0, fmt.Errorf("%w: varint exceeds %d bytes", errs.ErrLimitExceeded, maxVarintLen)
		}

		b := src[i]
		result |= uint64(b&0x7f) << shift

		if b&0x80 == 0 {
			return result, i + 1, nil
		}

		shift += 7
	}

	return 0, 0, errs.ErrUnexpectedEof
}

// ZigzagEncode maps a signed 64-bit integer onto an unsigned 64-bit integer
// so that small-magnitude values (positive or negative) encode to small
// ULEB128 varints.
func ZigzagEncode(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// ZigzagDecode is the inverse of ZigzagEncode.
func ZigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
