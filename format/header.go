package format

import (
	"fmt"

	"github.com/iambrandonn/jac/errs"
)

// FileHeader is the fixed-shape record that follows the four-byte file
// magic. Its Flags word packs canonicalize_keys (bit 0), canonicalize_numbers
// (bit 1), nested_opaque (bit 2), and a 2-bit container-format hint (bits
// 3-4); remaining bits are reserved zero.
type FileHeader struct {
	Flags                   uint32
	DefaultCompressor       CompressorID
	DefaultCompressionLevel uint8
	BlockSizeHintRecords    uint64
	UserMetadata            []byte
}

// ContainerHint extracts the 2-bit container-format hint from Flags.
func (h FileHeader) ContainerHint() (ContainerHint, error) {
	hint := ContainerHint((h.Flags & FlagContainerHintMask) >> FlagContainerHintShift)
	if hint == 3 {
		return 0, errs.NewFeatureError("reserved container format hint")
	}

	return hint, nil
}

// WithContainerHint returns a copy of h with the container-format hint bits
// set to hint.
func (h FileHeader) WithContainerHint(hint ContainerHint) FileHeader {
	h.Flags = (h.Flags &^ FlagContainerHintMask) | (uint32(hint) << FlagContainerHintShift)
	return h
}

// Encode appends the wire encoding of h (everything after the file magic)
// to dst.
func (h FileHeader) Encode(dst []byte) []byte {
	var buf [4]byte
	putUint32LE(buf[:], h.Flags)
	dst = append(dst, buf[:]...)

	dst = append(dst, byte(h.DefaultCompressor), h.DefaultCompressionLevel)
	dst = AppendUvarint(dst, h.BlockSizeHintRecords)
	dst = AppendUvarint(dst, uint64(len(h.UserMetadata)))
	dst = append(dst, h.UserMetadata...)

	return dst
}

// DecodeFileHeader reads a FileHeader from the front of src (which must
// already have the file magic stripped), returning the header and the
// number of bytes consumed.
func DecodeFileHeader(src []byte) (FileHeader, int, error) {
	if len(src) < 6 {
		return FileHeader{}, 0, errs.ErrUnexpectedEof
	}

	var h FileHeader
	h.Flags = readUint32LE(src[0:4])
	h.DefaultCompressor = CompressorID(src[4])
	h.DefaultCompressionLevel = src[5]
	n := 6

	blockSizeHint, used, err := DecodeUvarint(src[n:])
	if err != nil {
		return FileHeader{}, 0, err
	}

	h.BlockSizeHintRecords = blockSizeHint
	n += used

	metaLen, used, err := DecodeUvarint(src[n:])
	if err != nil {
		return FileHeader{}, 0, err
	}

	n += used

	const maxMetadataLen = 16 * 1024 * 1024
	if metaLen > maxMetadataLen {
		return FileHeader{}, 0, errs.NewLimitError("", "user metadata", metaLen, maxMetadataLen)
	}

	if uint64(len(src)-n) < metaLen {
		return FileHeader{}, 0, errs.ErrUnexpectedEof
	}

	h.UserMetadata = append([]byte(nil), src[n:n+int(metaLen)]...)
	n += int(metaLen)

	if _, err := h.ContainerHint(); err != nil {
		return FileHeader{}, 0, err
	}

	if h.Flags&^(FlagCanonicalizeKeys|FlagCanonicalizeNumbers|FlagNestedOpaque|FlagContainerHintMask) != 0 {
		return FileHeader{}, 0, errs.NewFeatureError("reserved file header flag bits")
	}

	return h, n, nil
}

// FieldDirectoryEntry is one field's row in a block header's directory: its
// name, chosen compressor, and the layout metadata needed to slice and
// decode its segment.
type FieldDirectoryEntry struct {
	Name                   string
	Compressor             CompressorID
	Level                  uint8
	PresenceBytes          uint64
	TagBytes               uint64
	ValueCountPresent      uint64
	EncodingFlags          uint64
	DictEntryCount         uint64
	SegmentUncompressedLen uint64
	SegmentCompressedLen   uint64
	SegmentOffset          uint64
}

func (e FieldDirectoryEntry) encode(dst []byte) []byte {
	dst = AppendUvarint(dst, uint64(len(e.Name)))
	dst = append(dst, e.Name...)
	dst = append(dst, byte(e.Compressor), e.Level)
	dst = AppendUvarint(dst, e.PresenceBytes)
	dst = AppendUvarint(dst, e.TagBytes)
	dst = AppendUvarint(dst, e.ValueCountPresent)
	dst = AppendUvarint(dst, e.EncodingFlags)
	dst = AppendUvarint(dst, e.DictEntryCount)
	dst = AppendUvarint(dst, e.SegmentUncompressedLen)
	dst = AppendUvarint(dst, e.SegmentCompressedLen)
	dst = AppendUvarint(dst, e.SegmentOffset)

	return dst
}

func decodeFieldDirectoryEntry(src []byte, limits Limits) (FieldDirectoryEntry, int, error) {
	var e FieldDirectoryEntry

	nameLen, n, err := DecodeUvarint(src)
	if err != nil {
		return e, 0, err
	}

	const maxNameLen = 1 << 20
	if nameLen > maxNameLen {
		return e, 0, errs.NewLimitError("", "field name length", nameLen, maxNameLen)
	}

	if uint64(len(src)-n) < nameLen+2 {
		return e, 0, errs.ErrUnexpectedEof
	}

	e.Name = string(src[n : n+int(nameLen)])
	n += int(nameLen)

	e.Compressor = CompressorID(src[n])
	e.Level = src[n+1]
	n += 2

	fields := []*uint64{
		&e.PresenceBytes, &e.TagBytes, &e.ValueCountPresent, &e.EncodingFlags,
		&e.DictEntryCount, &e.SegmentUncompressedLen, &e.SegmentCompressedLen,
		&e.SegmentOffset,
	}

	for _, f := range fields {
		v, used, err := DecodeUvarint(src[n:])
		if err != nil {
			return e, 0, err
		}

		*f = v
		n += used
	}

	if e.PresenceBytes > limits.MaxPresenceBytes {
		return e, 0, errs.NewLimitError(e.Name, "presence bytes", e.PresenceBytes, limits.MaxPresenceBytes)
	}

	if e.TagBytes > limits.MaxTagBytes {
		return e, 0, errs.NewLimitError(e.Name, "tag bytes", e.TagBytes, limits.MaxTagBytes)
	}

	if e.SegmentUncompressedLen > limits.MaxSegmentUncompressedLen {
		return e, 0, errs.NewLimitError(e.Name, "segment uncompressed len", e.SegmentUncompressedLen, limits.MaxSegmentUncompressedLen)
	}

	return e, n, nil
}

// BlockHeader is the decoded form of a block frame's header, preceding the
// segments region. It does not include the BLK1 magic or the trailing CRC.
type BlockHeader struct {
	RecordCount uint64
	Fields      []FieldDirectoryEntry
}

// Encode appends the wire encoding of h to dst.
func (h BlockHeader) Encode(dst []byte) []byte {
	dst = AppendUvarint(dst, h.RecordCount)
	dst = AppendUvarint(dst, uint64(len(h.Fields)))

	for _, f := range h.Fields {
		dst = f.encode(dst)
	}

	return dst
}

// DecodeBlockHeader reads a BlockHeader from the front of src, returning the
// header and the number of bytes consumed. limits bounds record/field
// counts and per-field segment sizes.
func DecodeBlockHeader(src []byte, limits Limits) (BlockHeader, int, error) {
	var h BlockHeader

	recordCount, n, err := DecodeUvarint(src)
	if err != nil {
		return h, 0, err
	}

	if recordCount > limits.MaxRecordsPerBlock {
		return h, 0, errs.NewLimitError("", "records per block", recordCount, limits.MaxRecordsPerBlock)
	}

	h.RecordCount = recordCount

	fieldCount, used, err := DecodeUvarint(src[n:])
	if err != nil {
		return h, 0, err
	}

	n += used

	if fieldCount > limits.MaxFieldsPerBlock {
		return h, 0, errs.NewLimitError("", "fields per block", fieldCount, limits.MaxFieldsPerBlock)
	}

	h.Fields = make([]FieldDirectoryEntry, fieldCount)

	for i := range h.Fields {
		entry, used, err := decodeFieldDirectoryEntry(src[n:], limits)
		if err != nil {
			return h, 0, fmt.Errorf("field %d: %w", i, err)
		}

		h.Fields[i] = entry
		n += used
	}

	return h, n, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func readUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
