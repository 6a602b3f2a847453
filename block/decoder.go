package block

import (
	"fmt"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/value"
)

// Frame is one parsed block: its header plus the (still field-compressed)
// segments region, ready for DecodeRecords or ProjectField.
type Frame struct {
	Header   format.BlockHeader
	Segments []byte
}

// DecodeFrame parses one block frame from the front of src (which must
// start at the BLK1 magic), validating the field directory's layout
// invariants (contiguous, non-overlapping segment offsets; checked-add
// block-total size) and, unless skipCRC is set, its trailing CRC32C.
//
// It returns the parsed Frame and the number of bytes the frame occupies in
// src, so the caller can advance to the next block.
func DecodeFrame(src []byte, limits format.Limits, skipCRC bool) (Frame, int, error) {
	if len(src) < 4 {
		return Frame{}, 0, errs.ErrUnexpectedEof
	}

	if readUint32LE(src[:4]) != format.BlockMagic {
		return Frame{}, 0, errs.ErrCorruptHeader
	}

	header, n, err := format.DecodeBlockHeader(src[4:], limits)
	if err != nil {
		return Frame{}, 0, err
	}

	var totalCompressed, totalUncompressed uint64

	for i, f := range header.Fields {
		if f.SegmentOffset != totalCompressed {
			return Frame{}, 0, fmt.Errorf("%w: field %d (%q) segment_offset %d, want %d",
				errs.ErrCorruptBlock, i, f.Name, f.SegmentOffset, totalCompressed)
		}

		totalCompressed += f.SegmentCompressedLen

		newTotal := totalUncompressed + f.SegmentUncompressedLen
		if newTotal < totalUncompressed {
			return Frame{}, 0, fmt.Errorf("%w: block uncompressed total overflow", errs.ErrCorruptBlock)
		}

		totalUncompressed = newTotal
	}

	if totalUncompressed > limits.MaxBlockUncompressedTotal {
		return Frame{}, 0, errs.NewLimitError("", "block uncompressed total", totalUncompressed, limits.MaxBlockUncompressedTotal)
	}

	segStart := 4 + n
	if uint64(len(src)-segStart) < totalCompressed+4 {
		return Frame{}, 0, errs.ErrUnexpectedEof
	}

	segEnd := segStart + int(totalCompressed)
	segments := src[segStart:segEnd]
	crcBytes := src[segEnd : segEnd+4]
	frameLen := segEnd + 4

	if !skipCRC {
		expected := readUint32LE(crcBytes)
		if err := format.VerifyCRC32C(src[4:segEnd], expected); err != nil {
			return Frame{}, 0, err
		}
	}

	return Frame{Header: header, Segments: segments}, frameLen, nil
}

func readUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// DecodeRecords materializes every record in the block as an ordered
// value.Record, in field-directory order.
func (fr Frame) DecodeRecords(limits format.Limits) ([]value.Record, error) {
	recordCount := int(fr.Header.RecordCount)

	perField := make([][]*value.Value, len(fr.Header.Fields))

	for i, entry := range fr.Header.Fields {
		compressed := fr.Segments[entry.SegmentOffset : entry.SegmentOffset+entry.SegmentCompressedLen]

		vals, err := DecodeSegment(entry, compressed, recordCount, limits)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", entry.Name, err)
		}

		perField[i] = vals
	}

	records := make([]value.Record, recordCount)

	for rec := 0; rec < recordCount; rec++ {
		var fields value.Record

		for i, entry := range fr.Header.Fields {
			if v := perField[i][rec]; v != nil {
				fields = append(fields, value.Field{Name: entry.Name, Value: *v})
			}
		}

		records[rec] = fields
	}

	return records, nil
}

// ProjectField decodes only the named field's segment, returning one
// pointer per record (nil meaning absent). An unknown field name yields an
// all-nil slice, per the spec's "unknown name => all None" rule.
func (fr Frame) ProjectField(name string, limits format.Limits) ([]*value.Value, error) {
	recordCount := int(fr.Header.RecordCount)

	for _, entry := range fr.Header.Fields {
		if entry.Name != name {
			continue
		}

		compressed := fr.Segments[entry.SegmentOffset : entry.SegmentOffset+entry.SegmentCompressedLen]

		return DecodeSegment(entry, compressed, recordCount, limits)
	}

	return make([]*value.Value, recordCount), nil
}
