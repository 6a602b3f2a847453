// Package block implements the Block Builder and Block/Segment Decoders:
// the machinery that aggregates a block's Column Builders into one framed,
// CRC-protected byte sequence, and the mirror that parses that sequence
// back into records or a single projected field.
package block

import (
	"fmt"

	"github.com/iambrandonn/jac/compress"
	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/pool"
	"github.com/iambrandonn/jac/value"
)

// DecodeSegment decompresses and reconstructs one field's per-record values
// from its field directory entry and compressed segment bytes. The
// returned slice has one entry per record in [0, recordCount); a nil entry
// means the field was absent from that record.
func DecodeSegment(entry format.FieldDirectoryEntry, compressedData []byte, recordCount int, limits format.Limits) ([]*value.Value, error) {
	codec, err := compress.GetCodec(entry.Compressor)
	if err != nil {
		return nil, err
	}

	raw, err := codec.Decompress(compressedData)
	if err != nil {
		return nil, err
	}

	if uint64(len(raw)) != entry.SegmentUncompressedLen {
		return nil, fmt.Errorf("%w: field %q declared uncompressed len %d, got %d",
			errs.ErrCorruptBlock, entry.Name, entry.SegmentUncompressedLen, len(raw))
	}

	presenceBytes := (recordCount + 7) / 8
	if uint64(presenceBytes) != entry.PresenceBytes {
		return nil, fmt.Errorf("%w: field %q presence_bytes mismatch", errs.ErrCorruptBlock, entry.Name)
	}

	tagBytes := int((entry.ValueCountPresent*3 + 7) / 8)
	if uint64(tagBytes) != entry.TagBytes {
		return nil, fmt.Errorf("%w: field %q tag_bytes mismatch", errs.ErrCorruptBlock, entry.Name)
	}

	if len(raw) < presenceBytes+tagBytes {
		return nil, errs.ErrUnexpectedEof
	}

	presence := format.PresenceBitmapFromBytes(raw[:presenceBytes], recordCount)
	if uint64(presence.CountPresent()) != entry.ValueCountPresent {
		return nil, fmt.Errorf("%w: field %q presence popcount != value_count_present", errs.ErrCorruptBlock, entry.Name)
	}

	cursor := presenceBytes

	tagUnpacker := format.NewTagUnpacker(raw[cursor:cursor+tagBytes], int(entry.ValueCountPresent))
	cursor += tagBytes

	tags := make([]format.Tag, entry.ValueCountPresent)

	var histogram [7]int

	for i := range tags {
		t, ok := tagUnpacker.Next()
		if !ok {
			return nil, errs.ErrUnexpectedEof
		}

		tag := format.Tag(t)
		if tag == format.TagReserved {
			return nil, errs.NewFeatureError(fmt.Sprintf("reserved type tag in field %q", entry.Name))
		}

		if !tag.Valid() {
			return nil, errs.NewFeatureError(fmt.Sprintf("reserved type tag in field %q", entry.Name))
		}

		tags[i] = tag
		histogram[tag]++
	}

	hasDict := entry.EncodingFlags&format.EncodingFlagDictionary != 0
	if hasDict != (entry.DictEntryCount > 0) {
		return nil, fmt.Errorf("%w: field %q dictionary flag/count mismatch", errs.ErrCorruptBlock, entry.Name)
	}

	var dict []string

	if hasDict {
		dict = make([]string, entry.DictEntryCount)

		for i := range dict {
			s, n, err := readLenPrefixed(raw[cursor:], limits.MaxStringLenPerValue)
			if err != nil {
				return nil, err
			}

			dict[i] = s
			cursor += n
		}
	}

	boolCount := histogram[format.TagBool]
	boolBytes := (boolCount + 7) / 8

	if cursor+boolBytes > len(raw) {
		return nil, errs.ErrUnexpectedEof
	}

	boolBuf := raw[cursor : cursor+boolBytes]
	cursor += boolBytes

	delta := entry.EncodingFlags&format.EncodingFlagDelta != 0

	ints, intsCleanup, n, err := decodeInts(raw[cursor:], histogram[format.TagInt], delta)
	if err != nil {
		return nil, err
	}
	defer intsCleanup()

	cursor += n

	decimals := make([]format.Decimal, histogram[format.TagDecimal])

	for i := range decimals {
		d, used, err := format.DecodeDecimal(raw[cursor:], limits.MaxDecimalDigitsPerValue)
		if err != nil {
			return nil, err
		}

		decimals[i] = d
		cursor += used
	}

	strs, strsCleanup := pool.GetStringSlice(histogram[format.TagString])
	defer strsCleanup()

	if hasDict {
		for i := range strs {
			idx, used, err := format.DecodeUvarint(raw[cursor:])
			if err != nil {
				return nil, err
			}

			cursor += used

			if idx >= uint64(len(dict)) {
				return nil, fmt.Errorf("%w: field %q index %d", errs.ErrDictionaryError, entry.Name, idx)
			}

			strs[i] = dict[idx]
		}
	} else {
		for i := range strs {
			s, used, err := readLenPrefixed(raw[cursor:], limits.MaxStringLenPerValue)
			if err != nil {
				return nil, err
			}

			strs[i] = s
			cursor += used
		}
	}

	objs := make([][]byte, histogram[format.TagObject])
	for i := range objs {
		b, used, err := readLenPrefixedBytes(raw[cursor:], limits.MaxSegmentUncompressedLen)
		if err != nil {
			return nil, err
		}

		objs[i] = b
		cursor += used
	}

	arrs := make([][]byte, histogram[format.TagArray])
	for i := range arrs {
		b, used, err := readLenPrefixedBytes(raw[cursor:], limits.MaxSegmentUncompressedLen)
		if err != nil {
			return nil, err
		}

		arrs[i] = b
		cursor += used
	}

	if cursor != len(raw) {
		return nil, fmt.Errorf("%w: field %q has %d leftover segment bytes", errs.ErrCorruptBlock, entry.Name, len(raw)-cursor)
	}

	result := make([]*value.Value, recordCount)

	var boolCursor, intCursor, decCursor, strCursor, objCursor, arrCursor int

	tagIdx := 0

	for rec := 0; rec < recordCount; rec++ {
		if !presence.IsPresent(rec) {
			continue
		}

		tag := tags[tagIdx]
		tagIdx++

		var v value.Value

		switch tag {
		case format.TagNull:
			v = value.Null
		case format.TagBool:
			v = value.FromBool(readBit(boolBuf, boolCursor))
			boolCursor++
		case format.TagInt:
			v = value.FromInt(ints[intCursor])
			intCursor++
		case format.TagDecimal:
			v = value.FromDecimal(decimals[decCursor])
			decCursor++
		case format.TagString:
			v = value.FromString(strs[strCursor])
			strCursor++
		case format.TagObject:
			v = value.FromObject(objs[objCursor])
			objCursor++
		case format.TagArray:
			v = value.FromArray(arrs[arrCursor])
			arrCursor++
		}

		val := v
		result[rec] = &val
	}

	return result, nil
}

func decodeInts(src []byte, count int, delta bool) ([]int64, func(), int, error) {
	ints, cleanup := pool.GetInt64Slice(count)

	if count == 0 {
		return ints, cleanup, 0, nil
	}

	cursor := 0

	zz, n, err := format.DecodeUvarint(src[cursor:])
	if err != nil {
		cleanup()
		return nil, func() {}, 0, err
	}

	cursor += n
	ints[0] = format.ZigzagDecode(zz)

	if !delta {
		for i := 1; i < count; i++ {
			zz, n, err := format.DecodeUvarint(src[cursor:])
			if err != nil {
				cleanup()
				return nil, func() {}, 0, err
			}

			cursor += n
			ints[i] = format.ZigzagDecode(zz)
		}

		return ints, cleanup, cursor, nil
	}

	prev := ints[0]

	for i := 1; i < count; i++ {
		zz, n, err := format.DecodeUvarint(src[cursor:])
		if err != nil {
			cleanup()
			return nil, func() {}, 0, err
		}

		cursor += n

		d := format.ZigzagDecode(zz)
		cur := int64(uint64(prev) + uint64(d))
		ints[i] = cur
		prev = cur
	}

	return ints, cleanup, cursor, nil
}

func readBit(buf []byte, idx int) bool {
	byteIdx, bitIdx := idx/8, uint(idx%8)
	if byteIdx >= len(buf) {
		return false
	}

	return buf[byteIdx]&(1<<bitIdx) != 0
}

func readLenPrefixed(src []byte, maxLen uint64) (string, int, error) {
	strLen, n, err := format.DecodeUvarint(src)
	if err != nil {
		return "", 0, err
	}

	if strLen > maxLen {
		return "", 0, errs.NewLimitError("", "string length", strLen, maxLen)
	}

	if uint64(len(src)-n) < strLen {
		return "", 0, errs.ErrUnexpectedEof
	}

	return string(src[n : n+int(strLen)]), n + int(strLen), nil
}

func readLenPrefixedBytes(src []byte, maxLen uint64) ([]byte, int, error) {
	blobLen, n, err := format.DecodeUvarint(src)
	if err != nil {
		return nil, 0, err
	}

	if blobLen > maxLen {
		return nil, 0, errs.NewLimitError("", "nested value length", blobLen, maxLen)
	}

	if uint64(len(src)-n) < blobLen {
		return nil, 0, errs.ErrUnexpectedEof
	}

	out := append([]byte(nil), src[n:n+int(blobLen)]...)

	return out, n + int(blobLen), nil
}
