// Package columnar implements the per-field Column Builder: the
// accumulator that regroups one field's values across a block's records,
// chooses dictionary-vs-raw and delta-vs-plain representations at
// finalization, and emits the field's uncompressed segment payload in the
// wire format's normative substream order.
package columnar

import (
	"fmt"
	"math"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/pool"
	"github.com/iambrandonn/jac/value"
)

// Finalized is the result of freezing a Builder: the field's uncompressed
// segment payload plus the directory metadata a block header needs (minus
// compressor id, level, and segment offset, which the block builder fills
// in after compression).
type Finalized struct {
	Payload           []byte
	PresenceBytes     uint64
	TagBytes          uint64
	ValueCountPresent uint64
	EncodingFlags     uint64
	DictEntryCount    uint64
}

// Builder accumulates one field's observations within a block in progress.
// It is created on first observation of the field and discarded after
// Finalize.
type Builder struct {
	name   string
	limits format.Limits

	blockRecordCount int

	presentIdx []int
	tags       []format.Tag

	bools    []bool
	ints     []int64
	decimals []format.Decimal
	strings  []string
	objects  [][]byte
	arrays   [][]byte

	dictOrder []string
	dictIndex map[string]int
}

// New creates a Builder for field name.
func New(name string, limits format.Limits) *Builder {
	return &Builder{
		name:      name,
		limits:    limits,
		dictIndex: make(map[string]int),
	}
}

// Name returns the field name this builder accumulates.
func (b *Builder) Name() string { return b.name }

// RecordCount returns the number of records observed to carry this field
// (present, including explicit null).
func (b *Builder) RecordCount() int { return len(b.presentIdx) }

// ValidateValue checks v against limits without mutating any builder state.
// The block builder calls this for every field of a record before
// committing any of that record's values, so a record that fails partway
// through never leaves one field's column mutated while a sibling field's
// column is not.
func ValidateValue(name string, v value.Value, limits format.Limits) error {
	if !v.Tag.Valid() {
		return errs.NewFeatureError(fmt.Sprintf("reserved type tag %d", v.Tag))
	}

	switch v.Tag {
	case format.TagDecimal:
		if uint64(len(v.Decimal.Digits)) > limits.MaxDecimalDigitsPerValue {
			return errs.NewLimitError(name, "decimal digits", uint64(len(v.Decimal.Digits)), limits.MaxDecimalDigitsPerValue)
		}
	case format.TagString:
		if uint64(len(v.Str)) > limits.MaxStringLenPerValue {
			return errs.NewLimitError(name, "string length", uint64(len(v.Str)), limits.MaxStringLenPerValue)
		}
	}

	return nil
}

// AddValue records that recordIdx carries v for this field. recordIdx must
// be monotonically non-decreasing across calls (the block builder streams
// records in order).
func (b *Builder) AddValue(recordIdx int, v value.Value) error {
	if err := ValidateValue(b.name, v, b.limits); err != nil {
		return err
	}

	b.presentIdx = append(b.presentIdx, recordIdx)
	b.tags = append(b.tags, v.Tag)

	switch v.Tag {
	case format.TagNull:
		// no substream entry
	case format.TagBool:
		b.bools = append(b.bools, v.Bool)
	case format.TagInt:
		b.ints = append(b.ints, v.Int)
	case format.TagDecimal:
		b.decimals = append(b.decimals, v.Decimal)
	case format.TagString:
		b.strings = append(b.strings, v.Str)

		if _, ok := b.dictIndex[v.Str]; !ok {
			b.dictIndex[v.Str] = len(b.dictOrder)
			b.dictOrder = append(b.dictOrder, v.Str)
		}
	case format.TagObject:
		b.objects = append(b.objects, v.Raw)
	case format.TagArray:
		b.arrays = append(b.arrays, v.Raw)
	}

	return nil
}

// EstimateValue returns the worst-case number of uncompressed payload bytes
// a single occurrence of v would add to this field's segment, for
// admission-control projection without mutating the builder.
func EstimateValue(v value.Value) uint64 {
	// presence/tag costs are sub-byte and amortized across the whole
	// column; only substream contribution is counted here.
	switch v.Tag {
	case format.TagNull:
		return 0
	case format.TagBool:
		return 1
	case format.TagInt:
		return 10 // worst-case ULEB128(zigzag(i64))
	case format.TagDecimal:
		return 1 + 10 + uint64(len(v.Decimal.Digits)) + 10
	case format.TagString:
		return 10 + uint64(len(v.Str)) // raw len,bytes upper bound; dictionary can only be smaller
	case format.TagObject, format.TagArray:
		return 10 + uint64(len(v.Raw))
	default:
		return 0
	}
}

// Contribution returns this builder's current projected uncompressed
// payload size, used by the block builder to test whether adding another
// record would exceed Limits.MaxSegmentUncompressedLen.
func (b *Builder) Contribution() uint64 {
	n := uint64((b.totalRecords()+7)/8)           // presence
	n += uint64((len(b.tags)*3 + 7) / 8)          // tags
	n += uint64(len(b.bools)+7) / 8

	for _, d := range b.decimals {
		n += 1 + 10 + uint64(len(d.Digits)) + 10
	}

	n += uint64(len(b.ints)) * 10

	for _, s := range b.strings {
		n += 10 + uint64(len(s))
	}

	for _, o := range b.objects {
		n += 10 + uint64(len(o))
	}

	for _, a := range b.arrays {
		n += 10 + uint64(len(a))
	}

	for _, s := range b.dictOrder {
		n += 10 + uint64(len(s))
	}

	return n
}

// SetBlockRecordCount tells the builder how many records the owning block
// currently holds, so Contribution can project the presence bitmap's
// eventual size accurately even before Finalize is called.
func (b *Builder) SetBlockRecordCount(n int) { b.blockRecordCount = n }

// totalRecords is the presence bitmap length this builder would need if
// finalized right now.
func (b *Builder) totalRecords() int {
	if b.blockRecordCount > 0 {
		return b.blockRecordCount
	}

	if len(b.presentIdx) == 0 {
		return 0
	}

	return b.presentIdx[len(b.presentIdx)-1] + 1
}

// Finalize freezes the builder against a block containing recordCount
// records total and returns the field's uncompressed segment payload and
// directory metadata. The builder must not be reused afterward.
func (b *Builder) Finalize(recordCount int) (Finalized, error) {
	presence := format.NewPresenceBitmap(recordCount)
	for _, idx := range b.presentIdx {
		presence.SetPresent(idx, true)
	}

	tagPacker := format.NewTagPacker()
	for _, t := range b.tags {
		tagPacker.Push(uint8(t))
	}

	useDict, dictOrder := b.decideDictionary()

	var flags uint64
	if useDict {
		flags |= format.EncodingFlagDictionary
	}

	useDelta := shouldDelta(b.ints)
	if useDelta {
		flags |= format.EncodingFlagDelta
	}

	bb := pool.GetSegmentBuffer()
	defer pool.PutSegmentBuffer(bb)

	bb.MustWrite(presence.Bytes())
	bb.MustWrite(tagPacker.Finish())

	if useDict {
		bb.B = appendDictionary(bb.B, dictOrder)
	}

	bb.B = appendBools(bb.B, b.bools)
	bb.B = appendInts(bb.B, b.ints, useDelta)

	for _, d := range b.decimals {
		bb.B = d.Encode(bb.B)
	}

	if useDict {
		index := make(map[string]int, len(dictOrder))
		for i, s := range dictOrder {
			index[s] = i
		}

		for _, s := range b.strings {
			bb.B = format.AppendUvarint(bb.B, uint64(index[s]))
		}
	} else {
		for _, s := range b.strings {
			bb.B = format.AppendUvarint(bb.B, uint64(len(s)))
			bb.MustWrite([]byte(s))
		}
	}

	for _, o := range b.objects {
		bb.B = format.AppendUvarint(bb.B, uint64(len(o)))
		bb.MustWrite(o)
	}

	for _, a := range b.arrays {
		bb.B = format.AppendUvarint(bb.B, uint64(len(a)))
		bb.MustWrite(a)
	}

	payload := append([]byte(nil), bb.Bytes()...)

	dictCount := uint64(0)
	if useDict {
		dictCount = uint64(len(dictOrder))
	}

	if uint64(len(presence.Bytes())) > b.limits.MaxPresenceBytes {
		return Finalized{}, errs.NewLimitError(b.name, "presence bytes", uint64(len(presence.Bytes())), b.limits.MaxPresenceBytes)
	}

	if uint64(len(tagPacker.Finish())) > b.limits.MaxTagBytes {
		return Finalized{}, errs.NewLimitError(b.name, "tag bytes", uint64(len(tagPacker.Finish())), b.limits.MaxTagBytes)
	}

	if uint64(len(payload)) > b.limits.MaxSegmentUncompressedLen {
		return Finalized{}, errs.NewLimitError(b.name, "segment uncompressed len", uint64(len(payload)), b.limits.MaxSegmentUncompressedLen)
	}

	return Finalized{
		Payload:           payload,
		PresenceBytes:     uint64(len(presence.Bytes())),
		TagBytes:          uint64(len(tagPacker.Finish())),
		ValueCountPresent: uint64(len(b.presentIdx)),
		EncodingFlags:     flags,
		DictEntryCount:    dictCount,
	}, nil
}

// decideDictionary applies the threshold rule: use the dictionary iff
// distinct <= min(max_dict_entries, max(2, total/4)).
func (b *Builder) decideDictionary() (bool, []string) {
	if len(b.strings) == 0 {
		return false, nil
	}

	distinct := uint64(len(b.dictOrder))
	total := uint64(len(b.strings))

	threshold := total / 4
	if threshold < 2 {
		threshold = 2
	}

	if threshold > b.limits.MaxDictEntriesPerField {
		threshold = b.limits.MaxDictEntriesPerField
	}

	if distinct > b.limits.MaxDictEntriesPerField {
		return false, nil
	}

	return distinct <= threshold, b.dictOrder
}

func appendDictionary(dst []byte, entries []string) []byte {
	for _, s := range entries {
		dst = format.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	}

	return dst
}

func appendBools(dst []byte, bools []bool) []byte {
	if len(bools) == 0 {
		return dst
	}

	packed := make([]byte, (len(bools)+7)/8)

	for i, v := range bools {
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}

	return append(dst, packed...)
}

func appendInts(dst []byte, ints []int64, delta bool) []byte {
	if len(ints) == 0 {
		return dst
	}

	if !delta {
		for _, v := range ints {
			dst = format.AppendUvarint(dst, format.ZigzagEncode(v))
		}

		return dst
	}

	dst = format.AppendUvarint(dst, format.ZigzagEncode(ints[0]))

	prev := ints[0]
	for _, v := range ints[1:] {
		d := int64(uint64(v) - uint64(prev))
		dst = format.AppendUvarint(dst, format.ZigzagEncode(d))
		prev = v
	}

	return dst
}

// shouldDelta applies the delta-vs-plain heuristic: strictly increasing,
// and (max_delta-min_delta)/(last-first) < 0.5.
func shouldDelta(ints []int64) bool {
	if len(ints) < 2 {
		return false
	}

	for i := 1; i < len(ints); i++ {
		if ints[i] <= ints[i-1] {
			return false
		}
	}

	total := float64(ints[len(ints)-1]) - float64(ints[0])
	if total <= 0 {
		return false
	}

	minDelta, maxDelta := math.MaxFloat64, -math.MaxFloat64

	for i := 1; i < len(ints); i++ {
		d := float64(ints[i]) - float64(ints[i-1])
		if d < minDelta {
			minDelta = d
		}

		if d > maxDelta {
			maxDelta = d
		}
	}

	return (maxDelta-minDelta)/total < 0.5
}
