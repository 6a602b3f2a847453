package block

import (
	"fmt"
	"sort"

	"github.com/iambrandonn/jac/columnar"
	"github.com/iambrandonn/jac/compress"
	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/pool"
	"github.com/iambrandonn/jac/value"
)

// AddOutcome is the result of Builder.TryAddRecord.
type AddOutcome int

const (
	// Added means the record was absorbed into the block in progress.
	Added AddOutcome = iota
	// Full means the block could not absorb the record; the caller
	// should finalize the current block and retry the same record
	// against a fresh Builder.
	Full
)

// Builder aggregates one block's worth of records: it owns one
// columnar.Builder per observed field and performs admission control
// (record count, memory estimate, per-field segment-size projection)
// before finalizing into a complete, framed, CRC-protected block.
type Builder struct {
	limits              format.Limits
	targetRecords       uint64
	defaultCompressor   format.CompressorID
	defaultLevel        uint8
	canonicalizeKeys    bool
	canonicalizeNumbers bool

	recordCount          int
	fieldOrder           []string
	fields               map[string]*columnar.Builder
	uncompressedEstimate uint64
}

// NewBuilder creates an empty Builder for one block.
func NewBuilder(limits format.Limits, targetRecords uint64, defaultCompressor format.CompressorID, defaultLevel uint8, canonicalizeKeys, canonicalizeNumbers bool) *Builder {
	return &Builder{
		limits:              limits,
		targetRecords:       targetRecords,
		defaultCompressor:   defaultCompressor,
		defaultLevel:        defaultLevel,
		canonicalizeKeys:    canonicalizeKeys,
		canonicalizeNumbers: canonicalizeNumbers,
		fields:              make(map[string]*columnar.Builder),
	}
}

// RecordCount returns the number of records absorbed so far.
func (b *Builder) RecordCount() int { return b.recordCount }

// Empty reports whether the builder has absorbed no records.
func (b *Builder) Empty() bool { return b.recordCount == 0 }

// TryAddRecord attempts to absorb rec. It returns Full without mutating the
// builder when the record would push any admission-control boundary past
// its cap; the caller should finalize the current block and retry rec
// against a new Builder. If the block is still empty and a single value
// already exceeds Limits.MaxSegmentUncompressedLen, TryAddRecord returns
// errs.ErrLimitExceeded instead of Full, since an empty block can never
// shrink the record enough to fit and retrying would loop forever.
func (b *Builder) TryAddRecord(rec value.Record) (AddOutcome, error) {
	if b.canonicalizeNumbers {
		rec = canonicalizeDecimals(rec)
	}

	if b.recordCount > 0 && uint64(b.recordCount) >= b.targetRecords {
		return Full, nil
	}

	if uint64(b.recordCount) >= b.limits.MaxRecordsPerBlock {
		return Full, nil
	}

	newFields := 0
	recordMemEstimate := uint64(0)

	for _, f := range rec {
		if f.Name == "" {
			return 0, fmt.Errorf("%w: empty field name", errs.ErrTypeMismatch)
		}

		// Validate every field's value before the mutating pass below
		// touches any column: a per-value limit breach on field N must
		// never leave fields 0..N-1 of the same rejected record already
		// appended to their columns.
		if err := columnar.ValidateValue(f.Name, f.Value, b.limits); err != nil {
			return 0, err
		}

		cb, exists := b.fields[f.Name]

		var contribution uint64
		if exists {
			contribution = cb.Contribution()
		} else {
			newFields++
		}

		added := columnar.EstimateValue(f.Value)
		recordMemEstimate += added

		projected := contribution + added
		if projected > b.limits.MaxSegmentUncompressedLen {
			if b.recordCount == 0 {
				return 0, errs.NewLimitError(f.Name, "segment uncompressed len", projected, b.limits.MaxSegmentUncompressedLen)
			}

			return Full, nil
		}
	}

	if uint64(len(b.fields)+newFields) > b.limits.MaxFieldsPerBlock {
		if b.recordCount == 0 {
			return 0, errs.NewLimitError("", "fields per block", uint64(len(b.fields)+newFields), b.limits.MaxFieldsPerBlock)
		}

		return Full, nil
	}

	if b.uncompressedEstimate+recordMemEstimate > b.limits.MaxBlockUncompressedTotal {
		if b.recordCount == 0 {
			return 0, errs.NewLimitError("", "block uncompressed total", b.uncompressedEstimate+recordMemEstimate, b.limits.MaxBlockUncompressedTotal)
		}

		return Full, nil
	}

	nextRecordCount := b.recordCount + 1

	for _, f := range rec {
		cb, exists := b.fields[f.Name]
		if !exists {
			cb = columnar.New(f.Name, b.limits)
			b.fields[f.Name] = cb
			b.fieldOrder = append(b.fieldOrder, f.Name)
		}

		cb.SetBlockRecordCount(nextRecordCount)

		if err := cb.AddValue(b.recordCount, f.Value); err != nil {
			return 0, err
		}
	}

	b.uncompressedEstimate += recordMemEstimate
	b.recordCount = nextRecordCount

	return Added, nil
}

// Finalize freezes the block: sorts field names lexicographically if
// canonicalize_keys was requested (otherwise keeps first-observation
// order), compresses each field's payload with the block's default codec,
// and assembles the complete BLK1 frame (magic, header, segments, CRC32C).
// Finalize returns (nil, nil) if the block is empty, matching the "no
// block frame emitted" boundary behavior.
func (b *Builder) Finalize() ([]byte, error) {
	if b.recordCount == 0 {
		return nil, nil
	}

	order := append([]string(nil), b.fieldOrder...)
	if b.canonicalizeKeys {
		sort.Strings(order)
	}

	codec, err := compress.CreateEncodeCodec(b.defaultCompressor, b.defaultLevel)
	if err != nil {
		return nil, err
	}

	entries := make([]format.FieldDirectoryEntry, 0, len(order))
	compressedSegments := make([][]byte, 0, len(order))

	var totalUncompressed uint64

	for _, name := range order {
		cb := b.fields[name]

		finalized, err := cb.Finalize(b.recordCount)
		if err != nil {
			return nil, err
		}

		totalUncompressed += uint64(len(finalized.Payload))
		if totalUncompressed > b.limits.MaxBlockUncompressedTotal {
			return nil, errs.NewLimitError("", "block uncompressed total", totalUncompressed, b.limits.MaxBlockUncompressedTotal)
		}

		compressed, err := codec.Compress(finalized.Payload)
		if err != nil {
			return nil, err
		}

		entries = append(entries, format.FieldDirectoryEntry{
			Name:                   name,
			Compressor:             b.defaultCompressor,
			Level:                  b.defaultLevel,
			PresenceBytes:          finalized.PresenceBytes,
			TagBytes:               finalized.TagBytes,
			ValueCountPresent:      finalized.ValueCountPresent,
			EncodingFlags:          finalized.EncodingFlags,
			DictEntryCount:         finalized.DictEntryCount,
			SegmentUncompressedLen: uint64(len(finalized.Payload)),
			SegmentCompressedLen:   uint64(len(compressed)),
		})
		compressedSegments = append(compressedSegments, compressed)
	}

	var offset uint64
	for i := range entries {
		entries[i].SegmentOffset = offset
		offset += entries[i].SegmentCompressedLen
	}

	header := format.BlockHeader{
		RecordCount: uint64(b.recordCount),
		Fields:      entries,
	}

	bb := pool.GetBlockBuffer()
	defer pool.PutBlockBuffer(bb)

	var magic [4]byte
	putMagic(magic[:], format.BlockMagic)
	bb.MustWrite(magic[:])

	headerStart := bb.Len()
	bb.B = header.Encode(bb.B)
	headerEnd := bb.Len()

	for _, seg := range compressedSegments {
		bb.MustWrite(seg)
	}

	crc := format.ComputeCRC32C(bb.Bytes()[headerStart : headerEnd+int(offset)])

	var crcBuf [4]byte
	putMagic(crcBuf[:], crc)
	bb.MustWrite(crcBuf[:])

	return append([]byte(nil), bb.Bytes()...), nil
}

// canonicalizeDecimals returns rec unchanged unless it carries at least one
// Decimal value, in which case it returns a copy with every Decimal
// replaced by its canonical form (trailing zero digits stripped).
func canonicalizeDecimals(rec value.Record) value.Record {
	for _, f := range rec {
		if f.Value.Tag == format.TagDecimal {
			out := append(value.Record(nil), rec...)

			for i := range out {
				if out[i].Value.Tag == format.TagDecimal {
					out[i].Value.Decimal = out[i].Value.Decimal.Canonicalize()
				}
			}

			return out
		}
	}

	return rec
}

func putMagic(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
