package format

import "github.com/iambrandonn/jac/errs"

// BlockIndexEntry maps one block to its absolute offset and size within the
// file, so the reader can enumerate blocks in O(1) without scanning.
type BlockIndexEntry struct {
	Offset      uint64
	Size        uint64
	RecordCount uint64
}

// IndexFooter is the optional trailing structure a Writer may emit when
// asked to produce a seekable index.
type IndexFooter struct {
	Entries []BlockIndexEntry
}

// Encode renders the complete footer bytes, including the IDX1 magic and
// trailing CRC32C, but excluding the final 8-byte absolute-offset pointer
// (the caller appends that once the footer's own start offset is known).
func (f IndexFooter) Encode() []byte {
	var body []byte
	body = AppendUvarint(body, uint64(len(f.Entries)))

	for _, e := range f.Entries {
		body = AppendUvarint(body, e.Offset)
		body = AppendUvarint(body, e.Size)
		body = AppendUvarint(body, e.RecordCount)
	}

	out := make([]byte, 0, 4+maxVarintLen+len(body)+4)

	var magic [4]byte
	putUint32LE(magic[:], IndexMagic)
	out = append(out, magic[:]...)
	out = AppendUvarint(out, uint64(len(body)))
	out = append(out, body...)

	crc := ComputeCRC32C(out)

	var crcBuf [4]byte
	putUint32LE(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)

	return out
}

// DecodeIndexFooter parses a footer previously produced by Encode, verifying
// its CRC32C.
func DecodeIndexFooter(src []byte) (IndexFooter, error) {
	if len(src) < 4+1+4 {
		return IndexFooter{}, errs.ErrUnexpectedEof
	}

	if readUint32LE(src[:4]) != IndexMagic {
		return IndexFooter{}, errs.ErrCorruptHeader
	}

	if len(src) < 4 {
		return IndexFooter{}, errs.ErrUnexpectedEof
	}

	crcExpected := readUint32LE(src[len(src)-4:])
	body := src[:len(src)-4]

	if err := VerifyCRC32C(body, crcExpected); err != nil {
		return IndexFooter{}, err
	}

	cursor := body[4:]

	indexLen, n, err := DecodeUvarint(cursor)
	if err != nil {
		return IndexFooter{}, err
	}

	cursor = cursor[n:]

	if uint64(len(cursor)) != indexLen {
		return IndexFooter{}, errs.ErrCorruptHeader
	}

	blockCount, n, err := DecodeUvarint(cursor)
	if err != nil {
		return IndexFooter{}, err
	}

	cursor = cursor[n:]

	const maxBlockCount = 1 << 24
	if blockCount > maxBlockCount {
		return IndexFooter{}, errs.NewLimitError("", "index block count", blockCount, maxBlockCount)
	}

	entries := make([]BlockIndexEntry, blockCount)

	for i := range entries {
		var e BlockIndexEntry

		v, n, err := DecodeUvarint(cursor)
		if err != nil {
			return IndexFooter{}, err
		}

		e.Offset = v
		cursor = cursor[n:]

		v, n, err = DecodeUvarint(cursor)
		if err != nil {
			return IndexFooter{}, err
		}

		e.Size = v
		cursor = cursor[n:]

		v, n, err = DecodeUvarint(cursor)
		if err != nil {
			return IndexFooter{}, err
		}

		e.RecordCount = v
		cursor = cursor[n:]

		entries[i] = e
	}

	return IndexFooter{Entries: entries}, nil
}
