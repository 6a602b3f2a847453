package jac

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/iambrandonn/jac/block"
	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/options"
	"github.com/iambrandonn/jac/value"
)

// maxHeaderProbeBytes bounds the prefix read while locating the end of the
// file header; it mirrors the header's own user-metadata hard cap plus a
// comfortable margin for the fixed-width fields ahead of it.
const maxHeaderProbeBytes = 16*1024*1024 + 4096

// Reader parses a JAC container: its lifecycle is Unopened -> HeaderParsed
// -> (BlockOpen -> HeaderParsed)* -> Exhausted. NewReader performs the
// Unopened -> HeaderParsed transition; NextBlock performs each
// HeaderParsed -> BlockOpen -> HeaderParsed step and returns io.EOF once
// Exhausted.
type Reader struct {
	ra   io.ReaderAt
	size int64
	opts DecompressOptions

	header    format.FileHeader
	dataStart int64
	dataEnd   int64

	index     []format.BlockIndexEntry
	indexPos  int
	hasIndex  bool
	scanPos   int64
	exhausted bool
}

// NewReader opens a seekable JAC container backed by ra (a file or an
// in-memory buffer), parsing the file header and, if a valid trailing
// index footer is present, using it for O(1) block enumeration.
func NewReader(ra io.ReaderAt, size int64, opts ...DecompressOption) (*Reader, error) {
	cfg := DefaultDecompressOptions()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	if size < int64(len(format.FileMagic)) {
		return nil, errs.ErrUnexpectedEof
	}

	probeLen := size
	if probeLen > maxHeaderProbeBytes {
		probeLen = maxHeaderProbeBytes
	}

	probe := make([]byte, probeLen)
	if _, err := ra.ReadAt(probe, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", errs.ErrIo, err)
	}

	if !bytes.Equal(probe[:3], format.FileMagic[:3]) {
		return nil, errs.ErrInvalidMagic
	}

	if probe[3] != format.CurrentVersion {
		return nil, errs.NewVersionError(probe[3])
	}

	header, n, err := format.DecodeFileHeader(probe[4:])
	if err != nil {
		return nil, err
	}

	r := &Reader{
		ra:      ra,
		size:    size,
		opts:    cfg,
		header:  header,
		dataEnd: size,
	}
	r.dataStart = int64(4 + n)
	r.scanPos = r.dataStart

	r.tryLoadIndex()

	return r, nil
}

// NewStreamReader wraps a plain io.Reader by buffering it fully into
// memory, then opening it as a seekable Reader. This trades constant
// memory for the simplicity of a single random-access code path; callers
// with very large inputs should prefer NewReader over a file or mmap.
func NewStreamReader(r io.Reader, opts ...DecompressOption) (*Reader, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIo, err)
	}

	return NewReader(bytes.NewReader(buf), int64(len(buf)), opts...)
}

// FileHeader returns the parsed file header.
func (r *Reader) FileHeader() format.FileHeader { return r.header }

func (r *Reader) tryLoadIndex() {
	const footerPtrLen = 8
	if r.size-r.dataStart < footerPtrLen {
		return
	}

	ptrBuf := make([]byte, footerPtrLen)
	if _, err := r.ra.ReadAt(ptrBuf, r.size-footerPtrLen); err != nil {
		return
	}

	footerOffset := int64(readUint64LE(ptrBuf))
	if footerOffset < r.dataStart || footerOffset > r.size-footerPtrLen {
		return
	}

	footerBuf := make([]byte, r.size-footerPtrLen-footerOffset)
	if _, err := r.ra.ReadAt(footerBuf, footerOffset); err != nil {
		return
	}

	footer, err := format.DecodeIndexFooter(footerBuf)
	if err != nil {
		return
	}

	r.index = footer.Entries
	r.hasIndex = true
	r.dataEnd = footerOffset
}

// NextBlock returns the next block frame, or io.EOF once every block has
// been consumed. In lenient mode, a block whose framing is invalid is
// skipped by resynchronizing on the next BLK1 magic; in strict mode (the
// default) any framing error is returned immediately.
func (r *Reader) NextBlock() (block.Frame, error) {
	if r.exhausted {
		return block.Frame{}, io.EOF
	}

	if r.hasIndex {
		return r.nextBlockIndexed()
	}

	return r.nextBlockScanned()
}

func (r *Reader) nextBlockIndexed() (block.Frame, error) {
	if r.indexPos >= len(r.index) {
		r.exhausted = true
		return block.Frame{}, io.EOF
	}

	entry := r.index[r.indexPos]
	r.indexPos++

	buf := make([]byte, entry.Size)
	if _, err := r.ra.ReadAt(buf, int64(entry.Offset)); err != nil {
		return block.Frame{}, fmt.Errorf("%w: %v", errs.ErrIo, err)
	}

	frame, _, err := block.DecodeFrame(buf, r.opts.limits, !r.opts.verifyChecksums)
	if err != nil {
		// Lenient mode skips a block with invalid framing by moving on to
		// the next index entry; a checksum failure is never skipped.
		if r.opts.lenient && !errors.Is(err, errs.ErrChecksumMismatch) {
			return r.nextBlockIndexed()
		}

		return block.Frame{}, err
	}

	return frame, nil
}

func (r *Reader) nextBlockScanned() (block.Frame, error) {
	for {
		if r.scanPos >= r.dataEnd {
			r.exhausted = true
			return block.Frame{}, io.EOF
		}

		window := make([]byte, r.dataEnd-r.scanPos)
		if _, err := r.ra.ReadAt(window, r.scanPos); err != nil && err != io.EOF {
			return block.Frame{}, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}

		frame, n, err := block.DecodeFrame(window, r.opts.limits, !r.opts.verifyChecksums)
		if err == nil {
			r.scanPos += int64(n)
			return frame, nil
		}

		// Lenient mode only resyncs on framing/structural errors (bad
		// magic, corrupt header/layout, truncation). A checksum failure
		// means the framing itself was accepted as well-formed but the
		// bytes don't match it, which is never recoverable by scanning
		// forward for the next block magic.
		if !r.opts.lenient || errors.Is(err, errs.ErrChecksumMismatch) {
			return block.Frame{}, err
		}

		next := findNextMagic(window[1:])
		if next < 0 {
			r.exhausted = true
			return block.Frame{}, io.EOF
		}

		r.scanPos += int64(next) + 1
	}
}

func findNextMagic(window []byte) int {
	var magic [4]byte
	putUint32LE(magic[:], format.BlockMagic)

	return bytes.Index(window, magic[:])
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// DecodeRecords materializes every record in the container, in file order.
func (r *Reader) DecodeRecords() ([]value.Record, error) {
	var out []value.Record

	for {
		frame, err := r.NextBlock()
		if err == io.EOF {
			return out, nil
		}

		if err != nil {
			return nil, err
		}

		recs, err := frame.DecodeRecords(r.opts.limits)
		if err != nil {
			return nil, err
		}

		out = append(out, recs...)
	}
}

// ProjectColumns decodes only the named fields across every block,
// returning one slice per requested name (nil entry meaning absent for
// that record) with columns aligned by record index. An empty names list
// is a caller error.
func (r *Reader) ProjectColumns(names []string) (map[string][]*value.Value, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: projection requires at least one field name", errs.ErrInternal)
	}

	result := make(map[string][]*value.Value, len(names))
	for _, n := range names {
		result[n] = nil
	}

	for {
		frame, err := r.NextBlock()
		if err == io.EOF {
			return result, nil
		}

		if err != nil {
			return nil, err
		}

		for _, name := range names {
			col, err := frame.ProjectField(name, r.opts.limits)
			if err != nil {
				return nil, err
			}

			result[name] = append(result[name], col...)
		}
	}
}
