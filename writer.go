package jac

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iambrandonn/jac/block"
	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/internal/options"
	"github.com/iambrandonn/jac/value"
)

// Writer accumulates records into blocks and streams framed blocks to a
// sink. Its lifecycle is Open -> (RecordsBuffered -> Open)* -> Finished:
// WriteRecord absorbs records into the block in progress, Flush forces an
// early block boundary, and Finish drains the last partial block (and,
// if requested, an index footer) and closes the writer for further writes.
type Writer struct {
	sink   io.Writer
	opts   CompressOptions
	header format.FileHeader

	cur *block.Builder

	decision ParallelDecision
	sem      chan struct{}
	wg       sync.WaitGroup

	mu           sync.Mutex
	pending      map[uint64]pendingBlock
	nextWrite    uint64
	firstErr     error
	indexEntries []format.BlockIndexEntry
	offset       uint64

	seq            uint64
	recordsWritten uint64
	blocksWritten  uint64
	finished       bool
}

type pendingBlock struct {
	data        []byte
	recordCount uint64
	err         error
}

// NewWriter builds a Writer over sink: it writes the file magic and file
// header immediately, then returns ready to accept records.
func NewWriter(sink io.Writer, opts ...CompressOption) (*Writer, error) {
	cfg := DefaultCompressOptions()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	var flags uint32
	if cfg.canonicalizeKeys {
		flags |= format.FlagCanonicalizeKeys
	}

	if cfg.canonicalizeNumbers {
		flags |= format.FlagCanonicalizeNumbers
	}

	flags |= format.FlagNestedOpaque

	header := format.FileHeader{
		Flags:                   flags,
		DefaultCompressor:       cfg.defaultCompressor,
		DefaultCompressionLevel: cfg.defaultCompressionLevel,
		BlockSizeHintRecords:    cfg.blockTargetRecords,
		UserMetadata:            cfg.userMetadata,
	}
	header = header.WithContainerHint(cfg.containerHint)

	buf := append([]byte(nil), format.FileMagic[:]...)
	buf = header.Encode(buf)

	if _, err := sink.Write(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIo, err)
	}

	decision := decideParallel(cfg.parallel, 0, cfg.limits.MaxBlockUncompressedTotal)

	w := &Writer{
		sink:     sink,
		opts:     cfg,
		header:   header,
		decision: decision,
		pending:  make(map[uint64]pendingBlock),
		offset:   uint64(len(buf)),
	}

	if decision.Enabled {
		w.sem = make(chan struct{}, decision.ThreadCount)
	}

	return w, nil
}

func (w *Writer) newBuilder() *block.Builder {
	return block.NewBuilder(w.opts.limits, w.opts.blockTargetRecords, w.opts.defaultCompressor, w.opts.defaultCompressionLevel, w.opts.canonicalizeKeys, w.opts.canonicalizeNumbers)
}

func (w *Writer) checkErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.firstErr
}

func (w *Writer) setFatal(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.firstErr == nil {
		w.firstErr = err
	}
}

// WriteRecord absorbs rec into the block currently in progress, finalizing
// and dispatching the previous block first if rec would overflow it. An
// oversized single record (one that can never fit even in an empty block)
// is surfaced as an error while the Writer remains Open for the next
// record; any other error leaves the Writer unable to accept further
// writes.
func (w *Writer) WriteRecord(rec value.Record) error {
	if w.finished {
		return fmt.Errorf("%w: writer already finished", errs.ErrInternal)
	}

	if err := w.checkErr(); err != nil {
		return err
	}

	if w.cur == nil {
		w.cur = w.newBuilder()
	}

	outcome, err := w.cur.TryAddRecord(rec)
	if err != nil {
		if errors.Is(err, errs.ErrLimitExceeded) {
			// Oversized single record: TryAddRecord rejected it before
			// touching the block, so the caller may skip it and keep
			// writing against the same block.
			return err
		}

		w.setFatal(err)

		return err
	}

	if outcome == block.Full {
		w.dispatchFinalize(w.cur)
		w.cur = w.newBuilder()

		outcome, err = w.cur.TryAddRecord(rec)
		if err != nil {
			if errors.Is(err, errs.ErrLimitExceeded) {
				// Too large even for the fresh, empty block: skippable.
				return err
			}

			w.setFatal(err)
			return err
		}

		if outcome != block.Added {
			err := fmt.Errorf("%w: record rejected by a fresh block", errs.ErrInternal)
			w.setFatal(err)

			return err
		}
	}

	w.recordsWritten++

	return w.checkErr()
}

// Flush forces the current in-progress block to finalize and waits for it
// (and any still-outstanding block) to be written to the sink.
func (w *Writer) Flush() error {
	if w.cur != nil && !w.cur.Empty() {
		w.dispatchFinalize(w.cur)
		w.cur = nil
	}

	w.wg.Wait()

	return w.checkErr()
}

// Finish drains the last partial block, optionally appends an index
// footer, and transitions the Writer to Finished. Calling WriteRecord after
// Finish returns an error.
func (w *Writer) Finish(emitIndex bool) error {
	if w.finished {
		return fmt.Errorf("%w: writer already finished", errs.ErrInternal)
	}

	if w.cur != nil && !w.cur.Empty() {
		w.dispatchFinalize(w.cur)
		w.cur = nil
	}

	w.wg.Wait()
	w.finished = true

	if err := w.checkErr(); err != nil {
		return err
	}

	if emitIndex {
		footer := format.IndexFooter{Entries: w.indexEntries}
		footerBytes := footer.Encode()
		footerOffset := w.offset

		if _, err := w.sink.Write(footerBytes); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIo, err)
		}

		w.offset += uint64(len(footerBytes))

		var ptr [8]byte
		putUint64LE(ptr[:], footerOffset)

		if _, err := w.sink.Write(ptr[:]); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrIo, err)
		}

		w.offset += 8
	}

	return nil
}

// RecordsWritten returns the number of records absorbed so far.
func (w *Writer) RecordsWritten() uint64 { return w.recordsWritten }

// BlocksWritten returns the number of block frames written to the sink so
// far.
func (w *Writer) BlocksWritten() uint64 { return w.blocksWritten }

// BytesWritten returns the number of bytes written to the sink so far
// (file header, block frames, and index footer once Finish runs).
func (w *Writer) BytesWritten() uint64 { return w.offset }

// BlockMetrics returns one entry per block written so far (its file offset,
// framed byte size, and record count), in write order. These are the same
// entries an index footer would carry, exposed here regardless of whether
// WithEmitIndex was requested.
func (w *Writer) BlockMetrics() []format.BlockIndexEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]format.BlockIndexEntry(nil), w.indexEntries...)
}

// ParallelDecision reports the heuristic's outcome for this Writer.
func (w *Writer) ParallelDecision() ParallelDecision { return w.decision }

func (w *Writer) dispatchFinalize(b *block.Builder) {
	seq := w.seq
	w.seq++
	recordCount := uint64(b.RecordCount())

	if w.decision.Enabled {
		w.sem <- struct{}{}
		w.wg.Add(1)

		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()

			data, err := b.Finalize()
			w.deliver(seq, recordCount, data, err)
		}()

		return
	}

	data, err := b.Finalize()
	w.deliver(seq, recordCount, data, err)
}

// deliver records one finalized block's result and writes every
// contiguous, in-order prefix of pending blocks to the sink. It is safe to
// call from multiple goroutines.
func (w *Writer) deliver(seq, recordCount uint64, data []byte, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[seq] = pendingBlock{data: data, recordCount: recordCount, err: err}

	for {
		pb, ok := w.pending[w.nextWrite]
		if !ok {
			return
		}

		delete(w.pending, w.nextWrite)
		w.nextWrite++

		if w.firstErr != nil {
			continue
		}

		if pb.err != nil {
			w.firstErr = pb.err
			continue
		}

		if len(pb.data) == 0 {
			continue
		}

		if _, werr := w.sink.Write(pb.data); werr != nil {
			w.firstErr = fmt.Errorf("%w: %v", errs.ErrIo, werr)
			continue
		}

		w.indexEntries = append(w.indexEntries, format.BlockIndexEntry{
			Offset:      w.offset,
			Size:        uint64(len(pb.data)),
			RecordCount: pb.recordCount,
		})
		w.offset += uint64(len(pb.data))
		w.blocksWritten++
	}
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func readUint64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}
