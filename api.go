package jac

import (
	"fmt"
	"io"
	"time"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/value"
)

// RecordReader supplies the lazy sequence of records a Compress call
// consumes. ReadRecord returns io.EOF once exhausted, mirroring
// json.Decoder.Decode's convention.
type RecordReader interface {
	ReadRecord() (value.Record, error)
}

// OutputFormat selects how Decompress and Project render decoded records.
type OutputFormat int

const (
	// FormatNDJSON writes one compact JSON object per line.
	FormatNDJSON OutputFormat = iota
	// FormatJSONArray writes a single JSON array of objects.
	FormatJSONArray
)

// CompressionRuntimeStats carries wall-clock time and a best-effort peak
// resident-set-size sample for one Compress call.
type CompressionRuntimeStats struct {
	WallTime     time.Duration
	PeakRSSBytes uint64
}

// CompressResult summarizes one Compress call.
type CompressResult struct {
	RecordsWritten uint64
	BlocksWritten  uint64
	BytesWritten   uint64
	Parallel       ParallelDecision
	Runtime        CompressionRuntimeStats
	// BlockMetrics carries one entry (offset, framed size, record count)
	// per block written, in write order.
	BlockMetrics []format.BlockIndexEntry
}

// Compress drains src into sink as a complete JAC container: it opens a
// Writer, absorbs every record src yields, and finishes the container
// (appending an index footer if WithEmitIndex was requested). An oversized
// single record or any I/O failure halts the run and is returned to the
// caller.
func Compress(src RecordReader, sink io.Writer, opts ...CompressOption) (CompressResult, error) {
	start := time.Now()

	w, err := NewWriter(sink, opts...)
	if err != nil {
		return CompressResult{}, err
	}

	for {
		rec, err := src.ReadRecord()
		if err == io.EOF {
			break
		}

		if err != nil {
			return CompressResult{}, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}

		if err := w.WriteRecord(rec); err != nil {
			return CompressResult{}, err
		}
	}

	if err := w.Finish(w.opts.emitIndex); err != nil {
		return CompressResult{}, err
	}

	return CompressResult{
		RecordsWritten: w.RecordsWritten(),
		BlocksWritten:  w.BlocksWritten(),
		BytesWritten:   w.BytesWritten(),
		Parallel:       w.ParallelDecision(),
		BlockMetrics:   w.BlockMetrics(),
		Runtime: CompressionRuntimeStats{
			WallTime:     time.Since(start),
			PeakRSSBytes: readPeakRSS(),
		},
	}, nil
}

// DecompressResult summarizes one Decompress call.
type DecompressResult struct {
	RecordsWritten  uint64
	BlocksProcessed uint64
}

// Decompress reads every record from a JAC container read through ra and writes it
// to sink as JSON, either NDJSON or a single array per format.
func Decompress(ra io.ReaderAt, size int64, sink io.Writer, format OutputFormat, opts ...DecompressOption) (DecompressResult, error) {
	r, err := NewReader(ra, size, opts...)
	if err != nil {
		return DecompressResult{}, err
	}

	return drainRecords(r, sink, format)
}

func drainRecords(r *Reader, sink io.Writer, format OutputFormat) (DecompressResult, error) {
	var result DecompressResult

	if format == FormatJSONArray {
		if _, err := sink.Write([]byte{'['}); err != nil {
			return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}
	}

	first := true

	for {
		frame, err := r.NextBlock()
		if err == io.EOF {
			break
		}

		if err != nil {
			return result, err
		}

		result.BlocksProcessed++

		recs, err := frame.DecodeRecords(r.opts.limits)
		if err != nil {
			return result, err
		}

		for _, rec := range recs {
			recJSON, err := rec.ToJSON()
			if err != nil {
				return result, err
			}

			if format == FormatJSONArray {
				if !first {
					if _, err := sink.Write([]byte{','}); err != nil {
						return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
					}
				}
			}

			if _, err := sink.Write(recJSON); err != nil {
				return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
			}

			if format == FormatNDJSON {
				if _, err := sink.Write([]byte{'\n'}); err != nil {
					return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
				}
			}

			first = false
			result.RecordsWritten++
		}
	}

	if format == FormatJSONArray {
		if _, err := sink.Write([]byte{']'}); err != nil {
			return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}
	}

	return result, nil
}

// ProjectResult summarizes one Project call.
type ProjectResult struct {
	RecordsWritten uint64
}

// Project reads only the named fields from a JAC container and writes the
// resulting partial records to sink as JSON. names must be non-empty.
func Project(ra io.ReaderAt, size int64, names []string, sink io.Writer, format OutputFormat, opts ...DecompressOption) (ProjectResult, error) {
	if len(names) == 0 {
		return ProjectResult{}, fmt.Errorf("%w: projection requires at least one field name", errs.ErrInternal)
	}

	r, err := NewReader(ra, size, opts...)
	if err != nil {
		return ProjectResult{}, err
	}

	columns, err := r.ProjectColumns(names)
	if err != nil {
		return ProjectResult{}, err
	}

	recordCount := 0
	for _, col := range columns {
		if len(col) > recordCount {
			recordCount = len(col)
		}
	}

	var result ProjectResult

	if format == FormatJSONArray {
		if _, err := sink.Write([]byte{'['}); err != nil {
			return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}
	}

	for i := 0; i < recordCount; i++ {
		var rec value.Record

		for _, name := range names {
			col := columns[name]
			if i < len(col) && col[i] != nil {
				rec = append(rec, value.Field{Name: name, Value: *col[i]})
			}
		}

		recJSON, err := rec.ToJSON()
		if err != nil {
			return result, err
		}

		if format == FormatJSONArray && i > 0 {
			if _, err := sink.Write([]byte{','}); err != nil {
				return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
			}
		}

		if _, err := sink.Write(recJSON); err != nil {
			return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}

		if format == FormatNDJSON {
			if _, err := sink.Write([]byte{'\n'}); err != nil {
				return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
			}
		}

		result.RecordsWritten++
	}

	if format == FormatJSONArray {
		if _, err := sink.Write([]byte{']'}); err != nil {
			return result, fmt.Errorf("%w: %v", errs.ErrIo, err)
		}
	}

	return result, nil
}
