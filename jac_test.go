package jac

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/iambrandonn/jac/errs"
	"github.com/iambrandonn/jac/format"
	"github.com/iambrandonn/jac/value"
	"github.com/stretchr/testify/require"
)

type sliceRecordReader struct {
	records []value.Record
	pos     int
}

func (s *sliceRecordReader) ReadRecord() (value.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}

	rec := s.records[s.pos]
	s.pos++

	return rec, nil
}

func logRecord(ts int64, level, msg string) value.Record {
	return value.Record{
		{Name: "ts", Value: value.FromInt(ts)},
		{Name: "level", Value: value.FromString(level)},
		{Name: "msg", Value: value.FromString(msg)},
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	records := []value.Record{
		logRecord(1000, "info", "starting up"),
		logRecord(1001, "error", "connection refused"),
		logRecord(1002, "info", "retrying"),
	}

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithBlockTargetRecords(2), WithEmitIndex(true))
	require.NoError(t, err)

	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}

	require.NoError(t, w.Finish(true))
	require.Equal(t, uint64(3), w.RecordsWritten())
	require.Equal(t, uint64(2), w.BlocksWritten())

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	decoded, err := r.DecodeRecords()
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	v, ok := decoded[1].Get("level")
	require.True(t, ok)
	require.Equal(t, value.FromString("error"), v)
}

func TestCompressDecompressNDJSON(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var container bytes.Buffer

	_, err := Compress(&sliceRecordReader{records: records}, &container)
	require.NoError(t, err)

	data := container.Bytes()

	var out bytes.Buffer
	result, err := Decompress(bytes.NewReader(data), int64(len(data)), &out, FormatNDJSON)
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.RecordsWritten)

	lines := bytes.Split(bytes.TrimRight(out.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &obj))
	require.Equal(t, "info", obj["level"])
}

func TestCompressDecompressJSONArray(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var container bytes.Buffer

	_, err := Compress(&sliceRecordReader{records: records}, &container)
	require.NoError(t, err)

	data := container.Bytes()

	var out bytes.Buffer
	_, err = Decompress(bytes.NewReader(data), int64(len(data)), &out, FormatJSONArray)
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &arr))
	require.Len(t, arr, 2)
}

func TestProjectReturnsOnlyRequestedFields(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var container bytes.Buffer

	_, err := Compress(&sliceRecordReader{records: records}, &container)
	require.NoError(t, err)

	data := container.Bytes()

	var out bytes.Buffer
	result, err := Project(bytes.NewReader(data), int64(len(data)), []string{"level"}, &out, FormatNDJSON)
	require.NoError(t, err)
	require.Equal(t, uint64(2), result.RecordsWritten)

	lines := bytes.Split(bytes.TrimRight(out.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &obj))
	require.Equal(t, map[string]any{"level": "info"}, obj)
}

func TestProjectRejectsEmptyNames(t *testing.T) {
	var container bytes.Buffer
	_, err := Compress(&sliceRecordReader{}, &container)
	require.NoError(t, err)

	data := container.Bytes()

	var out bytes.Buffer
	_, err = Project(bytes.NewReader(data), int64(len(data)), nil, &out, FormatNDJSON)
	require.ErrorIs(t, err, errs.ErrInternal)
}

func TestWriteRecordOversizedSingleRecordIsSkippableNotFatal(t *testing.T) {
	// 16 bytes admits an int (worst-case estimate 10) but not the 40-byte
	// string below (estimate 50).
	limits := format.DefaultLimits()
	limits.MaxSegmentUncompressedLen = 16

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithLimits(limits))
	require.NoError(t, err)

	oversized := value.Record{{Name: "blob", Value: value.FromString("this value alone is far too large to fit")}}
	err = w.WriteRecord(oversized)
	require.ErrorIs(t, err, errs.ErrLimitExceeded)

	ok := value.Record{{Name: "n", Value: value.FromInt(1)}}
	require.NoError(t, w.WriteRecord(ok))

	require.NoError(t, w.Finish(false))
	require.Equal(t, uint64(1), w.RecordsWritten())
}

func TestWriteRecordAfterFatalErrorStaysFatal(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf)
	require.NoError(t, err)

	bad := value.Record{{Name: "", Value: value.FromInt(1)}}
	err = w.WriteRecord(bad)
	require.Error(t, err)

	err = w.WriteRecord(value.Record{{Name: "a", Value: value.FromInt(1)}})
	require.Error(t, err)
}

func TestReaderLenientModeResyncsPastCorruptedBlock(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithBlockTargetRecords(1))
	require.NoError(t, err)

	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}

	require.NoError(t, w.Finish(false))

	data := append([]byte(nil), buf.Bytes()...)

	header, n, err := format.DecodeFileHeader(data[4:])
	require.NoError(t, err)
	_ = header

	firstBlockStart := 4 + n
	data[firstBlockStart+5] ^= 0xFF

	r, err := NewReader(bytes.NewReader(data), int64(len(data)), WithLenient(true))
	require.NoError(t, err)

	_, err = r.DecodeRecords()
	require.NoError(t, err)
}

func TestReaderStrictModeFailsOnCorruptedBlock(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithBlockTargetRecords(1))
	require.NoError(t, err)

	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}

	require.NoError(t, w.Finish(false))

	data := append([]byte(nil), buf.Bytes()...)

	header, n, err := format.DecodeFileHeader(data[4:])
	require.NoError(t, err)
	_ = header

	firstBlockStart := 4 + n
	data[firstBlockStart+5] ^= 0xFF

	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = r.DecodeRecords()
	require.Error(t, err)
}

func TestReaderLenientModeDoesNotRecoverFromChecksumMismatch(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a"),
		logRecord(2, "warn", "b"),
	}

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithBlockTargetRecords(1))
	require.NoError(t, err)

	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}

	require.NoError(t, w.Finish(false))

	metrics := w.BlockMetrics()
	require.Len(t, metrics, 2)

	firstBlock := metrics[0]

	// Flip the last byte of the first block's frame: that byte lies inside
	// the trailing crc32c field, not the header, so the frame still decodes
	// as well-formed BLK1 and only the checksum comparison fails. This is
	// the only way to exercise a post-framing error, as opposed to the
	// structural corruption the other corrupted-block tests use.
	data := append([]byte(nil), buf.Bytes()...)
	lastByte := int64(firstBlock.Offset) + int64(firstBlock.Size) - 1
	data[lastByte] ^= 0xFF

	lenientReader, err := NewReader(bytes.NewReader(data), int64(len(data)), WithLenient(true))
	require.NoError(t, err)

	_, err = lenientReader.DecodeRecords()
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)

	strictReader, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	_, err = strictReader.DecodeRecords()
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
}

func TestNewReaderRejectsBadMagic(t *testing.T) {
	data := []byte("not a jac file at all")

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.ErrorIs(t, err, errs.ErrInvalidMagic)
}

func TestCanonicalizeNumbersStripsTrailingZeroDigits(t *testing.T) {
	rec := value.Record{
		{Name: "price", Value: value.FromDecimal(format.Decimal{Sign: 0, Digits: "12300", Exponent: -2})},
	}

	var buf bytes.Buffer

	w, err := NewWriter(&buf, WithCanonicalizeNumbers(true))
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(rec))
	require.NoError(t, w.Finish(false))

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	decoded, err := r.DecodeRecords()
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	v, ok := decoded[0].Get("price")
	require.True(t, ok)
	require.Equal(t, format.Decimal{Sign: 0, Digits: "123", Exponent: 0}, v.Decimal)
}

func TestDefaultCompressionLevelReachesEncoder(t *testing.T) {
	records := []value.Record{
		logRecord(1, "info", "a highly compressible line repeated many times over and over"),
	}
	for i := 0; i < 200; i++ {
		records = append(records, logRecord(int64(i), "info", "a highly compressible line repeated many times over and over"))
	}

	sizeAtLevel := func(level uint8) int {
		var buf bytes.Buffer

		w, err := NewWriter(&buf, WithDefaultCompressionLevel(level))
		require.NoError(t, err)

		for _, rec := range records {
			require.NoError(t, w.WriteRecord(rec))
		}

		require.NoError(t, w.Finish(false))

		return buf.Len()
	}

	fastest := sizeAtLevel(format.MinZstdLevel)
	best := sizeAtLevel(format.MaxZstdLevel)

	require.LessOrEqual(t, best, fastest)
}

func TestParallelWritingProducesDeterministicOutput(t *testing.T) {
	var records []value.Record
	for i := 0; i < 500; i++ {
		records = append(records, logRecord(int64(i), "info", "line"))
	}

	forced := true

	runOnce := func() []byte {
		var buf bytes.Buffer

		w, err := NewWriter(&buf,
			WithBlockTargetRecords(10),
			WithParallelConfig(ParallelConfig{
				Enabled:              &forced,
				MaxThreads:           4,
				AvailableMemoryBytes: 8 * 1024 * 1024 * 1024,
			}),
		)
		require.NoError(t, err)

		for _, rec := range records {
			require.NoError(t, w.WriteRecord(rec))
		}

		require.NoError(t, w.Finish(false))

		return buf.Bytes()
	}

	first := runOnce()
	second := runOnce()

	require.Equal(t, first, second)
}
