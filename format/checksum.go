package format

import (
	"fmt"
	"hash/crc32"

	"github.com/iambrandonn/jac/errs"
)

// castagnoliTable is the CRC32C (Castagnoli) polynomial table, computed once.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// ComputeCRC32C returns the Castagnoli CRC32 of data.
func ComputeCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// VerifyCRC32C returns nil if data's CRC32C matches expected, otherwise
// errs.ErrChecksumMismatch.
func VerifyCRC32C(data []byte, expected uint32) error {
	if got := ComputeCRC32C(data); got != expected {
		return fmt.Errorf("%w: got 0x%08x, want 0x%08x", errs.ErrChecksumMismatch, got, expected)
	}

	return nil
}
