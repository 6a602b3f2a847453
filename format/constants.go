package format

// File magic: "JAC" followed by the version byte.
var FileMagic = [4]byte{0x4A, 0x41, 0x43, 0x01}

// CurrentVersion is the only version byte this implementation understands.
const CurrentVersion = 0x01

// Block and index magic values, stored little-endian on the wire.
const (
	BlockMagic = 0x314B4C42 // "BLK1"
	IndexMagic = 0x31584449 // "IDX1"
)

// File header flag bits.
const (
	FlagCanonicalizeKeys    uint32 = 1 << 0
	FlagCanonicalizeNumbers uint32 = 1 << 1
	FlagNestedOpaque        uint32 = 1 << 2

	// FlagContainerHintShift is the bit offset of the 2-bit container-format
	// hint field within the flags word.
	FlagContainerHintShift = 3
	FlagContainerHintMask  = 0x3 << FlagContainerHintShift
)

// ContainerHint names the value of the 2-bit container-format hint field.
type ContainerHint uint8

const (
	ContainerHintUnknown ContainerHint = 0
	ContainerHintNDJSON  ContainerHint = 1
	ContainerHintJSONArray ContainerHint = 2
	// 3 is reserved.
)

// Encoding flags bitfield, one per field segment.
const (
	EncodingFlagDictionary uint64 = 1 << 0
	EncodingFlagDelta      uint64 = 1 << 1
	EncodingFlagRLE        uint64 = 1 << 2 // reserved, not emitted by v1
	EncodingFlagBitPacked  uint64 = 1 << 3 // reserved, not emitted by v1
)

// MinZstdLevel and MaxZstdLevel bound the level byte stored alongside a
// CompressorZstd field directory entry.
const (
	MinZstdLevel = 1
	MaxZstdLevel = 22
)
