package simplefs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/simplefs/pkg/disk"
)

// Format limits.
const (
	// BlockSize is the size of every block, in bytes.
	BlockSize = disk.BlockSize

	// MaxFiles is the number of directory slots.
	MaxFiles = 64

	// MaxNameLen is the longest file name, in bytes.
	MaxNameLen = 15

	// MaxOpenFiles is the number of handle slots.
	MaxOpenFiles = 32

	// DataBlocks is the number of blocks available for file contents.
	DataBlocks = disk.NumBlocks - dataStart

	// MaxFileSize is the largest possible file, in bytes.
	MaxFileSize = DataBlocks * BlockSize
)

// Fixed geometry, v1. FAT entries are not bit-compatible with a raw
// 0/-1/k table: Next(k) is stored as k+1 (see fat.go).
const (
	formatVersion = 1

	layoutBlock   = 0
	fatStart      = 1
	fatEntrySize  = 4
	fatBlocks     = 8 // ceil(DataBlocks * fatEntrySize / BlockSize)
	dirStart      = fatStart + fatBlocks
	dirBlocks     = 1
	checksumBlock = dirStart + dirBlocks
	parityStart   = checksumBlock + 1
	parityBlocks  = 2
	dataStart     = parityStart + parityBlocks

	// metaBlocks counts the blocks protected by parity: FAT plus directory.
	metaBlocks = fatBlocks + dirBlocks
)

var layoutMagic = [8]byte{'S', 'I', 'M', 'P', 'L', 'E', 'F', 'S'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Layout block field offsets (bytes from block start).
const (
	offMagic         = 0x00 // [8]byte
	offVersion       = 0x08 // uint32
	offBlockSize     = 0x0C // uint32
	offTotalBlocks   = 0x10 // uint32
	offFATStart      = 0x14 // uint32
	offFATBlocks     = 0x18 // uint32
	offDirStart      = 0x1C // uint32
	offChecksumBlock = 0x20 // uint32
	offParityStart   = 0x24 // uint32
	offParityBlocks  = 0x28 // uint32
	offDataStart     = 0x2C // uint32
	offDataBlocks    = 0x30 // uint32
	offMaxFiles      = 0x34 // uint32
	offMaxNameLen    = 0x38 // uint32
	offVolumeID      = 0x3C // [16]byte
	offCreatedAt     = 0x4C // int64 unix nanoseconds
	offMountCount    = 0x54 // uint64
	offLayoutCRC32C  = 0x5C // uint32 over [0, offLayoutCRC32C)
	layoutSize       = 0x60
)

// Layout describes where each region lives on the device, plus volume
// identity. It is written by Format, read by Mount and rewritten by Unmount
// with MountCount incremented.
type Layout struct {
	Version     uint32
	BlockSize   int
	TotalBlocks int

	FATStart      int
	FATBlocks     int
	DirStart      int
	ChecksumBlock int
	ParityStart   int
	ParityBlocks  int
	DataStart     int
	DataBlocks    int

	MaxFiles   int
	MaxNameLen int

	VolumeID   uuid.UUID
	CreatedAt  time.Time
	MountCount uint64
}

// newLayout returns the v1 geometry for a freshly formatted volume.
func newLayout(id uuid.UUID, now time.Time) Layout {
	return Layout{
		Version:       formatVersion,
		BlockSize:     BlockSize,
		TotalBlocks:   disk.NumBlocks,
		FATStart:      fatStart,
		FATBlocks:     fatBlocks,
		DirStart:      dirStart,
		ChecksumBlock: checksumBlock,
		ParityStart:   parityStart,
		ParityBlocks:  parityBlocks,
		DataStart:     dataStart,
		DataBlocks:    DataBlocks,
		MaxFiles:      MaxFiles,
		MaxNameLen:    MaxNameLen,
		VolumeID:      id,
		CreatedAt:     now.UTC(),
	}
}

// encodeLayout serializes l into a zeroed block-sized buffer.
func encodeLayout(l *Layout, buf []byte) {
	clear(buf)

	copy(buf[offMagic:], layoutMagic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], l.Version)
	binary.LittleEndian.PutUint32(buf[offBlockSize:], uint32(l.BlockSize))
	binary.LittleEndian.PutUint32(buf[offTotalBlocks:], uint32(l.TotalBlocks))
	binary.LittleEndian.PutUint32(buf[offFATStart:], uint32(l.FATStart))
	binary.LittleEndian.PutUint32(buf[offFATBlocks:], uint32(l.FATBlocks))
	binary.LittleEndian.PutUint32(buf[offDirStart:], uint32(l.DirStart))
	binary.LittleEndian.PutUint32(buf[offChecksumBlock:], uint32(l.ChecksumBlock))
	binary.LittleEndian.PutUint32(buf[offParityStart:], uint32(l.ParityStart))
	binary.LittleEndian.PutUint32(buf[offParityBlocks:], uint32(l.ParityBlocks))
	binary.LittleEndian.PutUint32(buf[offDataStart:], uint32(l.DataStart))
	binary.LittleEndian.PutUint32(buf[offDataBlocks:], uint32(l.DataBlocks))
	binary.LittleEndian.PutUint32(buf[offMaxFiles:], uint32(l.MaxFiles))
	binary.LittleEndian.PutUint32(buf[offMaxNameLen:], uint32(l.MaxNameLen))
	copy(buf[offVolumeID:], l.VolumeID[:])
	binary.LittleEndian.PutUint64(buf[offCreatedAt:], uint64(l.CreatedAt.UnixNano()))
	binary.LittleEndian.PutUint64(buf[offMountCount:], l.MountCount)

	binary.LittleEndian.PutUint32(buf[offLayoutCRC32C:], crc32.Checksum(buf[:offLayoutCRC32C], castagnoli))
}

// decodeLayout parses and validates a layout block.
//
// Returns [ErrCorrupt] for a missing magic or a bad checksum, and
// [ErrIncompatible] for an unknown version or a geometry other than v1.
func decodeLayout(buf []byte) (Layout, error) {
	if !bytes.Equal(buf[offMagic:offMagic+len(layoutMagic)], layoutMagic[:]) {
		return Layout{}, fmt.Errorf("layout: bad magic: %w", ErrCorrupt)
	}

	stored := binary.LittleEndian.Uint32(buf[offLayoutCRC32C:])
	if computed := crc32.Checksum(buf[:offLayoutCRC32C], castagnoli); stored != computed {
		return Layout{}, fmt.Errorf("layout: crc %#x, want %#x: %w", stored, computed, ErrCorrupt)
	}

	u32 := func(off int) int {
		return int(binary.LittleEndian.Uint32(buf[off:]))
	}

	l := Layout{
		Version:       binary.LittleEndian.Uint32(buf[offVersion:]),
		BlockSize:     u32(offBlockSize),
		TotalBlocks:   u32(offTotalBlocks),
		FATStart:      u32(offFATStart),
		FATBlocks:     u32(offFATBlocks),
		DirStart:      u32(offDirStart),
		ChecksumBlock: u32(offChecksumBlock),
		ParityStart:   u32(offParityStart),
		ParityBlocks:  u32(offParityBlocks),
		DataStart:     u32(offDataStart),
		DataBlocks:    u32(offDataBlocks),
		MaxFiles:      u32(offMaxFiles),
		MaxNameLen:    u32(offMaxNameLen),
		CreatedAt:     time.Unix(0, int64(binary.LittleEndian.Uint64(buf[offCreatedAt:]))).UTC(),
		MountCount:    binary.LittleEndian.Uint64(buf[offMountCount:]),
	}
	copy(l.VolumeID[:], buf[offVolumeID:offVolumeID+len(l.VolumeID)])

	if l.Version != formatVersion {
		return Layout{}, fmt.Errorf("layout: version %d, want %d: %w", l.Version, formatVersion, ErrIncompatible)
	}

	if !l.sameGeometry(newLayout(uuid.Nil, time.Time{})) {
		return Layout{}, fmt.Errorf("layout: geometry %+v does not match v1: %w", l, ErrIncompatible)
	}

	return l, nil
}

// sameGeometry compares everything except volume identity and history.
func (l Layout) sameGeometry(other Layout) bool {
	l.VolumeID, l.CreatedAt, l.MountCount = uuid.Nil, time.Time{}, 0
	other.VolumeID, other.CreatedAt, other.MountCount = uuid.Nil, time.Time{}, 0

	return l == other
}
