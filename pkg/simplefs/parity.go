package simplefs

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/klauspost/reedsolomon"
)

// The metadata region is blocks fatStart..parityStart+parityBlocks. The FAT
// and directory blocks are data shards, the parity blocks are parity shards,
// and the checksum block in between holds a CRC32-C per shard followed by
// its own CRC.
const (
	metaFirst  = fatStart
	metaLast   = parityStart + parityBlocks // exclusive
	metaSpan   = metaLast - metaFirst
	shardCount = metaBlocks + parityBlocks

	offChecksumSelf = shardCount * 4
)

// metadata holds the raw bytes of the metadata region while it is read or
// written. Shard i aliases its block inside buf.
type metadata struct {
	buf    []byte
	shards [][]byte
}

func newMetadata() *metadata {
	m := &metadata{buf: make([]byte, metaSpan*BlockSize)}
	m.shards = make([][]byte, 0, shardCount)

	for i := range metaBlocks {
		m.shards = append(m.shards, m.block(fatStart+i))
	}

	for i := range parityBlocks {
		m.shards = append(m.shards, m.block(parityStart+i))
	}

	return m
}

// block returns the slice of buf holding device block n.
func (m *metadata) block(n int) []byte {
	off := (n - metaFirst) * BlockSize

	return m.buf[off : off+BlockSize : off+BlockSize]
}

// shardBlock maps a shard index to its device block.
func shardBlock(i int) int {
	if i < metaBlocks {
		return fatStart + i
	}

	return parityStart + i - metaBlocks
}

func (m *metadata) fat() []byte {
	return m.buf[:fatBlocks*BlockSize]
}

func (m *metadata) dir() []byte {
	return m.block(dirStart)
}

// seal computes parity and checksums after the FAT and directory have been
// encoded into buf.
func (m *metadata) seal(enc reedsolomon.Encoder) error {
	if err := enc.Encode(m.shards); err != nil {
		return fmt.Errorf("encode parity: %w", err)
	}

	sums := m.block(checksumBlock)
	clear(sums)

	for i, shard := range m.shards {
		binary.LittleEndian.PutUint32(sums[i*4:], crc32.Checksum(shard, castagnoli))
	}

	binary.LittleEndian.PutUint32(sums[offChecksumSelf:], crc32.Checksum(sums[:offChecksumSelf], castagnoli))

	return nil
}

// repair checks every shard against the checksum block and rebuilds damaged
// shards from parity. It returns the device blocks that were rebuilt.
//
// When the checksum block itself is damaged, shard damage cannot be located;
// the region is accepted only if parity verifies.
func (m *metadata) repair(enc reedsolomon.Encoder) ([]int, error) {
	sums := m.block(checksumBlock)

	stored := binary.LittleEndian.Uint32(sums[offChecksumSelf:])
	if stored != crc32.Checksum(sums[:offChecksumSelf], castagnoli) {
		ok, err := enc.Verify(m.shards)
		if err != nil || !ok {
			return nil, fmt.Errorf("metadata: checksum block damaged and parity mismatch: %w", ErrCorrupt)
		}

		return []int{checksumBlock}, nil
	}

	var damaged []int

	for i, shard := range m.shards {
		if binary.LittleEndian.Uint32(sums[i*4:]) != crc32.Checksum(shard, castagnoli) {
			damaged = append(damaged, i)
		}
	}

	if len(damaged) == 0 {
		return nil, nil
	}

	if len(damaged) > parityBlocks {
		return nil, fmt.Errorf("metadata: %d damaged blocks, can repair %d: %w", len(damaged), parityBlocks, ErrCorrupt)
	}

	// A zero-length shard with capacity is rebuilt in place.
	shards := make([][]byte, len(m.shards))
	copy(shards, m.shards)

	for _, i := range damaged {
		shards[i] = m.shards[i][:0]
	}

	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("metadata: reconstruct: %w: %w", ErrCorrupt, err)
	}

	blocks := make([]int, 0, len(damaged))

	for _, i := range damaged {
		if &shards[i][0] != &m.shards[i][0] {
			copy(m.shards[i], shards[i])
		}

		if binary.LittleEndian.Uint32(sums[i*4:]) != crc32.Checksum(m.shards[i], castagnoli) {
			return nil, fmt.Errorf("metadata: block %d still damaged after repair: %w", shardBlock(i), ErrCorrupt)
		}

		blocks = append(blocks, shardBlock(i))
	}

	return blocks, nil
}

func newEncoder() (reedsolomon.Encoder, error) {
	return reedsolomon.New(metaBlocks, parityBlocks)
}
