package simplefs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Directory record layout (32 bytes per slot).
const (
	dirRecordSize = 32

	recName     = 0x00 // [16]byte, NUL padded
	recFlags    = 0x10 // uint8
	recSize     = 0x14 // uint32
	recHead     = 0x18 // uint32, data index + 1, 0 for an empty chain
	recNameSize = 16
)

// Record flags. flagOpen is written for inspection tools only and is never
// trusted when reading the directory back.
const (
	flagUsed uint8 = 1 << 0
	flagOpen uint8 = 1 << 1
)

// dirEntry is one directory slot. openCount is in-memory only.
type dirEntry struct {
	name      string
	size      int
	head      chain
	used      bool
	openCount int
}

func (e *dirEntry) active() bool {
	return e.openCount > 0
}

// directory is the fixed-capacity namespace.
type directory struct {
	entries [MaxFiles]dirEntry
}

// lookup finds a used entry by exact, case-sensitive name.
func (d *directory) lookup(name string) (int, bool) {
	for i := range d.entries {
		if d.entries[i].used && d.entries[i].name == name {
			return i, true
		}
	}

	return 0, false
}

// freeSlot returns the lowest unused slot.
func (d *directory) freeSlot() (int, bool) {
	for i := range d.entries {
		if !d.entries[i].used {
			return i, true
		}
	}

	return 0, false
}

func (d *directory) used() int {
	n := 0

	for i := range d.entries {
		if d.entries[i].used {
			n++
		}
	}

	return n
}

// validateName checks a file name: 1..MaxNameLen bytes, no NUL.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidArgument)
	}

	if len(name) > MaxNameLen {
		return fmt.Errorf("name %q is %d bytes, max %d: %w", name, len(name), MaxNameLen, ErrInvalidArgument)
	}

	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("name %q contains NUL: %w", name, ErrInvalidArgument)
	}

	return nil
}

// encode writes every slot into buf (one directory block).
func (d *directory) encode(buf []byte) {
	clear(buf)

	for i := range d.entries {
		e := &d.entries[i]
		if !e.used {
			continue
		}

		rec := buf[i*dirRecordSize : (i+1)*dirRecordSize]
		copy(rec[recName:recName+recNameSize], e.name)

		flags := flagUsed
		if e.active() {
			flags |= flagOpen
		}

		rec[recFlags] = flags
		binary.LittleEndian.PutUint32(rec[recSize:], uint32(e.size))

		var head uint32
		if !e.head.IsEmpty() {
			head = uint32(e.head.index + 1)
		}

		binary.LittleEndian.PutUint32(rec[recHead:], head)
	}
}

// decodeDirectory parses a directory block. Open counts start at zero
// regardless of the persisted open flag.
func decodeDirectory(buf []byte, dataBlocks int) (*directory, error) {
	d := &directory{}

	for i := range d.entries {
		rec := buf[i*dirRecordSize : (i+1)*dirRecordSize]
		if rec[recFlags]&flagUsed == 0 {
			continue
		}

		rawName := rec[recName : recName+recNameSize]

		nameLen := bytes.IndexByte(rawName, 0)
		if nameLen < 0 {
			return nil, fmt.Errorf("directory slot %d: name not terminated: %w", i, ErrCorrupt)
		}

		name := string(rawName[:nameLen])
		if err := validateName(name); err != nil {
			return nil, fmt.Errorf("directory slot %d: %w: %w", i, ErrCorrupt, err)
		}

		if _, dup := d.lookup(name); dup {
			return nil, fmt.Errorf("directory slot %d: duplicate name %q: %w", i, name, ErrCorrupt)
		}

		size := int(binary.LittleEndian.Uint32(rec[recSize:]))
		if size > dataBlocks*BlockSize {
			return nil, fmt.Errorf("directory slot %d: size %d exceeds device: %w", i, size, ErrCorrupt)
		}

		var head chain

		rawHead := int(binary.LittleEndian.Uint32(rec[recHead:]))
		if rawHead > dataBlocks {
			return nil, fmt.Errorf("directory slot %d: head %d out of range: %w", i, rawHead, ErrCorrupt)
		}

		if rawHead > 0 {
			head = chainAt(rawHead - 1)
		}

		if (size == 0) != head.IsEmpty() {
			return nil, fmt.Errorf("directory slot %d: size %d inconsistent with head: %w", i, size, ErrCorrupt)
		}

		d.entries[i] = dirEntry{name: name, size: size, head: head, used: true}
	}

	return d, nil
}

// checkChains verifies that every file's chain has the length its size
// requires and that no block belongs to two files or is reachable twice.
// Blocks marked in use but owned by no file are also rejected.
func checkChains(a *allocator, d *directory) error {
	owned := make([]bool, len(a.entries))
	total := 0

	for i := range d.entries {
		e := &d.entries[i]
		if !e.used || e.head.IsEmpty() {
			continue
		}

		want := blocksFor(e.size)
		n := 0

		for cur, ok := e.head.index, true; ok; cur, ok = a.next(cur) {
			if a.entries[cur].kind == entryFree {
				return fmt.Errorf("file %q: chain reaches free block %d: %w", e.name, cur, ErrCorrupt)
			}

			if owned[cur] {
				return fmt.Errorf("file %q: block %d is shared or cyclic: %w", e.name, cur, ErrCorrupt)
			}

			owned[cur] = true
			n++
		}

		if n != want {
			return fmt.Errorf("file %q: chain has %d blocks, size %d needs %d: %w", e.name, n, e.size, want, ErrCorrupt)
		}

		total += n
	}

	if inUse := len(a.entries) - a.free; inUse != total {
		return fmt.Errorf("%d blocks in use, %d owned by files: %w", inUse, total, ErrCorrupt)
	}

	return nil
}

// blocksFor returns how many blocks hold size bytes.
func blocksFor(size int) int {
	return (size + BlockSize - 1) / BlockSize
}
