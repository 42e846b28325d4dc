package simplefs

import (
	"fmt"
)

// Read copies up to len(p) bytes from the handle's cursor and advances the
// cursor. It returns 0 with a nil error at the end of the file.
//
// On a device error the cursor advances past the bytes already copied and
// the count is returned with the error.
//
// Possible errors: [ErrNotMounted], [ErrNotFound], [ErrInvalidArgument] for
// an empty p, [ErrCorrupt], or the device error.
func (fsys *FS) Read(h Handle, p []byte) (int, error) {
	of, e, err := fsys.handle("read", h)
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, fmt.Errorf("read %q: empty buffer: %w", of.name, ErrInvalidArgument)
	}

	want := min(len(p), e.size-of.cursor)
	if want <= 0 {
		return 0, nil
	}

	logical := of.cursor / BlockSize
	off := of.cursor % BlockSize

	cur, ok := fsys.alloc.walk(e.head, logical)
	if !ok {
		return 0, fmt.Errorf("read %q: chain ends before block %d: %w", of.name, logical, ErrCorrupt)
	}

	done := 0

	for done < want {
		physical := cur + dataStart

		if err := fsys.dev.ReadBlock(physical, fsys.scratch); err != nil {
			of.cursor += done

			return done, fmt.Errorf("read %q: block %d: %w", of.name, physical, err)
		}

		n := copy(p[done:want], fsys.scratch[off:])
		done += n
		off = 0

		if done < want {
			if cur, ok = fsys.alloc.next(cur); !ok {
				of.cursor += done

				return done, fmt.Errorf("read %q: chain ends early: %w", of.name, ErrCorrupt)
			}
		}
	}

	of.cursor += done

	return done, nil
}

// Write places p at the handle's cursor, growing the file as needed, and
// advances the cursor by the bytes placed.
//
// When free blocks run out, Write places what fits and returns the short
// count with a nil error; it returns [ErrResourceExhausted] only if nothing
// fits. Bytes of a partially overwritten block outside the written range are
// preserved.
//
// On a device error the size covers what reached the device, blocks
// allocated for the rest are freed, and the count is returned with the error.
//
// Possible errors: [ErrNotMounted], [ErrNotFound], [ErrInvalidArgument] for
// an empty p, [ErrResourceExhausted], or the device error.
func (fsys *FS) Write(h Handle, p []byte) (int, error) {
	of, e, err := fsys.handle("write", h)
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, fmt.Errorf("write %q: empty buffer: %w", of.name, ErrInvalidArgument)
	}

	start := of.cursor
	want := min(len(p), MaxFileSize-start)

	have := fsys.alloc.chainLength(e.head)
	need := max(0, blocksFor(start+want)-have)
	fresh := fsys.alloc.allocate(need)

	if len(fresh) < need {
		want = min(want, (have+len(fresh))*BlockSize-start)

		fsys.log.Warn("device full, partial write",
			"name", of.name, "requested", len(p), "placed", want, "blocks_short", need-len(fresh))
	}

	if want <= 0 {
		return 0, fmt.Errorf("write %q: no free blocks: %w", of.name, ErrResourceExhausted)
	}

	fsys.extend(e, fresh)

	logical := start / BlockSize
	off := start % BlockSize

	cur, ok := fsys.alloc.walk(e.head, logical)
	if !ok {
		return 0, fmt.Errorf("write %q: chain ends before block %d: %w", of.name, logical, ErrCorrupt)
	}

	done := 0

	for done < want {
		n := min(BlockSize-off, want-done)
		physical := cur + dataStart

		if err := fsys.fillScratch(e, logical, physical, n); err != nil {
			fsys.abortWrite(of, e, start+done)

			return done, fmt.Errorf("write %q: block %d: %w", of.name, physical, err)
		}

		copy(fsys.scratch[off:off+n], p[done:done+n])

		if err := fsys.dev.WriteBlock(physical, fsys.scratch); err != nil {
			fsys.abortWrite(of, e, start+done)

			return done, fmt.Errorf("write %q: block %d: %w", of.name, physical, err)
		}

		done += n
		off = 0
		logical++

		if done < want {
			cur, _ = fsys.alloc.next(cur)
		}
	}

	e.size = max(e.size, start+done)
	of.cursor = start + done

	fsys.log.Debug("write", "name", of.name, "offset", start, "bytes", done, "size", e.size)

	return done, nil
}

// extend links freshly allocated blocks to the end of the file's chain.
func (fsys *FS) extend(e *dirEntry, fresh []int) {
	if len(fresh) == 0 {
		return
	}

	if last, ok := fsys.alloc.tail(e.head); ok {
		fsys.alloc.link(last, fresh[0])
	} else {
		e.head = chainAt(fresh[0])
	}

	for i := 1; i < len(fresh); i++ {
		fsys.alloc.link(fresh[i-1], fresh[i])
	}
}

// fillScratch prepares the scratch buffer for a write of n bytes into the
// file's logical block. A block written in full needs no preparation; a
// block that already holds file data is read first; a new block is zeroed.
func (fsys *FS) fillScratch(e *dirEntry, logical, physical, n int) error {
	if n == BlockSize {
		return nil
	}

	if logical*BlockSize < e.size {
		return fsys.dev.ReadBlock(physical, fsys.scratch)
	}

	clear(fsys.scratch)

	return nil
}

// abortWrite records a write that stopped at end after a device error and
// frees blocks past the new size.
func (fsys *FS) abortWrite(of *openFile, e *dirEntry, end int) {
	e.size = max(e.size, end)
	of.cursor = end

	var freed int
	e.head, freed = fsys.alloc.shrink(e.head, blocksFor(e.size))

	fsys.log.Warn("write aborted", "name", of.name, "size", e.size, "freed_blocks", freed)
}

// Seek moves the handle's cursor to offset, which may equal the file size.
//
// Possible errors: [ErrNotMounted], [ErrNotFound], [ErrInvalidArgument] for a
// negative offset, [ErrOutOfRange] past the end of the file.
func (fsys *FS) Seek(h Handle, offset int) error {
	of, e, err := fsys.handle("seek", h)
	if err != nil {
		return err
	}

	if offset < 0 {
		return fmt.Errorf("seek %q: offset %d: %w", of.name, offset, ErrInvalidArgument)
	}

	if offset > e.size {
		return fmt.Errorf("seek %q: offset %d beyond size %d: %w", of.name, offset, e.size, ErrOutOfRange)
	}

	of.cursor = offset

	return nil
}

// Tell returns the handle's cursor.
//
// Possible errors: [ErrNotMounted], [ErrNotFound].
func (fsys *FS) Tell(h Handle) (int, error) {
	of, _, err := fsys.handle("tell", h)
	if err != nil {
		return 0, err
	}

	return of.cursor, nil
}

// Size returns the size of the file behind h.
//
// Possible errors: [ErrNotMounted], [ErrNotFound].
func (fsys *FS) Size(h Handle) (int, error) {
	_, e, err := fsys.handle("size", h)
	if err != nil {
		return 0, err
	}

	return e.size, nil
}

// Truncate shortens the file to length bytes. The first length bytes stay in
// place and every block past the new end is freed. The cursor of h is reset
// to 0; other handles onto the file are clamped to the new size.
//
// Possible errors: [ErrNotMounted], [ErrNotFound], [ErrInvalidArgument] for a
// negative length, [ErrOutOfRange] if length exceeds the size.
func (fsys *FS) Truncate(h Handle, length int) error {
	of, e, err := fsys.handle("truncate", h)
	if err != nil {
		return err
	}

	if length < 0 {
		return fmt.Errorf("truncate %q: length %d: %w", of.name, length, ErrInvalidArgument)
	}

	if length > e.size {
		return fmt.Errorf("truncate %q: length %d beyond size %d: %w", of.name, length, e.size, ErrOutOfRange)
	}

	var freed int
	e.head, freed = fsys.alloc.shrink(e.head, blocksFor(length))
	e.size = length

	for i := range fsys.handles.slots {
		other := &fsys.handles.slots[i]
		if other.inUse && other.entry == of.entry {
			other.cursor = min(other.cursor, length)
		}
	}

	of.cursor = 0

	fsys.log.Debug("truncate", "name", of.name, "size", length, "freed_blocks", freed)

	return nil
}
