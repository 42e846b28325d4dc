package simplefs

import "fmt"

// Handle identifies one open cursor onto a file. Handles are slot indices
// and are reused after Close.
type Handle int

// openFile is one slot of the open-file table.
type openFile struct {
	entry  int
	name   string
	cursor int
	inUse  bool
}

type handleTable struct {
	slots [MaxOpenFiles]openFile
}

// allocate takes the lowest free slot.
func (t *handleTable) allocate(entry int, name string) (Handle, bool) {
	for i := range t.slots {
		if !t.slots[i].inUse {
			t.slots[i] = openFile{entry: entry, name: name, inUse: true}

			return Handle(i), true
		}
	}

	return 0, false
}

func (t *handleTable) get(h Handle) (*openFile, bool) {
	if h < 0 || int(h) >= len(t.slots) || !t.slots[h].inUse {
		return nil, false
	}

	return &t.slots[h], true
}

func (t *handleTable) release(h Handle) {
	t.slots[h] = openFile{}
}

func (t *handleTable) reset() {
	t.slots = [MaxOpenFiles]openFile{}
}

func (t *handleTable) inUse() int {
	n := 0

	for i := range t.slots {
		if t.slots[i].inUse {
			n++
		}
	}

	return n
}

// Open returns a new handle onto name with its cursor at 0. Opening a file
// that is already open yields another handle with an independent cursor.
//
// Possible errors: [ErrNotMounted], [ErrInvalidArgument], [ErrNotFound],
// [ErrResourceExhausted].
func (fsys *FS) Open(name string) (Handle, error) {
	if err := fsys.checkMounted("open"); err != nil {
		return 0, err
	}

	if err := validateName(name); err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}

	idx, ok := fsys.dir.lookup(name)
	if !ok {
		return 0, fmt.Errorf("open %q: %w", name, ErrNotFound)
	}

	h, ok := fsys.handles.allocate(idx, name)
	if !ok {
		return 0, fmt.Errorf("open %q: %d handles in use: %w", name, MaxOpenFiles, ErrResourceExhausted)
	}

	fsys.dir.entries[idx].openCount++

	fsys.log.Debug("open", "name", name, "handle", int(h), "open_count", fsys.dir.entries[idx].openCount)

	return h, nil
}

// Close releases h. The file stops being active when its last handle closes.
//
// Possible errors: [ErrNotMounted], [ErrNotFound].
func (fsys *FS) Close(h Handle) error {
	of, entry, err := fsys.handle("close", h)
	if err != nil {
		return err
	}

	entry.openCount--
	fsys.log.Debug("close", "name", of.name, "handle", int(h), "open_count", entry.openCount)
	fsys.handles.release(h)

	return nil
}

// handle resolves h to its slot and directory entry.
func (fsys *FS) handle(op string, h Handle) (*openFile, *dirEntry, error) {
	if err := fsys.checkMounted(op); err != nil {
		return nil, nil, err
	}

	of, ok := fsys.handles.get(h)
	if !ok {
		return nil, nil, fmt.Errorf("%s: handle %d: %w", op, int(h), ErrNotFound)
	}

	return of, &fsys.dir.entries[of.entry], nil
}
