package simplefs

import "fmt"

// Create makes an empty file in the lowest free directory slot. It does not
// open the file.
//
// Possible errors: [ErrNotMounted], [ErrInvalidArgument], [ErrAlreadyExists],
// [ErrResourceExhausted].
func (fsys *FS) Create(name string) error {
	if err := fsys.checkMounted("create"); err != nil {
		return err
	}

	if err := validateName(name); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if _, exists := fsys.dir.lookup(name); exists {
		return fmt.Errorf("create %q: %w", name, ErrAlreadyExists)
	}

	slot, ok := fsys.dir.freeSlot()
	if !ok {
		return fmt.Errorf("create %q: %d files exist: %w", name, MaxFiles, ErrResourceExhausted)
	}

	fsys.dir.entries[slot] = dirEntry{name: name, used: true}

	fsys.log.Debug("create", "name", name, "slot", slot)

	return nil
}

// Delete removes name and frees its blocks. Open files cannot be deleted.
//
// Possible errors: [ErrNotMounted], [ErrInvalidArgument], [ErrNotFound],
// [ErrBusy].
func (fsys *FS) Delete(name string) error {
	if err := fsys.checkMounted("delete"); err != nil {
		return err
	}

	if err := validateName(name); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	slot, ok := fsys.dir.lookup(name)
	if !ok {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}

	e := &fsys.dir.entries[slot]
	if e.active() {
		return fmt.Errorf("delete %q: %d open handles: %w", name, e.openCount, ErrBusy)
	}

	freed := fsys.alloc.release(e.head)
	fsys.dir.entries[slot] = dirEntry{}

	fsys.log.Debug("delete", "name", name, "slot", slot, "freed_blocks", freed)

	return nil
}
