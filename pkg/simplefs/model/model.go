// Package model provides a deliberately simple, in-memory model of the
// observable file semantics of simplefs.
//
// Files are plain byte slices and free space is a counter. The model knows
// nothing about chains, the allocation table or the on-disk format, which
// makes it easy to audit and a useful oracle for fuzz tests.
package model

import (
	"bytes"
	"slices"

	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// File is one directory slot.
type File struct {
	Name    string
	Data    []byte
	Handles int
}

// Handle is one open-file slot.
type Handle struct {
	Slot   int
	Cursor int
	InUse  bool
}

// FS models one mounted file system.
type FS struct {
	Slots   [simplefs.MaxFiles]*File
	Handles [simplefs.MaxOpenFiles]Handle
}

// New returns an empty, freshly formatted model.
func New() *FS {
	return &FS{}
}

// Remount models an unmount followed by a mount: files persist, handles and
// open counts do not.
func (m *FS) Remount() {
	m.Handles = [simplefs.MaxOpenFiles]Handle{}

	for _, f := range m.Slots {
		if f != nil {
			f.Handles = 0
		}
	}
}

func blocksFor(size int) int {
	return (size + simplefs.BlockSize - 1) / simplefs.BlockSize
}

// FreeBlocks returns the data blocks not used by any file.
func (m *FS) FreeBlocks() int {
	used := 0

	for _, f := range m.Slots {
		if f != nil {
			used += blocksFor(len(f.Data))
		}
	}

	return simplefs.DataBlocks - used
}

// Names returns file names in slot order.
func (m *FS) Names() []string {
	var names []string

	for _, f := range m.Slots {
		if f != nil {
			names = append(names, f.Name)
		}
	}

	return names
}

func validName(name string) bool {
	return name != "" && len(name) <= simplefs.MaxNameLen && !bytes.ContainsRune([]byte(name), 0)
}

func (m *FS) lookup(name string) int {
	return slices.IndexFunc(m.Slots[:], func(f *File) bool {
		return f != nil && f.Name == name
	})
}

func (m *FS) Create(name string) error {
	if !validName(name) {
		return simplefs.ErrInvalidArgument
	}

	if m.lookup(name) >= 0 {
		return simplefs.ErrAlreadyExists
	}

	slot := slices.Index(m.Slots[:], nil)
	if slot < 0 {
		return simplefs.ErrResourceExhausted
	}

	m.Slots[slot] = &File{Name: name}

	return nil
}

func (m *FS) Delete(name string) error {
	if !validName(name) {
		return simplefs.ErrInvalidArgument
	}

	slot := m.lookup(name)
	if slot < 0 {
		return simplefs.ErrNotFound
	}

	if m.Slots[slot].Handles > 0 {
		return simplefs.ErrBusy
	}

	m.Slots[slot] = nil

	return nil
}

func (m *FS) Open(name string) (simplefs.Handle, error) {
	if !validName(name) {
		return 0, simplefs.ErrInvalidArgument
	}

	slot := m.lookup(name)
	if slot < 0 {
		return 0, simplefs.ErrNotFound
	}

	for i := range m.Handles {
		if !m.Handles[i].InUse {
			m.Handles[i] = Handle{Slot: slot, InUse: true}
			m.Slots[slot].Handles++

			return simplefs.Handle(i), nil
		}
	}

	return 0, simplefs.ErrResourceExhausted
}

func (m *FS) handle(h simplefs.Handle) (*Handle, *File, error) {
	if h < 0 || int(h) >= len(m.Handles) || !m.Handles[h].InUse {
		return nil, nil, simplefs.ErrNotFound
	}

	hd := &m.Handles[h]

	return hd, m.Slots[hd.Slot], nil
}

func (m *FS) Close(h simplefs.Handle) error {
	_, f, err := m.handle(h)
	if err != nil {
		return err
	}

	f.Handles--
	m.Handles[h] = Handle{}

	return nil
}

func (m *FS) Read(h simplefs.Handle, n int) ([]byte, error) {
	hd, f, err := m.handle(h)
	if err != nil {
		return nil, err
	}

	if n <= 0 {
		return nil, simplefs.ErrInvalidArgument
	}

	end := min(hd.Cursor+n, len(f.Data))
	out := slices.Clone(f.Data[hd.Cursor:end])
	hd.Cursor = end

	return out, nil
}

// Write places as much of p as the free blocks allow.
func (m *FS) Write(h simplefs.Handle, p []byte) (int, error) {
	hd, f, err := m.handle(h)
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, simplefs.ErrInvalidArgument
	}

	capacity := (blocksFor(len(f.Data))+m.FreeBlocks())*simplefs.BlockSize - hd.Cursor
	n := min(len(p), capacity)

	if n <= 0 {
		return 0, simplefs.ErrResourceExhausted
	}

	end := hd.Cursor + n
	if end > len(f.Data) {
		f.Data = append(f.Data, make([]byte, end-len(f.Data))...)
	}

	copy(f.Data[hd.Cursor:end], p[:n])
	hd.Cursor = end

	return n, nil
}

func (m *FS) Seek(h simplefs.Handle, offset int) error {
	hd, f, err := m.handle(h)
	if err != nil {
		return err
	}

	if offset < 0 {
		return simplefs.ErrInvalidArgument
	}

	if offset > len(f.Data) {
		return simplefs.ErrOutOfRange
	}

	hd.Cursor = offset

	return nil
}

func (m *FS) Size(h simplefs.Handle) (int, error) {
	_, f, err := m.handle(h)
	if err != nil {
		return 0, err
	}

	return len(f.Data), nil
}

func (m *FS) Truncate(h simplefs.Handle, length int) error {
	hd, f, err := m.handle(h)
	if err != nil {
		return err
	}

	if length < 0 {
		return simplefs.ErrInvalidArgument
	}

	if length > len(f.Data) {
		return simplefs.ErrOutOfRange
	}

	f.Data = f.Data[:length:length]

	for i := range m.Handles {
		if m.Handles[i].InUse && m.Handles[i].Slot == hd.Slot {
			m.Handles[i].Cursor = min(m.Handles[i].Cursor, length)
		}
	}

	hd.Cursor = 0

	return nil
}
