package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"
)

// MemDriver keeps devices in memory, backed by goose memory disks.
// Images survive Close and can be reopened until the driver is dropped.
type MemDriver struct {
	mu     sync.Mutex
	disks  map[string]gdisk.Disk
	opened map[string]bool
}

// NewMemDriver returns an empty in-memory driver.
func NewMemDriver() *MemDriver {
	return &MemDriver{
		disks:  make(map[string]gdisk.Disk),
		opened: make(map[string]bool),
	}
}

// Create replaces name with a fresh zero-filled disk.
func (d *MemDriver) Create(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened[name] {
		return fmt.Errorf("create device %q: %w", name, ErrLocked)
	}

	d.disks[name] = gdisk.NewMemDisk(NumBlocks)

	return nil
}

func (d *MemDriver) Open(name string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	disk, ok := d.disks[name]
	if !ok {
		return nil, fmt.Errorf("open device %q: %w", name, ErrNoDevice)
	}

	if d.opened[name] {
		return nil, fmt.Errorf("open device %q: %w", name, ErrLocked)
	}

	d.opened[name] = true

	return &memDevice{driver: d, name: name, disk: disk}, nil
}

// Exists reports whether a device named name has been created.
func (d *MemDriver) Exists(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.disks[name]

	return ok
}

func (d *MemDriver) release(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.opened, name)
}

type memDevice struct {
	driver *MemDriver
	name   string
	disk   gdisk.Disk
	closed bool
}

func (d *memDevice) ReadBlock(n int, buf []byte) error {
	if d.closed {
		return ErrClosed
	}

	if err := checkBlock("read", n, buf); err != nil {
		return err
	}

	copy(buf, d.disk.Read(uint64(n)))

	return nil
}

func (d *memDevice) WriteBlock(n int, buf []byte) error {
	if d.closed {
		return ErrClosed
	}

	if err := checkBlock("write", n, buf); err != nil {
		return err
	}

	// The disk keeps its own copy.
	d.disk.Write(uint64(n), buf)

	return nil
}

func (d *memDevice) NumBlocks() int {
	return int(d.disk.Size())
}

func (d *memDevice) Close() error {
	if d.closed {
		return ErrClosed
	}

	d.closed = true
	d.disk.Barrier()
	d.driver.release(d.name)

	return nil
}

var (
	_ Driver = (*MemDriver)(nil)
	_ Device = (*memDevice)(nil)
)
