package simplefs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/reedsolomon"

	"github.com/calvinalkan/simplefs/pkg/disk"
)

// Options configures an [FS].
type Options struct {
	// Driver creates and opens devices. Required.
	Driver disk.Driver

	// Logger receives lifecycle and diagnostic records.
	// Nil discards all logging.
	Logger *slog.Logger

	// Now returns the current time, used for the format timestamp.
	// Nil means [time.Now].
	Now func() time.Time
}

// FS is a file system over one mounted device.
//
// All tables (layout, allocation table, directory, open-file table) live in
// the FS value while mounted; metadata reaches the device only at Format and
// Unmount. An FS is not safe for concurrent use. Separate FS values may mount
// separate devices in one process.
type FS struct {
	driver disk.Driver
	log    *slog.Logger
	now    func() time.Time
	enc    reedsolomon.Encoder

	// Mounted state. dev is nil when nothing is mounted.
	name    string
	dev     disk.Device
	layout  Layout
	alloc   *allocator
	dir     *directory
	handles handleTable

	scratch []byte
}

// New returns an unmounted FS.
//
// Possible errors: [ErrInvalidArgument] if no driver is given.
func New(opts Options) (*FS, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("new: nil driver: %w", ErrInvalidArgument)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	enc, err := newEncoder()
	if err != nil {
		return nil, fmt.Errorf("new: parity encoder: %w", err)
	}

	return &FS{
		driver:  opts.Driver,
		log:     logger,
		now:     now,
		enc:     enc,
		scratch: make([]byte, BlockSize),
	}, nil
}

// Mounted reports whether a device is mounted, and which.
func (fsys *FS) Mounted() (string, bool) {
	return fsys.name, fsys.dev != nil
}

func (fsys *FS) checkMounted(op string) error {
	if fsys.dev == nil {
		return fmt.Errorf("%s: %w", op, ErrNotMounted)
	}

	return nil
}

// Format creates the device image name and writes an empty file system to
// it: a new layout with a fresh volume ID, an all-free allocation table, an
// empty directory and matching parity.
//
// Possible errors: [ErrInvalidArgument], [ErrBusy] if name is mounted by this
// FS or held by another mount, or the device error.
func (fsys *FS) Format(name string) error {
	if name == "" {
		return fmt.Errorf("format: empty device name: %w", ErrInvalidArgument)
	}

	if fsys.dev != nil && fsys.name == name {
		return fmt.Errorf("format %q: device is mounted: %w", name, ErrBusy)
	}

	if err := fsys.driver.Create(name); err != nil {
		return fmt.Errorf("format %q: %w", name, deviceErr(err))
	}

	dev, err := fsys.driver.Open(name)
	if err != nil {
		return fmt.Errorf("format %q: %w", name, deviceErr(err))
	}

	layout := newLayout(uuid.New(), fsys.now())

	var dir directory

	err = fsys.writeMetadata(dev, &layout, newAllocator(DataBlocks), &dir)
	if err != nil {
		err = fmt.Errorf("format %q: %w", name, err)
	}

	if closeErr := dev.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("format %q: close: %w", name, closeErr))
	}

	if err != nil {
		return err
	}

	fsys.log.Info("formatted", "device", name, "volume", layout.VolumeID, "data_blocks", DataBlocks)

	return nil
}

// Mount opens the device, validates and loads the layout, allocation table
// and directory, and resets the open-file table. Up to two damaged
// metadata blocks are rebuilt from parity. Persisted open flags are ignored.
//
// Possible errors: [ErrMounted], [ErrInvalidArgument], [ErrNotFound] if the
// image does not exist, [ErrBusy] if it is held by another mount,
// [ErrCorrupt], [ErrIncompatible], or the device error.
func (fsys *FS) Mount(name string) error {
	if fsys.dev != nil {
		return fmt.Errorf("mount %q: %q is mounted: %w", name, fsys.name, ErrMounted)
	}

	if name == "" {
		return fmt.Errorf("mount: empty device name: %w", ErrInvalidArgument)
	}

	dev, err := fsys.driver.Open(name)
	if err != nil {
		return fmt.Errorf("mount %q: %w", name, deviceErr(err))
	}

	if err := fsys.load(dev); err != nil {
		return errors.Join(fmt.Errorf("mount %q: %w", name, err), dev.Close())
	}

	fsys.name = name
	fsys.dev = dev
	fsys.handles.reset()

	fsys.log.Info("mounted",
		"device", name,
		"volume", fsys.layout.VolumeID,
		"mount_count", fsys.layout.MountCount,
		"files", fsys.dir.used(),
		"free_blocks", fsys.alloc.freeCount(),
	)

	return nil
}

// load reads and validates all metadata from dev into fsys.
func (fsys *FS) load(dev disk.Device) error {
	if n := dev.NumBlocks(); n != disk.NumBlocks {
		return fmt.Errorf("device has %d blocks, want %d: %w", n, disk.NumBlocks, ErrIncompatible)
	}

	if err := dev.ReadBlock(layoutBlock, fsys.scratch); err != nil {
		return fmt.Errorf("read layout: %w", err)
	}

	layout, err := decodeLayout(fsys.scratch)
	if err != nil {
		return err
	}

	meta := newMetadata()

	for n := metaFirst; n < metaLast; n++ {
		if err := dev.ReadBlock(n, meta.block(n)); err != nil {
			return fmt.Errorf("read metadata block %d: %w", n, err)
		}
	}

	repaired, err := meta.repair(fsys.enc)
	if err != nil {
		return err
	}

	if len(repaired) > 0 {
		fsys.log.Warn("metadata repaired from parity", "blocks", repaired)
	}

	alloc, err := decodeAllocator(meta.fat(), DataBlocks)
	if err != nil {
		return err
	}

	dir, err := decodeDirectory(meta.dir(), DataBlocks)
	if err != nil {
		return err
	}

	if err := checkChains(alloc, dir); err != nil {
		return err
	}

	fsys.layout = layout
	fsys.alloc = alloc
	fsys.dir = dir

	return nil
}

// Unmount writes the layout (with its mount count incremented), allocation
// table, directory and parity back to the device and closes it. The FS is
// unmounted afterwards even if writing fails; the returned error then
// reports lost metadata.
//
// Possible errors: [ErrNotMounted] if name is not the mounted device, or the
// device error.
func (fsys *FS) Unmount(name string) error {
	if fsys.dev == nil {
		return fmt.Errorf("unmount %q: %w", name, ErrNotMounted)
	}

	if name != fsys.name {
		return fmt.Errorf("unmount %q: %q is mounted: %w", name, fsys.name, ErrNotMounted)
	}

	if n := fsys.handles.inUse(); n > 0 {
		fsys.log.Debug("unmount with open handles", "device", name, "handles", n)
	}

	fsys.layout.MountCount++

	err := fsys.writeMetadata(fsys.dev, &fsys.layout, fsys.alloc, fsys.dir)
	if err != nil {
		err = fmt.Errorf("unmount %q: %w", name, err)
	}

	if closeErr := fsys.dev.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("unmount %q: close: %w", name, closeErr))
	}

	freeBlocks := fsys.alloc.freeCount()

	fsys.name = ""
	fsys.dev = nil
	fsys.alloc = nil
	fsys.dir = nil
	fsys.layout = Layout{}
	fsys.handles.reset()

	if err != nil {
		fsys.log.Error("unmount failed, metadata may be lost", "device", name, "error", err)

		return err
	}

	fsys.log.Info("unmounted", "device", name, "free_blocks", freeBlocks)

	return nil
}

// writeMetadata serializes the allocation table and directory, computes
// parity and checksums, and writes the metadata region followed by the
// layout block.
func (fsys *FS) writeMetadata(dev disk.Device, layout *Layout, alloc *allocator, dir *directory) error {
	meta := newMetadata()
	alloc.encode(meta.fat())
	dir.encode(meta.dir())

	if err := meta.seal(fsys.enc); err != nil {
		return err
	}

	for n := metaFirst; n < metaLast; n++ {
		if err := dev.WriteBlock(n, meta.block(n)); err != nil {
			return fmt.Errorf("write metadata block %d: %w", n, err)
		}
	}

	encodeLayout(layout, fsys.scratch)

	if err := dev.WriteBlock(layoutBlock, fsys.scratch); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}

	return nil
}

// deviceErr attaches the matching simplefs sentinel to driver errors.
func deviceErr(err error) error {
	switch {
	case errors.Is(err, disk.ErrLocked):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, disk.ErrNoDevice):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}

// FileInfo describes a file.
type FileInfo struct {
	Name string
	Size int

	// Blocks is the number of data blocks in the file's chain.
	Blocks int

	// Handles is the number of open handles onto the file.
	Handles int

	// Slot is the directory slot holding the file.
	Slot int
}

func (fsys *FS) info(slot int) FileInfo {
	e := &fsys.dir.entries[slot]

	return FileInfo{
		Name:    e.name,
		Size:    e.size,
		Blocks:  fsys.alloc.chainLength(e.head),
		Handles: e.openCount,
		Slot:    slot,
	}
}

// Stat describes the file called name.
//
// Possible errors: [ErrNotMounted], [ErrInvalidArgument], [ErrNotFound].
func (fsys *FS) Stat(name string) (FileInfo, error) {
	if err := fsys.checkMounted("stat"); err != nil {
		return FileInfo{}, err
	}

	if err := validateName(name); err != nil {
		return FileInfo{}, fmt.Errorf("stat: %w", err)
	}

	slot, ok := fsys.dir.lookup(name)
	if !ok {
		return FileInfo{}, fmt.Errorf("stat %q: %w", name, ErrNotFound)
	}

	return fsys.info(slot), nil
}

// List describes every file in directory slot order.
func (fsys *FS) List() ([]FileInfo, error) {
	if err := fsys.checkMounted("list"); err != nil {
		return nil, err
	}

	var infos []FileInfo

	for i := range fsys.dir.entries {
		if fsys.dir.entries[i].used {
			infos = append(infos, fsys.info(i))
		}
	}

	return infos, nil
}

// FreeBlocks returns the number of free data blocks.
func (fsys *FS) FreeBlocks() (int, error) {
	if err := fsys.checkMounted("free blocks"); err != nil {
		return 0, err
	}

	return fsys.alloc.freeCount(), nil
}

// Layout returns the mounted layout.
func (fsys *FS) Layout() (Layout, error) {
	if err := fsys.checkMounted("layout"); err != nil {
		return Layout{}, err
	}

	return fsys.layout, nil
}
