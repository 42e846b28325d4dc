package disk

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/simplefs/pkg/fs"
)

const imagePerms = 0o644

// FileDriver stores each device as a host file named by the device name.
//
// An open device holds an exclusive lock on its image until Close, so a
// second Open of the same image (from this or another process) fails with
// [ErrLocked].
type FileDriver struct {
	fs fs.FS
}

// NewFileDriver returns a driver that stores images through fsys.
func NewFileDriver(fsys fs.FS) *FileDriver {
	return &FileDriver{fs: fsys}
}

// Create writes a zero-filled image of [ImageSize] bytes to name.
// The image is written atomically while holding its lock.
func (d *FileDriver) Create(name string) error {
	lock, err := d.lock(name)
	if err != nil {
		return err
	}

	err = d.fs.WriteFileAtomic(name, io.LimitReader(zeros{}, ImageSize), imagePerms)
	if err != nil {
		err = fmt.Errorf("create device %q: %w", name, err)
	}

	return errors.Join(err, lock.Close())
}

// Open locks and opens the image at name.
func (d *FileDriver) Open(name string) (Device, error) {
	lock, err := d.lock(name)
	if err != nil {
		return nil, err
	}

	f, err := d.fs.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrNoDevice
		}

		return nil, errors.Join(fmt.Errorf("open device %q: %w", name, err), lock.Close())
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open device %q: %w", name, err), f.Close(), lock.Close())
	}

	if info.Size() != ImageSize {
		err = fmt.Errorf("open device %q: size %d, want %d: %w", name, info.Size(), ImageSize, ErrImageSize)

		return nil, errors.Join(err, f.Close(), lock.Close())
	}

	return &fileDevice{name: name, file: f, lock: lock}, nil
}

func (d *FileDriver) lock(name string) (fs.Locker, error) {
	lock, err := d.fs.Lock(name)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("lock device %q: %w", name, ErrLocked)
		}

		return nil, fmt.Errorf("lock device %q: %w", name, err)
	}

	return lock, nil
}

// fileDevice is an open image. The lock is held until Close.
type fileDevice struct {
	name   string
	file   fs.File
	lock   fs.Locker
	closed bool
}

func (d *fileDevice) ReadBlock(n int, buf []byte) error {
	if d.closed {
		return ErrClosed
	}

	if err := checkBlock("read", n, buf); err != nil {
		return err
	}

	if _, err := d.file.Seek(int64(n)*BlockSize, io.SeekStart); err != nil {
		return fmt.Errorf("read block %d: %w", n, err)
	}

	if _, err := io.ReadFull(d.file, buf); err != nil {
		return fmt.Errorf("read block %d: %w", n, err)
	}

	return nil
}

func (d *fileDevice) WriteBlock(n int, buf []byte) error {
	if d.closed {
		return ErrClosed
	}

	if err := checkBlock("write", n, buf); err != nil {
		return err
	}

	if _, err := d.file.Seek(int64(n)*BlockSize, io.SeekStart); err != nil {
		return fmt.Errorf("write block %d: %w", n, err)
	}

	wrote, err := d.file.Write(buf)
	if err != nil {
		return fmt.Errorf("write block %d: %w", n, err)
	}

	if wrote != len(buf) {
		return fmt.Errorf("write block %d: %w", n, io.ErrShortWrite)
	}

	return nil
}

func (d *fileDevice) NumBlocks() int {
	return NumBlocks
}

// Close syncs and closes the image and releases the lock. The lock is
// released even if the sync fails.
func (d *fileDevice) Close() error {
	if d.closed {
		return ErrClosed
	}

	d.closed = true

	var syncErr error
	if err := d.file.Sync(); err != nil {
		syncErr = fmt.Errorf("sync device %q: %w", d.name, err)
	}

	return errors.Join(syncErr, d.file.Close(), d.lock.Close())
}

// zeros is an endless reader of zero bytes.
type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)

	return len(p), nil
}

var (
	_ Driver = (*FileDriver)(nil)
	_ Device = (*fileDevice)(nil)
)
