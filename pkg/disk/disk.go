// Package disk provides fixed-geometry block devices for simplefs.
//
// A device is a named array of [NumBlocks] blocks of [BlockSize] bytes.
// A [Driver] creates device images and opens them; an open [Device] reads
// and writes whole blocks by number and must be closed when done.
//
// Two drivers are provided:
//   - [FileDriver]: one host file per device, guarded by an exclusive lock
//   - [MemDriver]: in-memory devices, useful for tests
//
// Devices are not safe for concurrent use.
package disk

import (
	"errors"
	"fmt"
)

const (
	// BlockSize is the size of one block in bytes.
	BlockSize = 4096

	// NumBlocks is the number of blocks on every device.
	NumBlocks = 8192

	// ImageSize is the byte size of a device image.
	ImageSize = BlockSize * NumBlocks
)

// Sentinel errors returned by drivers and devices.
var (
	// ErrOutOfBounds indicates a block number outside [0, NumBlocks).
	ErrOutOfBounds = errors.New("disk: block out of bounds")

	// ErrBadBuffer indicates a buffer whose length is not [BlockSize].
	ErrBadBuffer = errors.New("disk: buffer is not one block")

	// ErrClosed indicates the device has already been closed.
	ErrClosed = errors.New("disk: closed")

	// ErrNoDevice indicates the named device image does not exist.
	ErrNoDevice = errors.New("disk: no such device")

	// ErrLocked indicates the device is already open elsewhere.
	ErrLocked = errors.New("disk: device in use")

	// ErrImageSize indicates an image whose size does not match the
	// device geometry.
	ErrImageSize = errors.New("disk: wrong image size")
)

// Device is an open block device.
//
// ReadBlock and WriteBlock transfer exactly one block; buf must be
// [BlockSize] bytes long.
type Device interface {
	ReadBlock(n int, buf []byte) error
	WriteBlock(n int, buf []byte) error

	// NumBlocks returns the number of addressable blocks.
	NumBlocks() int

	// Close releases the device. Further calls fail with [ErrClosed].
	Close() error
}

// Driver creates and opens named devices.
type Driver interface {
	// Create makes a zero-filled device image, replacing any existing one.
	Create(name string) error

	// Open opens an existing device image for reading and writing.
	Open(name string) (Device, error)
}

// checkBlock validates a block number and buffer before a transfer.
func checkBlock(op string, n int, buf []byte) error {
	if n < 0 || n >= NumBlocks {
		return fmt.Errorf("%s block %d: %w", op, n, ErrOutOfBounds)
	}

	if len(buf) != BlockSize {
		return fmt.Errorf("%s block %d: buffer length %d: %w", op, n, len(buf), ErrBadBuffer)
	}

	return nil
}
