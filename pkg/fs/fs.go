// Package fs provides the host filesystem abstraction used by file-backed
// block devices.
//
// The main types are:
//   - [FS]: interface for the host operations a device image needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os]
//   - [Chaos]: testing implementation that injects random failures
//
// Example usage:
//
//	fsys := fs.NewReal()
//	lock, err := fsys.Lock("disk.img")
//	if err != nil {
//	    return err
//	}
//	defer lock.Close()
//
//	f, err := fsys.OpenFile("disk.img", os.O_RDWR, 0)
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. Block devices position the file
// with [io.Seeker] and then transfer exactly one block with Read or Write.
//
// Implementations must behave like [os.File], including that [File.Fd]
// returns a valid OS file descriptor until the file is closed.
type File interface {
	// Embedded interfaces from [io] package.
	// These provide Read, Write, Close, and Seek methods.
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// Locker represents a held file lock.
// Call [Locker.Close] to release the lock.
//
// Example:
//
//	lock, err := fsys.Lock("disk.img")
//	if err != nil {
//	    return err // lock contention or timeout
//	}
//	defer lock.Close()
type Locker interface {
	io.Closer
}

// FS defines the host filesystem operations used to create, open and guard
// device images.
//
// Two implementations are provided:
//   - [Real]: production use, wraps [os] package
//   - [Chaos]: testing use, injects random failures
//
// Paths use OS semantics, not the slash-separated paths of io/fs.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// WriteFileAtomic streams r into path atomically.
	// Uses a temp file + rename so a crash never leaves a half-written file
	// at path.
	WriteFileAtomic(path string, r io.Reader, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Lock acquires an exclusive lock associated with path.
	// Waits until the lock is acquired or returns [os.ErrDeadlineExceeded].
	Lock(path string) (Locker, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
