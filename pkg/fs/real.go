package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// DefaultLockTimeout is how long [Real.Lock] waits for a contended lock.
const DefaultLockTimeout = 2 * time.Second

const (
	lockPerms        = 0o644
	dirPerms         = 0o755
	lockPollInterval = 10 * time.Millisecond
)

// Real implements [FS] using the real filesystem.
//
// Most methods are pure passthroughs to the [os] package. The exceptions are
// [Real.Exists] which wraps [os.Stat], [Real.WriteFileAtomic] which uses
// atomic file writes, and [Real.Lock] which provides flock-based locking.
type Real struct {
	// LockTimeout bounds how long Lock waits. Zero means [DefaultLockTimeout].
	LockTimeout time.Duration
}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

// A passthrough wrapper for [os.Open].
func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

// A passthrough wrapper for [os.OpenFile].
func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

// WriteFileAtomic writes the contents of reader to path via a temp file and
// rename. perm is applied after the rename.
func (r *Real) WriteFileAtomic(path string, reader io.Reader, perm os.FileMode) error {
	err := atomic.WriteFile(path, reader)
	if err != nil {
		return err
	}

	return os.Chmod(path, perm)
}

// A passthrough wrapper for [os.Stat].
func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists checks if a file exists using [os.Stat].
// Returns (true, nil) if the file exists, (false, nil) if it does not,
// or (false, err) for other errors.
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// A passthrough wrapper for [os.Remove].
func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

// realLock holds an exclusive file lock.
type realLock struct {
	path string
	file *os.File
}

func (l *realLock) Close() error {
	if l.file == nil {
		return nil
	}

	_ = os.Remove(l.path)
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}

// Lock acquires an exclusive flock on a sidecar file in a .locks directory
// next to path. The image itself is never locked directly, so opening it
// for I/O is independent of the lock.
func (r *Real) Lock(path string) (Locker, error) {
	// Put lock files in .locks subdirectory to avoid changing parent dir mtime.
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	locksDir := filepath.Join(dir, ".locks")
	lockPath := filepath.Join(locksDir, base+".lock")

	timeout := r.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	deadline := time.Now().Add(timeout)

	for {
		if err := os.MkdirAll(locksDir, dirPerms); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockPerms)
		if err != nil {
			return nil, err
		}

		var openStat unix.Stat_t
		if err := unix.Fstat(int(file.Fd()), &openStat); err != nil {
			_ = file.Close()

			return nil, err
		}

		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			// Verify the file at the path still has the same inode.
			var pathStat unix.Stat_t
			if statErr := unix.Stat(lockPath, &pathStat); statErr != nil || pathStat.Ino != openStat.Ino {
				// Released and removed by the previous holder, retry.
				_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &realLock{path: lockPath, file: file}, nil
		}

		_ = file.Close()

		if !errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &os.PathError{Op: "flock", Path: lockPath, Err: err}
		}

		if time.Now().After(deadline) {
			return nil, os.ErrDeadlineExceeded
		}

		time.Sleep(lockPollInterval)
	}
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
