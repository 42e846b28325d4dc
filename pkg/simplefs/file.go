package simplefs

import (
	"errors"
	"fmt"
	"io"
)

// File adapts a handle to the [io] interfaces.
//
// Unlike [FS.Read], Read returns [io.EOF] at the end of the file, and an
// empty p is a no-op rather than an error. Write reports a short write as
// [io.ErrShortWrite] joined with [ErrResourceExhausted].
type File struct {
	fsys *FS
	h    Handle
}

// File returns an io adapter for h. It does not validate h; errors surface
// on first use.
func (fsys *FS) File(h Handle) *File {
	return &File{fsys: fsys, h: h}
}

// Handle returns the underlying handle.
func (f *File) Handle() Handle {
	return f.h
}

func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.fsys.Read(f.h, p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}

	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.fsys.Write(f.h, p)

	switch {
	case errors.Is(err, ErrResourceExhausted):
		return n, errors.Join(io.ErrShortWrite, err)
	case err != nil:
		return n, err
	case n < len(p):
		return n, errors.Join(io.ErrShortWrite, fmt.Errorf("wrote %d of %d bytes: %w", n, len(p), ErrResourceExhausted))
	}

	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		cur, err := f.fsys.Tell(f.h)
		if err != nil {
			return 0, err
		}

		base = cur
	case io.SeekEnd:
		size, err := f.fsys.Size(f.h)
		if err != nil {
			return 0, err
		}

		base = size
	default:
		return 0, fmt.Errorf("seek: whence %d: %w", whence, ErrInvalidArgument)
	}

	abs := int64(base) + offset
	if abs < 0 || abs > MaxFileSize {
		return 0, fmt.Errorf("seek: offset %d: %w", abs, ErrInvalidArgument)
	}

	if err := f.fsys.Seek(f.h, int(abs)); err != nil {
		return 0, err
	}

	return abs, nil
}

// Close closes the handle.
func (f *File) Close() error {
	return f.fsys.Close(f.h)
}

var _ io.ReadWriteSeeker = (*File)(nil)
