package simplefs

import "errors"

// Sentinel errors returned by simplefs operations.
//
// Every returned error wraps exactly one of these (device failures wrap the
// device error instead). Callers should use [errors.Is]:
//
//	n, err := fsys.Write(h, data)
//	if errors.Is(err, simplefs.ErrResourceExhausted) {
//	    // the device is full
//	}
var (
	// ErrInvalidArgument indicates a malformed name, a negative offset or
	// length, or an empty buffer.
	//
	// This is a programming error.
	ErrInvalidArgument = errors.New("simplefs: invalid argument")

	// ErrNotFound indicates a name or handle that does not resolve.
	ErrNotFound = errors.New("simplefs: not found")

	// ErrAlreadyExists indicates a create on a name that is in use.
	ErrAlreadyExists = errors.New("simplefs: already exists")

	// ErrBusy indicates the target is in use: a delete on an open file, a
	// format of the mounted device, or a device held by another mount.
	ErrBusy = errors.New("simplefs: busy")

	// ErrResourceExhausted indicates no free directory slot, no free handle
	// slot, or no free data block.
	ErrResourceExhausted = errors.New("simplefs: resource exhausted")

	// ErrOutOfRange indicates a seek or truncate beyond the file size.
	ErrOutOfRange = errors.New("simplefs: out of range")

	// ErrNotMounted indicates an operation that needs a mounted device, or an
	// unmount of a device that is not the mounted one.
	ErrNotMounted = errors.New("simplefs: not mounted")

	// ErrMounted indicates a mount while a device is already mounted.
	ErrMounted = errors.New("simplefs: already mounted")

	// ErrCorrupt indicates metadata that failed validation and could not be
	// repaired from parity.
	//
	// Recovery: format the device.
	ErrCorrupt = errors.New("simplefs: corrupt")

	// ErrIncompatible indicates an image written with a different format
	// version or geometry.
	ErrIncompatible = errors.New("simplefs: incompatible")
)
