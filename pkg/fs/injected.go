package fs

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// InjectedError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
//
// For errno-style errors, [Chaos] returns a plain *fs.PathError with a
// syscall.Errno in PathError.Err so os.IsPermission and friends keep working.
// Those values are tracked separately so [IsInjected] can still tell injected
// and real OS errors apart.
//
// All methods panic if the receiver or Err is nil.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError
	if errors.As(err, &injected) {
		return true
	}

	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) {
		_, ok := injectedPathErrors.Load(pathErr)

		return ok
	}

	return false
}

var injectedPathErrors sync.Map // map[*fs.PathError]struct{}

// markInjectedPathError registers a PathError as injected.
func markInjectedPathError(err *iofs.PathError) {
	injectedPathErrors.Store(err, struct{}{})
}

// inject wraps err in an InjectedError unless it already is one.
func inject(err error) error {
	if IsInjected(err) {
		return err
	}

	return &InjectedError{Err: err}
}
