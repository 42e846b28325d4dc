package fs

import (
	"io"
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// Read faults
	ReadFailRate    float64 // Fail File.Read entirely
	PartialReadRate float64 // Short File.Read (n < len, err == nil)

	// Write faults
	WriteFailRate    float64 // Fail File.Write and WriteFileAtomic entirely
	PartialWriteRate float64 // Write half the buffer then fail

	// Other faults
	SeekFailRate float64 // Fail File.Seek
	SyncFailRate float64 // Fail File.Sync
	OpenFailRate float64 // Fail Open/OpenFile
	LockFailRate float64 // Fail Lock acquisition with a timeout

	// StickyIO makes the first injected EIO on a path permanent for that
	// path, like a bad sector. Later operations on the path keep failing
	// with EIO until [Chaos.ResetPathState].
	StickyIO bool
}

// DefaultChaosConfig returns a config with reasonable fault rates for testing.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		ReadFailRate:     0.02,
		PartialReadRate:  0.05,
		WriteFailRate:    0.02,
		PartialWriteRate: 0.02,
		SeekFailRate:     0.01,
		SyncFailRate:     0.01,
		OpenFailRate:     0.02,
		LockFailRate:     0.02,
	}
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	// Sticky path state is kept but not consulted.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails     int64
	ReadFails     int64
	WriteFails    int64
	PartialReads  int64
	PartialWrites int64
	SeekFails     int64
	SyncFails     int64
	LockFails     int64
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// All injected errors are real OS errors (syscall.Errno wrapped in
// *fs.PathError) so errors.Is keeps working, and they are marked so tests can
// use [IsInjected]. Chaos never injects ENOENT; missing-path errors always
// come from the wrapped FS.
//
// Return-shape constraints match os.File: failed reads return n == 0,
// partial writes return n > 0 with a non-nil error, failed seeks return 0.
//
// Use [Chaos.SetMode] to control behavior and [Chaos.Stats] to inspect how
// many faults were injected.
type Chaos struct {
	fs     FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	mu     sync.Mutex
	broken map[string]bool

	openFails     atomic.Int64
	readFails     atomic.Int64
	writeFails    atomic.Int64
	partialReads  atomic.Int64
	partialWrites atomic.Int64
	seekFails     atomic.Int64
	syncFails     atomic.Int64
	lockFails     atomic.Int64
}

// NewChaos creates a new Chaos filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fs:     fs,
		rng:    rand.New(rand.NewSource(seed)),
		config: config,
		broken: make(map[string]bool),
	}
}

// SetMode updates Chaos behavior. Safe to call concurrently with operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:     c.openFails.Load(),
		ReadFails:     c.readFails.Load(),
		WriteFails:    c.writeFails.Load(),
		PartialReads:  c.partialReads.Load(),
		PartialWrites: c.partialWrites.Load(),
		SeekFails:     c.seekFails.Load(),
		SyncFails:     c.syncFails.Load(),
		LockFails:     c.lockFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.WriteFails + s.PartialReads +
		s.PartialWrites + s.SeekFails + s.SyncFails + s.LockFails
}

// IsBroken reports whether path is stuck returning EIO.
func (c *Chaos) IsBroken(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.broken[path]
}

// ResetPathState clears sticky EIO state for path.
func (c *Chaos) ResetPathState(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.broken, path)
}

func (c *Chaos) active() bool {
	return ChaosMode(c.mode.Load()) == ChaosModeActive
}

// should returns true with the given probability when chaos is active.
func (c *Chaos) should(rate float64) bool {
	if !c.active() || rate <= 0 {
		return false
	}

	c.mu.Lock()
	result := c.rng.Float64()
	c.mu.Unlock()

	return result < rate
}

// pick selects a random errno from errs.
func (c *Chaos) pick(errs ...syscall.Errno) syscall.Errno {
	c.mu.Lock()
	idx := c.rng.Intn(len(errs))
	c.mu.Unlock()

	return errs[idx]
}

// isStuck reports whether sticky EIO applies to path right now.
func (c *Chaos) isStuck(path string) bool {
	return c.active() && c.IsBroken(path)
}

// fail builds an injected *fs.PathError and records sticky state.
func (c *Chaos) fail(op, path string, errno syscall.Errno) error {
	if errno == syscall.EIO && c.config.StickyIO {
		c.mu.Lock()
		c.broken[path] = true
		c.mu.Unlock()
	}

	pe := &fs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(pe)

	return pe
}

// --- FS methods ---

func (c *Chaos) Open(path string) (File, error) {
	if c.isStuck(path) {
		c.openFails.Add(1)

		return nil, c.fail("open", path, syscall.EIO)
	}

	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, c.fail("open", path, c.pick(syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE))
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.isStuck(path) {
		c.openFails.Add(1)

		return nil, c.fail("open", path, syscall.EIO)
	}

	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		errs := []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE}
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
			errs = append(errs, syscall.ENOSPC, syscall.EROFS)
		}

		return nil, c.fail("open", path, c.pick(errs...))
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) WriteFileAtomic(path string, r io.Reader, perm os.FileMode) error {
	if c.isStuck(path) {
		c.writeFails.Add(1)

		return c.fail("write", path, syscall.EIO)
	}

	// Atomic writes either land or don't; partial rates do not apply.
	if c.should(c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return c.fail("write", path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS))
	}

	return c.fs.WriteFileAtomic(path, r, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	return c.fs.Exists(path)
}

func (c *Chaos) Remove(path string) error {
	return c.fs.Remove(path)
}

func (c *Chaos) Lock(path string) (Locker, error) {
	if c.should(c.config.LockFailRate) {
		c.lockFails.Add(1)

		return nil, inject(os.ErrDeadlineExceeded)
	}

	return c.fs.Lock(path)
}

// --- chaosFile wraps a File and injects faults on Read/Write/Seek/Sync ---

type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

func (cf *chaosFile) Read(p []byte) (int, error) {
	c := cf.chaos

	if c.isStuck(cf.path) {
		c.readFails.Add(1)

		return 0, c.fail("read", cf.path, syscall.EIO)
	}

	if c.should(c.config.ReadFailRate) {
		c.readFails.Add(1)

		return 0, c.fail("read", cf.path, syscall.EIO)
	}

	// Partial read: limit the underlying read so the file offset only
	// advances by what is returned.
	if len(p) > 1 && c.should(c.config.PartialReadRate) {
		c.partialReads.Add(1)

		return cf.f.Read(p[:len(p)/2])
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	c := cf.chaos

	if c.isStuck(cf.path) {
		c.writeFails.Add(1)

		return 0, c.fail("write", cf.path, syscall.EIO)
	}

	if c.should(c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return 0, c.fail("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC, syscall.EDQUOT))
	}

	if len(p) > 1 && c.should(c.config.PartialWriteRate) {
		c.partialWrites.Add(1)

		wrote, err := cf.f.Write(p[:len(p)/2])
		if err != nil {
			return wrote, err
		}

		return wrote, c.fail("write", cf.path, c.pick(syscall.EIO, syscall.ENOSPC))
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	c := cf.chaos

	if c.should(c.config.SeekFailRate) {
		c.seekFails.Add(1)

		return 0, c.fail("seek", cf.path, syscall.EIO)
	}

	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Sync() error {
	c := cf.chaos

	if c.should(c.config.SyncFailRate) {
		c.syncFails.Add(1)

		return c.fail("sync", cf.path, c.pick(syscall.EIO, syscall.ENOSPC))
	}

	return cf.f.Sync()
}

func (cf *chaosFile) Close() error {
	return cf.f.Close()
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
