// test_helpers_test.go - Shared helpers for simplefs black-box tests.

package simplefs_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/calvinalkan/simplefs/pkg/disk"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

const testDevice = "dev"

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newFS formats and mounts an in-memory device.
func newFS(tb testing.TB) (*simplefs.FS, *disk.MemDriver) {
	tb.Helper()

	drv := disk.NewMemDriver()

	fsys, err := simplefs.New(simplefs.Options{Driver: drv, Now: func() time.Time { return fixedNow }})
	if err != nil {
		tb.Fatalf("new: %v", err)
	}

	if err := fsys.Format(testDevice); err != nil {
		tb.Fatalf("format: %v", err)
	}

	if err := fsys.Mount(testDevice); err != nil {
		tb.Fatalf("mount: %v", err)
	}

	return fsys, drv
}

// remount unmounts and mounts the test device again.
func remount(tb testing.TB, fsys *simplefs.FS) {
	tb.Helper()

	if err := fsys.Unmount(testDevice); err != nil {
		tb.Fatalf("unmount: %v", err)
	}

	if err := fsys.Mount(testDevice); err != nil {
		tb.Fatalf("mount: %v", err)
	}
}

func createOpen(tb testing.TB, fsys *simplefs.FS, name string) simplefs.Handle {
	tb.Helper()

	if err := fsys.Create(name); err != nil {
		tb.Fatalf("create %q: %v", name, err)
	}

	h, err := fsys.Open(name)
	if err != nil {
		tb.Fatalf("open %q: %v", name, err)
	}

	return h
}

func mustWrite(tb testing.TB, fsys *simplefs.FS, h simplefs.Handle, p []byte) {
	tb.Helper()

	n, err := fsys.Write(h, p)
	if err != nil {
		tb.Fatalf("write: %v", err)
	}

	if n != len(p) {
		tb.Fatalf("write n=%d, want=%d", n, len(p))
	}
}

// readAll seeks to 0 and reads the whole file.
func readAll(tb testing.TB, fsys *simplefs.FS, h simplefs.Handle) []byte {
	tb.Helper()

	if err := fsys.Seek(h, 0); err != nil {
		tb.Fatalf("seek: %v", err)
	}

	size, err := fsys.Size(h)
	if err != nil {
		tb.Fatalf("size: %v", err)
	}

	if size == 0 {
		return []byte{}
	}

	buf := make([]byte, size+1)

	n, err := fsys.Read(h, buf)
	if err != nil {
		tb.Fatalf("read: %v", err)
	}

	return buf[:n]
}

func freeBlocks(tb testing.TB, fsys *simplefs.FS) int {
	tb.Helper()

	n, err := fsys.FreeBlocks()
	if err != nil {
		tb.Fatalf("free blocks: %v", err)
	}

	return n
}

// pattern returns n bytes that differ across block boundaries.
func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i%251)
	}

	return out
}

// mutateBlock rewrites device block n of an unmounted image.
func mutateBlock(tb testing.TB, drv disk.Driver, n int, mutate func([]byte)) {
	tb.Helper()

	dev, err := drv.Open(testDevice)
	if err != nil {
		tb.Fatalf("open device: %v", err)
	}

	buf := make([]byte, disk.BlockSize)
	if err := dev.ReadBlock(n, buf); err != nil {
		tb.Fatalf("read block %d: %v", n, err)
	}

	mutate(buf)

	if err := dev.WriteBlock(n, buf); err != nil {
		tb.Fatalf("write block %d: %v", n, err)
	}

	if err := dev.Close(); err != nil {
		tb.Fatalf("close device: %v", err)
	}
}

// scribble overwrites a block with garbage.
func scribble(buf []byte) {
	copy(buf, bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, len(buf)/4))
}
