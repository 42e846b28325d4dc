package disk_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/simplefs/pkg/disk"
	"github.com/calvinalkan/simplefs/pkg/fs"
)

type driverCase struct {
	name  string
	setup func(t *testing.T) (disk.Driver, string)
}

func drivers() []driverCase {
	return []driverCase{
		{
			name: "file",
			setup: func(t *testing.T) (disk.Driver, string) {
				t.Helper()

				return disk.NewFileDriver(&fs.Real{LockTimeout: 20 * time.Millisecond}),
					filepath.Join(t.TempDir(), "disk.img")
			},
		},
		{
			name: "mem",
			setup: func(t *testing.T) (disk.Driver, string) {
				t.Helper()

				return disk.NewMemDriver(), "disk"
			},
		},
	}
}

func block(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, disk.BlockSize)
}

func Test_Device_Round_Trips_Blocks_When_Reopened(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)
			require.NoError(t, drv.Create(name))

			dev, err := drv.Open(name)
			require.NoError(t, err)
			assert.Equal(t, disk.NumBlocks, dev.NumBlocks())

			require.NoError(t, dev.WriteBlock(0, block('a')))
			require.NoError(t, dev.WriteBlock(disk.NumBlocks-1, block('z')))
			require.NoError(t, dev.Close())

			dev, err = drv.Open(name)
			require.NoError(t, err)

			defer func() { _ = dev.Close() }()

			buf := make([]byte, disk.BlockSize)

			require.NoError(t, dev.ReadBlock(0, buf))
			assert.Equal(t, block('a'), buf)

			require.NoError(t, dev.ReadBlock(disk.NumBlocks-1, buf))
			assert.Equal(t, block('z'), buf)

			require.NoError(t, dev.ReadBlock(1, buf))
			assert.Equal(t, block(0), buf)
		})
	}
}

func Test_Device_Rejects_Transfer_When_Block_Or_Buffer_Invalid(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)
			require.NoError(t, drv.Create(name))

			dev, err := drv.Open(name)
			require.NoError(t, err)

			defer func() { _ = dev.Close() }()

			buf := make([]byte, disk.BlockSize)

			require.ErrorIs(t, dev.ReadBlock(-1, buf), disk.ErrOutOfBounds)
			require.ErrorIs(t, dev.ReadBlock(disk.NumBlocks, buf), disk.ErrOutOfBounds)
			require.ErrorIs(t, dev.WriteBlock(disk.NumBlocks, buf), disk.ErrOutOfBounds)
			require.ErrorIs(t, dev.WriteBlock(3, buf[:10]), disk.ErrBadBuffer)
			require.ErrorIs(t, dev.ReadBlock(3, make([]byte, disk.BlockSize+1)), disk.ErrBadBuffer)
		})
	}
}

func Test_Device_Returns_ErrClosed_When_Used_After_Close(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)
			require.NoError(t, drv.Create(name))

			dev, err := drv.Open(name)
			require.NoError(t, err)
			require.NoError(t, dev.Close())

			buf := make([]byte, disk.BlockSize)

			require.ErrorIs(t, dev.ReadBlock(0, buf), disk.ErrClosed)
			require.ErrorIs(t, dev.WriteBlock(0, buf), disk.ErrClosed)
			require.ErrorIs(t, dev.Close(), disk.ErrClosed)
		})
	}
}

func Test_Driver_Returns_ErrNoDevice_When_Image_Missing(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)

			_, err := drv.Open(name)
			require.ErrorIs(t, err, disk.ErrNoDevice)
		})
	}
}

func Test_Driver_Returns_ErrLocked_When_Device_Already_Open(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)
			require.NoError(t, drv.Create(name))

			dev, err := drv.Open(name)
			require.NoError(t, err)

			_, err = drv.Open(name)
			require.ErrorIs(t, err, disk.ErrLocked)

			require.ErrorIs(t, drv.Create(name), disk.ErrLocked)

			require.NoError(t, dev.Close())

			dev, err = drv.Open(name)
			require.NoError(t, err)
			require.NoError(t, dev.Close())
		})
	}
}

func Test_Driver_Create_Zeroes_Image_When_Image_Exists(t *testing.T) {
	t.Parallel()

	for _, tc := range drivers() {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			drv, name := tc.setup(t)
			require.NoError(t, drv.Create(name))

			dev, err := drv.Open(name)
			require.NoError(t, err)
			require.NoError(t, dev.WriteBlock(42, block(0xFF)))
			require.NoError(t, dev.Close())

			require.NoError(t, drv.Create(name))

			dev, err = drv.Open(name)
			require.NoError(t, err)

			defer func() { _ = dev.Close() }()

			buf := make([]byte, disk.BlockSize)
			require.NoError(t, dev.ReadBlock(42, buf))
			assert.Equal(t, block(0), buf)
		})
	}
}

func Test_FileDriver_Creates_Image_Of_Device_Size_When_Created(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	drv := disk.NewFileDriver(fs.NewReal())

	require.NoError(t, drv.Create(path))

	info, err := os.Stat(path)
	require.NoError(t, err)

	if got, want := info.Size(), int64(disk.ImageSize); got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}
}

func Test_FileDriver_Returns_ErrImageSize_When_Image_Truncated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, disk.BlockSize), 0o644))

	drv := disk.NewFileDriver(fs.NewReal())

	_, err := drv.Open(path)
	require.ErrorIs(t, err, disk.ErrImageSize)

	// The failed open must not leave the lock held.
	require.NoError(t, drv.Create(path))

	dev, err := drv.Open(path)
	require.NoError(t, err)
	require.NoError(t, dev.Close())
}

func Test_FileDriver_Surfaces_Injected_Error_When_Write_Fails(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 99, fs.ChaosConfig{WriteFailRate: 1.0})
	chaos.SetMode(fs.ChaosModeNoOp)

	path := filepath.Join(t.TempDir(), "disk.img")
	drv := disk.NewFileDriver(chaos)
	require.NoError(t, drv.Create(path))

	dev, err := drv.Open(path)
	require.NoError(t, err)

	defer func() { _ = dev.Close() }()

	chaos.SetMode(fs.ChaosModeActive)

	err = dev.WriteBlock(7, block('x'))
	if err == nil {
		t.Fatal("expected write error")
	}

	if !fs.IsInjected(err) {
		t.Fatalf("err=%v not marked injected", err)
	}

	if errors.Is(err, disk.ErrOutOfBounds) {
		t.Fatalf("err=%v, unexpected bounds error", err)
	}

	chaos.SetMode(fs.ChaosModeNoOp)
}

func Test_FileDriver_Reads_Whole_Block_When_Reads_Are_Short(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 5, fs.ChaosConfig{PartialReadRate: 1.0})
	path := filepath.Join(t.TempDir(), "disk.img")
	drv := disk.NewFileDriver(chaos)
	require.NoError(t, drv.Create(path))

	dev, err := drv.Open(path)
	require.NoError(t, err)

	defer func() { _ = dev.Close() }()

	require.NoError(t, dev.WriteBlock(9, block('q')))

	buf := make([]byte, disk.BlockSize)
	require.NoError(t, dev.ReadBlock(9, buf))
	assert.Equal(t, block('q'), buf)
	assert.Positive(t, chaos.Stats().PartialReads)
}
