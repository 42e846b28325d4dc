package simplefs_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/simplefs/pkg/disk"
	"github.com/calvinalkan/simplefs/pkg/fs"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

var errInjected = errors.New("injected device failure")

// flakyDriver hands out devices that, once armed, let failAfter counted
// writes through and fail the rest. Data-region writes are counted unless
// counted is set.
type flakyDriver struct {
	disk.Driver

	armed     bool
	failAfter int
	writes    int
	counted   func(block int) bool
}

func (d *flakyDriver) Open(name string) (disk.Device, error) {
	dev, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}

	return &flakyDevice{Device: dev, driver: d}, nil
}

type flakyDevice struct {
	disk.Device

	driver *flakyDriver
}

func (d *flakyDevice) WriteBlock(n int, buf []byte) error {
	drv := d.driver

	counted := drv.counted
	if counted == nil {
		counted = func(block int) bool { return block >= blockDataStart }
	}

	if drv.armed && counted(n) {
		drv.writes++
		if drv.writes > drv.failAfter {
			return errInjected
		}
	}

	return d.Device.WriteBlock(n, buf)
}

func newFlakyFS(t *testing.T) (*simplefs.FS, *flakyDriver) {
	t.Helper()

	drv := &flakyDriver{Driver: disk.NewMemDriver()}

	fsys, err := simplefs.New(simplefs.Options{Driver: drv})
	require.NoError(t, err)
	require.NoError(t, fsys.Format(testDevice))
	require.NoError(t, fsys.Mount(testDevice))

	return fsys, drv
}

func Test_Write_Keeps_Written_Prefix_And_Frees_Rest_When_Device_Fails(t *testing.T) {
	t.Parallel()

	fsys, drv := newFlakyFS(t)
	h := createOpen(t, fsys, "f")

	drv.armed = true
	drv.failAfter = 1

	data := pattern(3*simplefs.BlockSize, 7)

	n, err := fsys.Write(h, data)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, simplefs.BlockSize, n)

	drv.armed = false

	size, err := fsys.Size(h)
	require.NoError(t, err)
	assert.Equal(t, simplefs.BlockSize, size)

	cur, err := fsys.Tell(h)
	require.NoError(t, err)
	assert.Equal(t, simplefs.BlockSize, cur)

	assert.Equal(t, simplefs.DataBlocks-1, freeBlocks(t, fsys), "unused new blocks are released")
	assert.Equal(t, data[:simplefs.BlockSize], readAll(t, fsys, h))

	// Metadata stays consistent enough to survive a remount.
	remount(t, fsys)

	info, err := fsys.Stat("f")
	require.NoError(t, err)
	assert.Equal(t, simplefs.BlockSize, info.Size)
	assert.Equal(t, 1, info.Blocks)
}

func Test_Write_Leaves_File_Unchanged_When_First_Block_Fails(t *testing.T) {
	t.Parallel()

	fsys, drv := newFlakyFS(t)
	h := createOpen(t, fsys, "f")
	mustWrite(t, fsys, h, pattern(100, 1))

	free := freeBlocks(t, fsys)

	drv.armed = true

	n, err := fsys.Write(h, pattern(2*simplefs.BlockSize, 2))
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, 0, n)

	drv.armed = false

	size, err := fsys.Size(h)
	require.NoError(t, err)
	assert.Equal(t, 100, size)
	assert.Equal(t, free, freeBlocks(t, fsys))
	assert.Equal(t, pattern(100, 1), readAll(t, fsys, h))
}

func Test_Mount_Recovers_Old_Or_New_State_When_Unmount_Torn(t *testing.T) {
	t.Parallel()

	// Unmount writes blocks 1..12 and then the layout block. Until the
	// checksum block lands, parity rebuilds the old metadata; after it, the
	// stale parity is rebuilt instead.
	const firstNewStateWrite = blockChecksum

	for k := 0; k <= 13; k++ {
		t.Run(fmt.Sprintf("fail after %d writes", k), func(t *testing.T) {
			t.Parallel()

			fsys, drv := newFlakyFS(t)

			h := createOpen(t, fsys, "old")
			mustWrite(t, fsys, h, pattern(100, 1))
			remount(t, fsys)

			h = createOpen(t, fsys, "new")
			mustWrite(t, fsys, h, pattern(5000, 2))

			drv.counted = func(block int) bool { return block < blockDataStart }
			drv.failAfter = k
			drv.armed = true

			err := fsys.Unmount(testDevice)
			drv.armed = false

			if k < 13 {
				require.ErrorIs(t, err, errInjected)
			} else {
				require.NoError(t, err)
			}

			require.NoError(t, fsys.Mount(testDevice), "torn metadata must stay mountable")

			_, err = fsys.Stat("new")
			gotNew := err == nil

			if got, want := gotNew, k >= firstNewStateWrite; got != want {
				t.Fatalf("new state=%v, want=%v", got, want)
			}

			h, err = fsys.Open("old")
			require.NoError(t, err)
			assert.Equal(t, pattern(100, 1), readAll(t, fsys, h))

			wantFree := simplefs.DataBlocks - 1
			if gotNew {
				wantFree -= 2
			}

			assert.Equal(t, wantFree, freeBlocks(t, fsys))
		})
	}
}

func Test_Unmount_Reports_Error_And_Unmounts_When_Metadata_Write_Fails(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{WriteFailRate: 1.0})
	chaos.SetMode(fs.ChaosModeNoOp)

	path := filepath.Join(t.TempDir(), "disk.img")

	fsys, err := simplefs.New(simplefs.Options{Driver: disk.NewFileDriver(chaos)})
	require.NoError(t, err)
	require.NoError(t, fsys.Format(path))
	require.NoError(t, fsys.Mount(path))
	require.NoError(t, fsys.Create("lost"))

	chaos.SetMode(fs.ChaosModeActive)

	err = fsys.Unmount(path)
	require.Error(t, err)
	assert.True(t, fs.IsInjected(err), "err=%v", err)

	_, mounted := fsys.Mounted()
	assert.False(t, mounted, "failed unmount still unmounts")

	chaos.SetMode(fs.ChaosModeNoOp)

	// The lock was released and the old metadata is intact.
	require.NoError(t, fsys.Mount(path))

	_, err = fsys.Stat("lost")
	require.ErrorIs(t, err, simplefs.ErrNotFound)
	require.NoError(t, fsys.Unmount(path))
}

func Test_FS_Round_Trips_Files_When_Host_Reads_Are_Short(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 3, fs.ChaosConfig{PartialReadRate: 0.5})
	path := filepath.Join(t.TempDir(), "disk.img")

	fsys, err := simplefs.New(simplefs.Options{Driver: disk.NewFileDriver(chaos)})
	require.NoError(t, err)
	require.NoError(t, fsys.Format(path))
	require.NoError(t, fsys.Mount(path))

	h := createOpen(t, fsys, "f")
	data := pattern(5*simplefs.BlockSize+3, 8)
	mustWrite(t, fsys, h, data)

	require.NoError(t, fsys.Unmount(path))
	require.NoError(t, fsys.Mount(path))

	h, err = fsys.Open("f")
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, fsys, h))
	assert.Positive(t, chaos.Stats().PartialReads)

	require.NoError(t, fsys.Unmount(path))
}

func Test_Mount_Returns_ErrBusy_When_Image_Locked_By_Another_Mount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "disk.img")
	host := &fs.Real{LockTimeout: 20 * time.Millisecond}

	first, err := simplefs.New(simplefs.Options{Driver: disk.NewFileDriver(host)})
	require.NoError(t, err)
	require.NoError(t, first.Format(path))
	require.NoError(t, first.Mount(path))

	second, err := simplefs.New(simplefs.Options{Driver: disk.NewFileDriver(host)})
	require.NoError(t, err)
	require.ErrorIs(t, second.Mount(path), simplefs.ErrBusy)

	require.NoError(t, first.Unmount(path))
	require.NoError(t, second.Mount(path))
	require.NoError(t, second.Unmount(path))
}
