package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/disk"
	"github.com/calvinalkan/simplefs/pkg/fs"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// newFS builds an unmounted file system over the configured driver.
func newFS(cfg *config.Config, logger *slog.Logger) (*simplefs.FS, error) {
	var drv disk.Driver

	switch cfg.Driver {
	case config.DriverMem:
		drv = disk.NewMemDriver()
	default:
		drv = disk.NewFileDriver(fs.NewReal())
	}

	return simplefs.New(simplefs.Options{Driver: drv, Logger: logger})
}

// withMount mounts the configured device, runs fn and unmounts. An unmount
// failure is reported even when fn succeeded.
func withMount(cfg *config.Config, logger *slog.Logger, fn func(fsys *simplefs.FS) error) (err error) {
	fsys, err := newFS(cfg, logger)
	if err != nil {
		return err
	}

	if err := fsys.Mount(cfg.DeviceAbs); err != nil {
		return mountErr(cfg, err)
	}

	defer func() {
		err = errors.Join(err, fsys.Unmount(cfg.DeviceAbs))
	}()

	return fn(fsys)
}

// mountErr adds a hint for the common first-run mistakes.
func mountErr(cfg *config.Config, err error) error {
	switch {
	case errors.Is(err, simplefs.ErrNotFound):
		return fmt.Errorf("%w (run 'sfs format' to create %s)", err, cfg.Device)
	case errors.Is(err, simplefs.ErrBusy):
		return fmt.Errorf("%w (another sfs process has %s mounted)", err, cfg.Device)
	default:
		return err
	}
}

// openOrCreate returns a handle onto name, creating the file first if it
// does not exist.
func openOrCreate(fsys *simplefs.FS, name string) (simplefs.Handle, error) {
	h, err := fsys.Open(name)
	if !errors.Is(err, simplefs.ErrNotFound) {
		return h, err
	}

	if err := fsys.Create(name); err != nil {
		return 0, err
	}

	return fsys.Open(name)
}
