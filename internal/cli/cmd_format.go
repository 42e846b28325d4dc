package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/fs"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

var errDeviceExists = errors.New("device image already exists (use --force to overwrite)")

// FormatCmd returns the format command.
func FormatCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("format", flag.ContinueOnError)
	flags.BoolP("force", "f", false, "Overwrite an existing image")

	return &Command{
		Flags:    flags,
		Usage:    "format [--force]",
		Short:    "Create an empty file system image",
		Group:    groupVolume,
		Mounts:   true,
		Examples: []string{
			"sfs format",
			"sfs -d backup.img format --force",
		},
		Long: `Create the device image and write an empty file system to it.

Refuses to replace an existing image unless --force is given.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			force, _ := flags.GetBool("force")

			return execFormat(io, cfg, logger, force)
		},
	}
}

func execFormat(io *IO, cfg *config.Config, logger *slog.Logger, force bool) error {
	if cfg.Driver == config.DriverFile && !force {
		exists, err := fs.NewReal().Exists(cfg.DeviceAbs)
		if err != nil {
			return err
		}

		if exists {
			return fmt.Errorf("%s: %w", cfg.Device, errDeviceExists)
		}
	}

	fsys, err := newFS(cfg, logger)
	if err != nil {
		return err
	}

	if err := fsys.Format(cfg.DeviceAbs); err != nil {
		return mountErr(cfg, err)
	}

	io.Printf("formatted %s: %d data blocks of %d bytes, %d file slots\n",
		cfg.Device, simplefs.DataBlocks, simplefs.BlockSize, simplefs.MaxFiles)

	return nil
}
