package cli

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// StatCmd returns the stat command.
func StatCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("stat", flag.ContinueOnError),
		Usage:   "stat [name]",
		Short:   "Show volume or file details",
		Group:   groupVolume,
		MaxArgs: 1,
		Mounts:  true,
		Long:    `Without a name, show the volume layout: geometry, volume ID, creation
time, mount count and free blocks. With a name, show that file's size,
block count and directory slot.`,
		Exec: func(_ context.Context, io *IO, args []string) error {
			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				if len(args) == 1 {
					return execStatFile(io, fsys, args[0])
				}

				return execStatVolume(io, fsys)
			})
		},
	}
}

func execStatVolume(io *IO, fsys *simplefs.FS) error {
	layout, err := fsys.Layout()
	if err != nil {
		return err
	}

	free, err := fsys.FreeBlocks()
	if err != nil {
		return err
	}

	infos, err := fsys.List()
	if err != nil {
		return err
	}

	io.Println("volume_id=" + layout.VolumeID.String())
	io.Println("version=" + strconv.Itoa(int(layout.Version)))
	io.Println("created_at=" + layout.CreatedAt.UTC().Format(time.RFC3339))
	io.Println("mount_count=" + strconv.FormatUint(layout.MountCount, 10))
	io.Println("block_size=" + strconv.Itoa(layout.BlockSize))
	io.Println("total_blocks=" + strconv.Itoa(layout.TotalBlocks))
	io.Println("data_start=" + strconv.Itoa(layout.DataStart))
	io.Println("data_blocks=" + strconv.Itoa(layout.DataBlocks))
	io.Println("free_blocks=" + strconv.Itoa(free))
	io.Println("files=" + strconv.Itoa(len(infos)) + "/" + strconv.Itoa(layout.MaxFiles))

	return nil
}

func execStatFile(io *IO, fsys *simplefs.FS, name string) error {
	info, err := fsys.Stat(name)
	if err != nil {
		return err
	}

	io.Println("name=" + info.Name)
	io.Println("size=" + strconv.Itoa(info.Size))
	io.Println("blocks=" + strconv.Itoa(info.Blocks))
	io.Println("slot=" + strconv.Itoa(info.Slot))

	return nil
}
