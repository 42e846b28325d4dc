package cli

import (
	"context"
	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// LsCmd returns the ls command.
func LsCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	flags.BoolP("long", "l", false, "Show blocks and directory slot")

	return &Command{
		Flags:  flags,
		Usage:  "ls [--long]",
		Short:  "List files",
		Group:  groupFiles,
		Mounts: true,
		Long:    "List files in directory slot order, followed by the number of free blocks.",
		Exec:   func(_ context.Context, io *IO, args []string) error {
			long, _ := flags.GetBool("long")

			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				return execLs(io, fsys, long)
			})
		},
	}
}

func execLs(io *IO, fsys *simplefs.FS, long bool) error {
	infos, err := fsys.List()
	if err != nil {
		return err
	}

	for _, info := range infos {
		if long {
			io.Printf("%-15s %10d %5d blocks  slot %d\n", info.Name, info.Size, info.Blocks, info.Slot)
		} else {
			io.Printf("%-15s %10d\n", info.Name, info.Size)
		}
	}

	free, err := fsys.FreeBlocks()
	if err != nil {
		return err
	}

	io.Printf("%d files, %d free blocks\n", len(infos), free)

	return nil
}
