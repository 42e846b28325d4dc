package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// TouchCmd returns the touch command.
func TouchCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("touch", flag.ContinueOnError),
		Usage:   "touch <name>",
		Short:   "Create an empty file",
		Group:   groupFiles,
		MinArgs: 1,
		MaxArgs: 1,
		Mounts:  true,
		Exec:    func(_ context.Context, io *IO, args []string) error {
			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				if err := fsys.Create(args[0]); err != nil {
					return err
				}

				io.Println("created", args[0])

				return nil
			})
		},
	}
}

// RmCmd returns the rm command.
func RmCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage:   "rm <name>",
		Short:   "Delete a file",
		Group:   groupFiles,
		MinArgs: 1,
		MaxArgs: 1,
		Mounts:  true,
		Long:     "Delete a file and free its blocks.",
		Exec:    func(_ context.Context, io *IO, args []string) error {
			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				info, err := fsys.Stat(args[0])
				if err != nil {
					return err
				}

				if err := fsys.Delete(args[0]); err != nil {
					return err
				}

				io.Printf("removed %s (%d blocks freed)\n", args[0], info.Blocks)

				return nil
			})
		},
	}
}

// TruncateCmd returns the truncate command.
func TruncateCmd(cfg *config.Config, logger *slog.Logger) *Command {
	return &Command{
		Flags:    flag.NewFlagSet("truncate", flag.ContinueOnError),
		Usage:    "truncate <name> <length>",
		Short:    "Shorten a file",
		Group:    groupFiles,
		MinArgs:  2,
		MaxArgs:  2,
		Mounts:   true,
		Examples: []string{"sfs truncate notes 0"},
		Long:      "Shorten a file to length bytes. The length may not exceed the current size.",
		Exec:     func(_ context.Context, io *IO, args []string) error {
			length, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid length %q: %w", args[1], err)
			}

			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				h, err := fsys.Open(args[0])
				if err != nil {
					return err
				}

				defer func() { _ = fsys.Close(h) }()

				if err := fsys.Truncate(h, length); err != nil {
					return err
				}

				io.Printf("truncated %s to %d bytes\n", args[0], length)

				return nil
			})
		},
	}
}
