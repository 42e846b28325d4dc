package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// CatCmd returns the cat command.
func CatCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("cat", flag.ContinueOnError)
	flags.Int("offset", 0, "Start reading at byte `n`")
	flags.Int("count", -1, "Read at most `n` bytes (-1 reads to the end)")

	return &Command{
		Flags:    flags,
		Usage:    "cat <name> [flags]",
		Short:    "Print a file",
		Group:    groupFiles,
		MinArgs:  1,
		MaxArgs:  1,
		Mounts:   true,
		Examples: []string{
			"sfs cat notes",
			"sfs cat notes --offset 4096 --count 16",
		},
		Exec: func(_ context.Context, o *IO, args []string) error {
			offset, _ := flags.GetInt("offset")
			count, _ := flags.GetInt("count")

			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				return execCat(o, fsys, args[0], offset, count)
			})
		},
	}
}

func execCat(o *IO, fsys *simplefs.FS, name string, offset, count int) error {
	h, err := fsys.Open(name)
	if err != nil {
		return err
	}

	f := fsys.File(h)
	defer func() { _ = f.Close() }()

	if err := fsys.Seek(h, offset); err != nil {
		return err
	}

	var src io.Reader = f
	if count >= 0 {
		src = io.LimitReader(f, int64(count))
	}

	if _, err := io.Copy(o, src); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
