package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

// WriteCmd returns the write command.
func WriteCmd(cfg *config.Config, logger *slog.Logger) *Command {
	flags := flag.NewFlagSet("write", flag.ContinueOnError)
	flags.String("from", "", "Read from host `file` instead of stdin")
	flags.BoolP("append", "a", false, "Append instead of replacing the contents")

	return &Command{
		Flags:    flags,
		Usage:    "write <name> [flags]",
		Short:    "Copy stdin or a host file into a file",
		Group:    groupFiles,
		MinArgs:  1,
		MaxArgs:  1,
		Mounts:   true,
		Examples: []string{
			"echo hello | sfs write greeting",
			"sfs write log --append --from today.log",
		},
		Long: `Copy stdin (or --from) into a file, creating it if missing.

The existing contents are replaced unless --append is given. When the device
fills up, the bytes that fit are kept and a warning is printed.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			from, _ := flags.GetString("from")
			appendMode, _ := flags.GetBool("append")

			src := o.In()

			if from != "" {
				if !filepath.IsAbs(from) {
					from = filepath.Join(cfg.EffectiveCwd, from)
				}

				f, err := os.Open(from)
				if err != nil {
					return err
				}

				defer func() { _ = f.Close() }()

				src = f
			}

			return withMount(cfg, logger, func(fsys *simplefs.FS) error {
				return execWrite(o, fsys, args[0], src, appendMode)
			})
		},
	}
}

func execWrite(o *IO, fsys *simplefs.FS, name string, src io.Reader, appendMode bool) error {
	h, err := openOrCreate(fsys, name)
	if err != nil {
		return err
	}

	defer func() { _ = fsys.Close(h) }()

	if appendMode {
		size, err := fsys.Size(h)
		if err != nil {
			return err
		}

		if err := fsys.Seek(h, size); err != nil {
			return err
		}
	} else if err := fsys.Truncate(h, 0); err != nil {
		return err
	}

	n, err := io.Copy(fsys.File(h), src)
	if errors.Is(err, simplefs.ErrResourceExhausted) {
		o.Warn(fmt.Sprintf("device full, %s holds only the first %d bytes written", name, n),
			"free space with 'sfs rm' or 'sfs truncate' and retry")
	} else if err != nil {
		return err
	}

	o.Printf("wrote %d bytes to %s\n", n, name)

	return nil
}
