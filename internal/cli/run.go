// Package cli implements the sfs command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal cancels the command's context; the shell stops
// at its next prompt and unmounts.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("sfs", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	device := globals.StringP("device", "d", "", "Device image `path` (overrides config)")
	help := globals.BoolP("help", "h", false, "Show help")

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	if err := globals.Parse(rest); err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals, nil)

		return 1
	}

	if globals.Changed("device") && strings.TrimSpace(*device) == "" {
		fprintln(errOut, "error:", config.ErrDeviceEmpty)
		printUsage(errOut, globals, nil)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		DeviceOverride:  *device,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level()}))
	commands := allCommands(&cfg, logger, env)

	cmdArgs := globals.Args()
	if *help || len(cmdArgs) == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == cmdArgs[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", cmdArgs[0])
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), cmdArgs[1:])
}

func allCommands(cfg *config.Config, logger *slog.Logger, env map[string]string) []*Command {
	return []*Command{
		FormatCmd(cfg, logger),
		LsCmd(cfg, logger),
		StatCmd(cfg, logger),
		TouchCmd(cfg, logger),
		RmCmd(cfg, logger),
		WriteCmd(cfg, logger),
		CatCmd(cfg, logger),
		TruncateCmd(cfg, logger),
		ShellCmd(cfg, logger, env),
		PrintConfigCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `sfs - single-volume block file system

Usage: sfs [global flags] <command> [args]`)
	fprintln(w)
	fprintln(w, "Global flags:")

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	_, _ = io.WriteString(w, buf.String())

	if len(commands) == 0 {
		return
	}

	groups := commandsByGroup(commands)

	for _, g := range commandGroups {
		if len(groups[g]) == 0 {
			continue
		}

		fprintln(w)
		fprintln(w, g+" commands:")

		for _, c := range groups[g] {
			fprintln(w, c.HelpLine())
		}
	}
}
