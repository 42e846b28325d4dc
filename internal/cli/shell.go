package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/simplefs/internal/config"
	"github.com/calvinalkan/simplefs/pkg/simplefs"
)

const shellPrompt = "sfs> "

// ShellCmd returns the shell command.
func ShellCmd(cfg *config.Config, logger *slog.Logger, env map[string]string) *Command {
	return &Command{
		Flags:  flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage:  "shell",
		Short:  "Interactive session on one mount",
		Group:  groupSession,
		Mounts: true,
		Long:   `Mount the device and read commands until exit or end of input.

Handles stay open between commands, so cursors and busy-file rules can be
explored directly. With the mem driver the device is formatted first.
Type 'help' inside the shell for the command list.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			fsys, err := newFS(cfg, logger)
			if err != nil {
				return err
			}

			if cfg.Driver == config.DriverMem {
				if err := fsys.Format(cfg.DeviceAbs); err != nil {
					return err
				}
			}

			if err := fsys.Mount(cfg.DeviceAbs); err != nil {
				return mountErr(cfg, err)
			}

			sh := &shell{fsys: fsys, o: o}
			runErr := sh.run(ctx, newPrompter(o, env))

			return errors.Join(runErr, fsys.Unmount(cfg.DeviceAbs))
		},
	}
}

// prompter reads one line of input.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// newPrompter uses liner on an interactive stdin and a plain line scanner
// otherwise.
func newPrompter(o *IO, env map[string]string) prompter {
	if f, ok := o.In().(*os.File); ok && f == os.Stdin {
		return newLinerPrompter(env)
	}

	return &scanPrompter{sc: bufio.NewScanner(o.In()), o: o}
}

type linerPrompter struct {
	*liner.State

	history string
}

func newLinerPrompter(env map[string]string) *linerPrompter {
	p := &linerPrompter{State: liner.NewLiner()}
	p.SetCtrlCAborts(true)
	p.SetCompleter(completeShell)

	if home := env["HOME"]; home != "" {
		p.history = filepath.Join(home, ".sfs_history")

		if f, err := os.Open(p.history); err == nil {
			_, _ = p.ReadHistory(f)
			_ = f.Close()
		}
	}

	return p
}

func (p *linerPrompter) Close() error {
	if p.history != "" {
		if f, err := os.Create(p.history); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}

	return p.State.Close()
}

type scanPrompter struct {
	sc *bufio.Scanner
	o  *IO
}

func (p *scanPrompter) Prompt(prompt string) (string, error) {
	p.o.Printf("%s", prompt)

	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.sc.Text(), nil
}

func (*scanPrompter) AppendHistory(string) {}

func (*scanPrompter) Close() error { return nil }

var shellCommands = []string{
	"create", "rm", "open", "close", "read", "write", "seek", "tell",
	"size", "truncate", "ls", "df", "handles", "help", "exit", "quit",
}

func completeShell(line string) []string {
	var out []string

	lower := strings.ToLower(line)
	for _, c := range shellCommands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

var errShellUsage = errors.New("usage")

type shell struct {
	fsys *simplefs.FS
	o    *IO
}

func (sh *shell) run(ctx context.Context, p prompter) error {
	defer func() { _ = p.Close() }()

	for ctx.Err() == nil {
		line, err := p.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				sh.o.Println()

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		if cmd == "exit" || cmd == "quit" {
			return nil
		}

		if err := sh.exec(cmd, args, line); err != nil {
			sh.o.ErrPrintln("error:", err)
		}
	}

	return ctx.Err()
}

func (sh *shell) exec(cmd string, args []string, line string) error {
	fsys := sh.fsys

	switch cmd {
	case "help", "?":
		sh.printHelp()

	case "create":
		if len(args) != 1 {
			return fmt.Errorf("%w: create <name>", errShellUsage)
		}

		return fsys.Create(args[0])

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("%w: rm <name>", errShellUsage)
		}

		return fsys.Delete(args[0])

	case "open":
		if len(args) != 1 {
			return fmt.Errorf("%w: open <name>", errShellUsage)
		}

		h, err := fsys.Open(args[0])
		if err != nil {
			return err
		}

		sh.o.Println("handle", int(h))

	case "close":
		h, err := handleArg(args, "close <handle>")
		if err != nil {
			return err
		}

		return fsys.Close(h)

	case "read":
		h, n, err := handleIntArgs(args, "read <handle> <n>")
		if err != nil {
			return err
		}

		buf := make([]byte, max(n, 0))

		got, err := fsys.Read(h, buf)
		if err != nil {
			return err
		}

		sh.o.Printf("%q\n", buf[:got])

	case "write":
		if len(args) < 2 {
			return fmt.Errorf("%w: write <handle> <text>", errShellUsage)
		}

		h, err := handleArg(args[:1], "write <handle> <text>")
		if err != nil {
			return err
		}

		// Keep the text's inner spacing as typed.
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[len("write"):]), args[0]))

		n, err := fsys.Write(h, []byte(text))
		if err != nil {
			return err
		}

		sh.o.Println("wrote", n)

	case "seek":
		h, off, err := handleIntArgs(args, "seek <handle> <offset>")
		if err != nil {
			return err
		}

		return fsys.Seek(h, off)

	case "tell":
		h, err := handleArg(args, "tell <handle>")
		if err != nil {
			return err
		}

		cur, err := fsys.Tell(h)
		if err != nil {
			return err
		}

		sh.o.Println(cur)

	case "size":
		h, err := handleArg(args, "size <handle>")
		if err != nil {
			return err
		}

		size, err := fsys.Size(h)
		if err != nil {
			return err
		}

		sh.o.Println(size)

	case "truncate":
		h, length, err := handleIntArgs(args, "truncate <handle> <length>")
		if err != nil {
			return err
		}

		return fsys.Truncate(h, length)

	case "ls":
		return execLs(sh.o, fsys, true)

	case "df":
		free, err := fsys.FreeBlocks()
		if err != nil {
			return err
		}

		sh.o.Printf("%d free blocks (%d bytes)\n", free, free*simplefs.BlockSize)

	case "handles":
		infos, err := fsys.List()
		if err != nil {
			return err
		}

		for _, info := range infos {
			if info.Handles > 0 {
				sh.o.Printf("%-15s %d open\n", info.Name, info.Handles)
			}
		}

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}

	return nil
}

func handleArg(args []string, usage string) (simplefs.Handle, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s", errShellUsage, usage)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q", args[0])
	}

	return simplefs.Handle(n), nil
}

func handleIntArgs(args []string, usage string) (simplefs.Handle, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%w: %s", errShellUsage, usage)
	}

	h, err := handleArg(args[:1], usage)
	if err != nil {
		return 0, 0, err
	}

	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", args[1])
	}

	return h, n, nil
}

func (sh *shell) printHelp() {
	sh.o.Println("Commands:")
	sh.o.Println("  create <name>              Create an empty file")
	sh.o.Println("  rm <name>                  Delete a file (fails while open)")
	sh.o.Println("  open <name>                Open a file, prints the handle")
	sh.o.Println("  close <handle>             Close a handle")
	sh.o.Println("  read <handle> <n>          Read up to n bytes at the cursor")
	sh.o.Println("  write <handle> <text>      Write text at the cursor")
	sh.o.Println("  seek <handle> <offset>     Move the cursor")
	sh.o.Println("  tell <handle>              Show the cursor")
	sh.o.Println("  size <handle>              Show the file size")
	sh.o.Println("  truncate <handle> <len>    Shorten the file")
	sh.o.Println("  ls                         List files")
	sh.o.Println("  df                         Show free blocks")
	sh.o.Println("  handles                    Show open files")
	sh.o.Println("  exit / quit                Unmount and leave")
}
