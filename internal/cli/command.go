package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command groups, in the order they are listed in the main usage.
const (
	groupVolume  = "Volume"
	groupFiles   = "Files"
	groupSession = "Session"
)

var commandGroups = []string{groupVolume, groupFiles, groupSession}

var errArgCount = errors.New("wrong number of arguments")

// Command is one sfs subcommand.
//
// Run parses Flags, checks the positional count against MinArgs/MaxArgs and
// only then calls Exec, so Exec can index args directly.
type Command struct {
	Flags *flag.FlagSet

	// Usage follows "sfs" in help; its first word is the command name.
	Usage string
	Short string
	Long  string

	// Group selects the section in the main usage listing.
	Group string

	// MinArgs and MaxArgs bound the positional arguments. MaxArgs < 0 means
	// unbounded.
	MinArgs int
	MaxArgs int

	// Examples are shell lines shown under "Examples:" in command help.
	Examples []string

	// Mounts marks commands that open the device image. Their help mentions
	// the device selection flags.
	Mounts bool

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-30s %s", c.Usage, c.Short)
}

func (c *Command) checkArgs(args []string) error {
	if len(args) < c.MinArgs || (c.MaxArgs >= 0 && len(args) > c.MaxArgs) {
		return fmt.Errorf("%w: usage: sfs %s", errArgCount, c.Usage)
	}

	return nil
}

// PrintHelp prints the output of "sfs <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: sfs", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}

	if c.Mounts {
		o.Println()
		o.Println("The image is taken from --device, then the config file, then disk.img.")
	}

	if len(c.Examples) > 0 {
		o.Println()
		o.Println("Examples:")

		for _, ex := range c.Examples {
			o.Println("  " + ex)
		}
	}
}

// Run parses flags and executes the command. Returns exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o)

		return 0
	}

	if err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	rest := c.Flags.Args()

	err = c.checkArgs(rest)
	if err == nil {
		err = c.Exec(ctx, o, rest)
	}

	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

// commandsByGroup returns commands bucketed by Group, keeping their order.
// Commands with an unknown group land in the last section.
func commandsByGroup(commands []*Command) map[string][]*Command {
	out := make(map[string][]*Command, len(commandGroups))
	last := commandGroups[len(commandGroups)-1]

	for _, c := range commands {
		g := c.Group
		if !knownGroup(g) {
			g = last
		}

		out[g] = append(out[g], c)
	}

	return out
}

func knownGroup(g string) bool {
	for _, known := range commandGroups {
		if g == known {
			return true
		}
	}

	return false
}
