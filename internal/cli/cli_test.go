package cli_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/calvinalkan/simplefs/internal/cli"
	"github.com/calvinalkan/simplefs/pkg/disk"
)

func Test_Bare_Command_Prints_Usage_When_Invoked(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := cli.Run(nil, &stdout, &stderr, []string{"sfs", "--cwd", t.TempDir()}, nil, nil)

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr.String(), ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout.String(), "sfs - single-volume block file system")
	cli.AssertContains(t, stdout.String(), "--cwd")
	cli.AssertContains(t, stdout.String(), "cat <name> [flags]")
	cli.AssertContains(t, stdout.String(), "shell")
}

func Test_Bare_Command_Groups_Commands_When_Listing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	volume := strings.Index(stdout, "Volume commands:")
	files := strings.Index(stdout, "Files commands:")
	session := strings.Index(stdout, "Session commands:")

	if volume < 0 || files < 0 || session < 0 {
		t.Fatalf("missing command group in usage:\n%s", stdout)
	}

	if !(volume < files && files < session) {
		t.Fatalf("groups out of order: volume=%d files=%d session=%d", volume, files, session)
	}

	if format := strings.Index(stdout, "format [--force]"); format < volume || format > files {
		t.Fatalf("format listed outside the volume group:\n%s", stdout)
	}

	if shell := strings.Index(stdout, "  shell"); shell < session {
		t.Fatalf("shell listed outside the session group:\n%s", stdout)
	}
}

func Test_Commands_Reject_Argument_Count_When_Out_Of_Bounds(t *testing.T) {
	t.Parallel()

	c := cli.NewFormattedCLI(t)

	cases := [][]string{
		{"ls", "extra"},
		{"stat", "a", "b"},
		{"touch"},
		{"truncate", "f"},
		{"cat", "a", "b"},
		{"format", "now"},
	}

	for _, args := range cases {
		stderr := c.MustFail(args...)
		cli.AssertContains(t, stderr, "wrong number of arguments")
		cli.AssertContains(t, stderr, "usage: sfs "+args[0])
	}

	// Optional argument stays optional.
	cli.AssertContains(t, c.MustRun("stat"), "files=0/64")
}

func Test_Invalid_Global_Flag_Shows_Global_Flags_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "ls")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--device")
	cli.AssertContains(t, stderr, "--config")
}

func Test_Unknown_Command_Fails_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("mkfs")

	cli.AssertContains(t, stderr, "unknown command: mkfs")
}

func Test_Command_Help_Shows_Flags_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("cat", "--help")

	cli.AssertContains(t, stdout, "Usage: sfs cat <name> [flags]")
	cli.AssertContains(t, stdout, "--offset")
	cli.AssertContains(t, stdout, "--count")
	cli.AssertContains(t, stdout, "--device")
	cli.AssertContains(t, stdout, "Examples:")
	cli.AssertContains(t, stdout, "sfs cat notes --offset 4096 --count 16")

	printConfig := c.MustRun("print-config", "--help")
	cli.AssertNotContains(t, printConfig, "Examples:")
	cli.AssertNotContains(t, printConfig, "--device")
}

func Test_Format_Creates_Image_When_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("format")

	cli.AssertContains(t, stdout, "formatted disk.img")

	if got, want := c.ImageSize("disk.img"), int64(disk.ImageSize); got != want {
		t.Fatalf("image size=%d, want=%d", got, want)
	}

	if got := c.MustRun("ls"); got != "0 files, 8179 free blocks" {
		t.Fatalf("ls=%q, want empty volume", got)
	}
}

func Test_Format_Refuses_Existing_Image_When_Not_Forced(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")
	c.MustRun("touch", "keep")

	stderr := c.MustFail("format")
	cli.AssertContains(t, stderr, "already exists")
	cli.AssertContains(t, c.MustRun("ls"), "keep")

	c.MustRun("format", "--force")
	cli.AssertNotContains(t, c.MustRun("ls"), "keep")
}

func Test_Commands_Hint_At_Format_When_Image_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("ls")

	cli.AssertContains(t, stderr, "not found")
	cli.AssertContains(t, stderr, "sfs format")
}

func Test_Write_And_Cat_Round_Trip_When_Using_Stdin(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")

	stdout, stderr, code := c.RunWithInput("hello", "write", "greeting")
	if code != 0 {
		t.Fatalf("write failed: %s", stderr)
	}

	cli.AssertContains(t, stdout, "wrote 5 bytes to greeting")

	_, stderr, code = c.RunWithInput(" world", "write", "--append", "greeting")
	if code != 0 {
		t.Fatalf("append failed: %s", stderr)
	}

	if got, want := c.MustRun("cat", "greeting"), "hello world"; got != want {
		t.Fatalf("cat=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("cat", "greeting", "--offset", "6", "--count", "3"), "wor"; got != want {
		t.Fatalf("cat range=%q, want=%q", got, want)
	}

	// Without --append the contents are replaced.
	c.Put("greeting", "bye")

	if got, want := c.Cat("greeting"), "bye"; got != want {
		t.Fatalf("cat=%q, want=%q", got, want)
	}
}

func Test_Write_Copies_Host_File_When_From_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewFormattedCLI(t)

	content := strings.Repeat("0123456789", 1000)
	c.WriteHostFile("src.txt", content)

	c.MustRun("write", "copy", "--from", "src.txt")

	if got := c.Cat("copy"); got != content {
		t.Fatalf("cat returned %d bytes, want %d", len(got), len(content))
	}

	cli.AssertContains(t, c.MustRun("stat", "copy"), "blocks=3")
}

func Test_Cat_Fails_When_Offset_Beyond_Size(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")
	c.MustRun("touch", "f")

	stderr := c.MustFail("cat", "f", "--offset", "1")
	cli.AssertContains(t, stderr, "out of range")
}

func Test_Truncate_Shortens_File_When_Length_Valid(t *testing.T) {
	t.Parallel()

	c := cli.NewFormattedCLI(t)
	c.Put("f", "hello world")

	cli.AssertContains(t, c.MustRun("truncate", "f", "5"), "truncated f to 5 bytes")

	if got, want := c.Cat("f"), "hello"; got != want {
		t.Fatalf("cat=%q, want=%q", got, want)
	}

	cli.AssertContains(t, c.MustFail("truncate", "f", "6"), "out of range")
	cli.AssertContains(t, c.MustFail("truncate", "f", "x"), "invalid length")
}

func Test_Touch_And_Rm_Manage_Names_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")

	cli.AssertContains(t, c.MustRun("touch", "a"), "created a")
	cli.AssertContains(t, c.MustFail("touch", "a"), "already exists")
	cli.AssertContains(t, c.MustFail("touch", "sixteen-bytes-xx"), "invalid argument")

	cli.AssertContains(t, c.MustRun("ls"), "1 files")
	cli.AssertContains(t, c.MustRun("rm", "a"), "removed a")
	cli.AssertContains(t, c.MustFail("rm", "a"), "not found")
	cli.AssertContains(t, c.MustFail("rm"), "wrong number of arguments")
}

func Test_Stat_Shows_Volume_Layout_When_No_Name(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")

	first := c.MustRun("stat")
	cli.AssertContains(t, first, "data_blocks=8179")
	cli.AssertContains(t, first, "block_size=4096")
	cli.AssertContains(t, first, "files=0/64")
	cli.AssertContains(t, first, "mount_count=0")

	cli.AssertContains(t, c.MustRun("stat"), "mount_count=1")
}

func Test_Device_Flag_Selects_Image_When_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("-d", "other.img", "format")

	if _, err := os.Stat(c.Path("other.img")); err != nil {
		t.Fatalf("other.img not created: %v", err)
	}

	if _, err := os.Stat(c.Path("disk.img")); !os.IsNotExist(err) {
		t.Fatalf("disk.img should not exist, err=%v", err)
	}

	c.MustRun("--device=other.img", "touch", "x")
	cli.AssertContains(t, c.MustRun("-d", "other.img", "ls"), "x")
}

func Test_Project_Config_Selects_Device_When_Present(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteHostFile(".sfs.json", `{
		// image used by this directory
		"device": "vol.img",
	}`)

	c.MustRun("format")

	if _, err := os.Stat(c.Path("vol.img")); err != nil {
		t.Fatalf("vol.img not created: %v", err)
	}

	out := c.MustRun("print-config")
	cli.AssertContains(t, out, "device="+c.Path("vol.img"))
	cli.AssertContains(t, out, "project_config="+c.Path(".sfs.json"))
}

func Test_Invalid_Config_Fails_When_Loaded(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteHostFile(".sfs.json", `{"log_level": "chatty"}`)

	stderr := c.MustFail("ls")
	cli.AssertContains(t, stderr, "invalid config file")
}

func Test_Print_Config_Shows_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	out := c.MustRun("print-config")

	cli.AssertContains(t, out, "device="+c.Path("disk.img"))
	cli.AssertContains(t, out, "driver=file")
	cli.AssertContains(t, out, "log_level=warn")
	cli.AssertContains(t, out, "(defaults only)")
}
