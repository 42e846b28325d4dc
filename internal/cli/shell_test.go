package cli_test

import (
	"testing"

	"github.com/calvinalkan/simplefs/internal/cli"
)

func Test_Shell_Keeps_Handles_Open_When_Commands_Run(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")

	script := `create notes
open notes
write 0 hello   there
seek 0 6
read 0 100
tell 0
rm notes
handles
close 0
rm notes
ls
exit
`

	stdout, stderr, code := c.RunWithInput(script, "shell")
	if code != 0 {
		t.Fatalf("shell exit=%d\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stdout, "handle 0")
	cli.AssertContains(t, stdout, "wrote 13")
	cli.AssertContains(t, stdout, `"  there"`)
	cli.AssertContains(t, stdout, "notes           1 open")
	cli.AssertContains(t, stdout, "0 files, 8179 free blocks")
	cli.AssertContains(t, stderr, "busy")

	cli.AssertContains(t, c.MustRun("ls"), "0 files")
}

func Test_Shell_Reports_Errors_And_Continues_When_Command_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("format")

	stdout, stderr, code := c.RunWithInput("close 7\nfrobnicate\nread 0\ncreate kept\n", "shell")
	if code != 0 {
		t.Fatalf("shell exit=%d\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stderr, "not found")
	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "usage: read <handle> <n>")
	cli.AssertNotContains(t, stdout, "error")

	// End of input unmounts and persists.
	cli.AssertContains(t, c.MustRun("ls"), "kept")
}

func Test_Shell_Formats_In_Memory_Device_When_Mem_Driver(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteHostFile(".sfs.json", `{"driver": "mem"}`)

	stdout, stderr, code := c.RunWithInput("create scratch\nls\ndf\n", "shell")
	if code != 0 {
		t.Fatalf("shell exit=%d\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stdout, "scratch")
	cli.AssertContains(t, stdout, "8179 free blocks (33501184 bytes)")
}

func Test_Shell_Fails_When_Image_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	_, stderr, code := c.RunWithInput("ls\n", "shell")
	if code == 0 {
		t.Fatal("shell should fail without an image")
	}

	cli.AssertContains(t, stderr, "sfs format")
}
