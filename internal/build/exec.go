package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// An Executor runs external commands. It is replaced in tests to avoid
// needing git and a toolchain on the test machine.
type Executor interface {
	// Run executes cmd in dir and returns its combined output. On
	// failure the error carries the command line and output.
	Run(ctx context.Context, dir string, cmd ...string) (string, error)
}

// OSExecutor runs commands on the local system.
type OSExecutor struct{}

func (*OSExecutor) Run(ctx context.Context, dir string, cmd ...string) (string, error) {
	if len(cmd) == 0 {
		return "", fmt.Errorf("missing command")
	}
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = dir

	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("%s: %s\n%s", strings.Join(cmd, " "), err, out.Bytes())
	}
	return out.String(), nil
}
