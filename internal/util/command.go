package util

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner runs an external command to completion and returns what it
// wrote to stdout and stderr.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// RunCommand is the default CommandRunner backed by os/exec.
func RunCommand(ctx context.Context, name string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
