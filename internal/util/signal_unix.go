//go:build !windows

package util

import (
	"os"
	"os/exec"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a process to finish up and exit.
// FFmpeg treats SIGINT like pressing q: it flushes the muxer and writes the trailer.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// DetachProcessGroup starts cmd in its own process group, so a Ctrl-C on the
// terminal reaches only this program and the child is stopped through GracefulSignal.
func DetachProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
