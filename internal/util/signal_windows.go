//go:build windows

package util

import (
	"os"
	"os/exec"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal terminates the process.
// Windows cannot deliver SIGINT to a child, so this kills it outright.
func GracefulSignal(p *os.Process) error {
	return p.Kill()
}

// DetachProcessGroup is a no-op: console interrupts are not forwarded to children here.
func DetachProcessGroup(*exec.Cmd) {}
