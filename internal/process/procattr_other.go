//go:build !unix

package process

import (
	"os"
	"os/exec"
)

var (
	gracefulSignal = os.Interrupt
	killSignal     = os.Kill
)

func setProcAttr(*exec.Cmd) {}

func signalGroup(p *os.Process, sig os.Signal) error {
	if sig == os.Kill {
		return p.Kill()
	}
	if err := p.Signal(sig); err != nil {
		// Interrupt is not deliverable on every platform.
		return p.Kill()
	}
	return nil
}

func killGroup(int) {}

func exitCodeFromState(state *os.ProcessState, err error) int {
	if state != nil {
		return state.ExitCode()
	}
	return exitCodeFromError(err)
}
