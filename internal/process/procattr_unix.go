//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

var (
	gracefulSignal os.Signal = syscall.SIGTERM
	killSignal     os.Signal = syscall.SIGKILL
)

// setProcAttr puts the child in its own process group so the shell and
// everything it spawns can be signalled together.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals the process group led by p, falling back to p itself.
func signalGroup(p *os.Process, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.Signal(sig)
	}
	err := syscall.Kill(-p.Pid, s)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		if perr := p.Signal(sig); perr != nil {
			return os.ErrProcessDone
		}
		return nil
	}
	return p.Signal(sig)
}

// killGroup kills whatever is left in the group after the leader exited.
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// exitCodeFromState returns the exit status, or 128+signal when the process
// was terminated by a signal.
func exitCodeFromState(state *os.ProcessState, err error) int {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return state.ExitCode()
	}
	return exitCodeFromError(err)
}
