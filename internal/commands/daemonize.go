package commands

import (
	"os"
	"os/exec"
	"syscall"
)

// reexecDetached re-invokes the current executable with args, detached
// from this process's session and with stdout/stderr redirected to
// logPath, and returns the child's pid. Used by `search-service start
// --daemon` and `proxy start --daemon` — a command's own process must
// exit once the real daemon is running in the background.
func reexecDetached(args []string, logPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}
