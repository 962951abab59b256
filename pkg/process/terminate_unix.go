//go:build !windows

package process

import (
	"golang.org/x/sys/unix"
)

// sendTerminationSignal sends SIGTERM to the process group of pid
func sendTerminationSignal(pid int) error {
	return signalGroup(pid, unix.SIGTERM)
}

// sendKillSignal sends SIGKILL to the process group of pid
func sendKillSignal(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if err == unix.ESRCH {
		// group already gone; the leader may still be a zombie
		return nil
	}
	return err
}

// groupHasMembers probes the process group led by pid with signal 0
func groupHasMembers(pid int) bool {
	err := unix.Kill(-pid, 0)
	return err == nil || err == unix.EPERM
}
