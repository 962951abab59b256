//go:build windows

package process

import (
	"os"
)

// Windows has no SIGTERM for console children; both paths kill.
func sendTerminationSignal(pid int) error {
	return sendKillSignal(pid)
}

func sendKillSignal(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

// Process groups cannot be probed here; once the leader exited the group is
// treated as gone.
func groupHasMembers(pid int) bool {
	return false
}
