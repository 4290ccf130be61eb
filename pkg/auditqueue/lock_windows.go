//go:build windows

package auditqueue

import (
	"os"
)

// pidAlive probes liveness by attempting to find the process; Windows
// has no zero-signal kill so this is a best-effort check.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	return err == nil && proc != nil
}
