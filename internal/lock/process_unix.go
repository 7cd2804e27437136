//go:build !windows

package lock

import (
	"errors"
	"syscall"
)

// holderAlive reports whether the merge that wrote the lock is still running.
// Signal 0 only probes; EPERM means the pid belongs to another user but exists.
func holderAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
