//go:build !windows

package process

import "syscall"

// killProcess sends a signal to a Unix process. Negative pid targets the
// process group.
func killProcess(pid int, signal syscall.Signal) error {
	return syscall.Kill(pid, signal)
}

// processExists checks if a process exists (kill with signal 0).
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
