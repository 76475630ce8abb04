//go:build windows

package process

import "syscall"

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// killProcess terminates a Windows process by PID. Windows has no process
// groups in the Unix sense, so a negative pid is treated as its absolute
// value, and every signal other than 0 means terminate.
func killProcess(pid int, signal syscall.Signal) error {
	if pid == 0 {
		return nil
	}
	actualPid := pid
	if pid < 0 {
		actualPid = -pid
	}

	if signal == 0 {
		return checkProcessExists(actualPid)
	}

	handle, err := openProcess(processTerminate, uint32(actualPid))
	if err != nil {
		// Process already gone; treat as terminated.
		return nil
	}
	defer func() { _ = closeHandle(handle) }()

	ret, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return callErr
	}
	return nil
}

func checkProcessExists(pid int) error {
	handle, err := openProcess(processQueryInformation, uint32(pid))
	if err != nil {
		return err
	}
	defer func() { _ = closeHandle(handle) }()
	return nil
}

func openProcess(access uint32, processID uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(
		uintptr(access),
		uintptr(0),
		uintptr(processID),
	)
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) error {
	ret, _, err := procCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return err
	}
	return nil
}

// processExists reports whether a process with the given pid is alive.
func processExists(pid int) bool {
	return checkProcessExists(pid) == nil
}
