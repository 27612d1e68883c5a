//go:build windows

package security

import (
	"os"
	"syscall"
)

const (
	lockfileFailImmediately = 0x1
	lockfileExclusiveLock   = 0x2
)

// tryLockFile acquires an exclusive lock on a file using LockFileEx without
// blocking.
func tryLockFile(f *os.File) error {
	handle := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped

	return syscall.LockFileEx(
		handle,
		lockfileExclusiveLock|lockfileFailImmediately,
		0, // reserved
		1, // lock 1 byte
		0, // high-order 32 bits of byte range
		&overlapped,
	)
}

// unlockFile releases the lock on a file.
func unlockFile(f *os.File) error {
	handle := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped

	return syscall.UnlockFileEx(
		handle,
		0, // reserved
		1, // unlock 1 byte
		0, // high-order 32 bits of byte range
		&overlapped,
	)
}
