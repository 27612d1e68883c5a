//go:build unix

package security

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockFile acquires an exclusive lock on a file using flock without
// blocking.
func tryLockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// unlockFile releases the lock on a file.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
