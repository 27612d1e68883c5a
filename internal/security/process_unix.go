//go:build unix

package security

import (
	"golang.org/x/sys/unix"
)

// applyCoreLimits sets the core dump size limit.
func applyCoreLimits(size uint64) error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{
		Cur: size,
		Max: size,
	})
}

// areCoreEnabled checks if core dumps are enabled.
func areCoreEnabled() bool {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_CORE, &rlimit); err != nil {
		return true // Assume enabled if we can't check
	}
	return rlimit.Cur > 0
}
