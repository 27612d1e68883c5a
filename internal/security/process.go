package security

import (
	"os"
)

// IsRoot reports whether the process runs with an effective uid of 0.
// Reading /dev/input usually needs the input group, never root.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// DisableCoreDumps disables core dumps for the current process so the
// master key cannot be written to disk on a crash.
func DisableCoreDumps() error {
	return applyCoreLimits(0)
}

// CoreDumpsEnabled reports whether the process may currently dump core.
func CoreDumpsEnabled() bool {
	return areCoreEnabled()
}
