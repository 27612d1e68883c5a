//go:build !unix

package security

// applyCoreLimits is a no-op: there are no unix core dumps here.
func applyCoreLimits(size uint64) error {
	return nil
}

// areCoreEnabled reports false on non-unix platforms.
func areCoreEnabled() bool {
	return false
}
