//go:build !linux

package sentinel

func platformProbe() (probeFunc, string) {
	return nil, "focus tracking not implemented for this platform"
}
