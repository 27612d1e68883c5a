package keystroke

import (
	"bufio"
	"io"
	"math/big"
	"strings"
)

// Bits of the "B: EV=" bitmask in /proc/bus/input/devices.
const (
	evKeyBit = 1
	evRepBit = 20
)

// parseKeyboardDevices reads the /proc/bus/input/devices format and
// returns the event nodes of devices that look like keyboards: a kbd
// handler plus key and auto-repeat capabilities. Power buttons and most
// mice lack one of these.
func parseKeyboardDevices(r io.Reader) ([]string, error) {
	var devices []string

	var handler string
	var kbd, capable bool
	flush := func() {
		if handler != "" && kbd && capable {
			devices = append(devices, "/dev/input/"+handler)
		}
		handler, kbd, capable = "", false, false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				switch {
				case part == "kbd":
					kbd = true
				case strings.HasPrefix(part, "event"):
					handler = part
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			mask, ok := new(big.Int).SetString(strings.TrimPrefix(line, "B: EV="), 16)
			if ok {
				capable = mask.Bit(evKeyBit) == 1 && mask.Bit(evRepBit) == 1
			}
		}
	}
	flush()

	return devices, scanner.Err()
}
