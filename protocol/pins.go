package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// PinKind classifies a pin identifier by its on-board function.
type PinKind int

const (
	// PinUnknown marks an identifier that doesn't parse as a pin at all.
	PinUnknown PinKind = iota
	// PinDigital is a D<n> digital I/O pin.
	PinDigital
	// PinAnalogInput is an A<n> analog input pin.
	PinAnalogInput
	// PinAnalogOutput is a DAC<n> analog output pin.
	PinAnalogOutput
)

// ParsePin classifies a textual pin identifier (D<n>, A<n>, DAC<n>) and
// returns its kind and numeric index. It does not validate that the index
// is in range for the board — that is a device-side concern surfaced as
// INVALID_PIN.
func ParsePin(id string) (PinKind, int, error) {
	switch {
	case strings.HasPrefix(id, "DAC"):
		n, err := strconv.Atoi(id[3:])
		if err != nil {
			return PinUnknown, 0, fmt.Errorf("protocol: malformed pin id %q", id)
		}
		return PinAnalogOutput, n, nil
	case strings.HasPrefix(id, "D"):
		n, err := strconv.Atoi(id[1:])
		if err != nil {
			return PinUnknown, 0, fmt.Errorf("protocol: malformed pin id %q", id)
		}
		return PinDigital, n, nil
	case strings.HasPrefix(id, "A"):
		n, err := strconv.Atoi(id[1:])
		if err != nil {
			return PinUnknown, 0, fmt.Errorf("protocol: malformed pin id %q", id)
		}
		return PinAnalogInput, n, nil
	default:
		return PinUnknown, 0, fmt.Errorf("protocol: malformed pin id %q", id)
	}
}

// Level is a digital signal level.
type Level string

const (
	High Level = "HIGH"
	Low  Level = "LOW"
)

// PinMode is the device-side pin direction.
type PinMode string

const (
	Input  PinMode = "INPUT"
	Output PinMode = "OUTPUT"
)
