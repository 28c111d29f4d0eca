package transport

import (
	"go.bug.st/serial"
)

// SerialFactory opens real serial ports via go.bug.st/serial.
type SerialFactory struct{}

// Open implements Factory.
func (SerialFactory) Open(path string, opts PortOptions) (Port, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: normalized.BaudRate,
		DataBits: normalized.DataBits,
	}
	switch normalized.Parity {
	case NoParity:
		mode.Parity = serial.NoParity
	case OddParity:
		mode.Parity = serial.OddParity
	case EvenParity:
		mode.Parity = serial.EvenParity
	}
	switch normalized.StopBits {
	case OneStopBit:
		mode.StopBits = serial.OneStopBit
	case TwoStopBits:
		mode.StopBits = serial.TwoStopBits
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
