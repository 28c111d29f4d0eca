// Package transport abstracts the duplex byte channel the driver speaks
// over — in production a serial UART, in tests an in-memory fake. The
// driver core never imports go.bug.st/serial directly; it only depends
// on this package's Port interface.
package transport

import (
	"fmt"
	"io"
)

// Port is the minimal interface the I/O engine needs from a transport.
// A real serial link, a pipe, or a test double all satisfy it.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Parity mirrors the serial line parity settings the board supports.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits mirrors the serial line stop-bit settings the board supports.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// PortOptions describes the serial connection parameters used to open a
// real port. The zero value is not valid on its own; call Normalize to
// apply the board's documented defaults (19200 8N1).
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits StopBits
	Parity   Parity
}

// DefaultPortOptions returns the board's documented default line settings.
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate: 19200,
		DataBits: 8,
		StopBits: OneStopBit,
		Parity:   NoParity,
	}
}

// Normalize fills in zero-valued fields with DefaultPortOptions and
// validates the rest.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 19200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, &InvalidOptionError{Field: "DataBits", Value: opts.DataBits}
	}
	return opts, nil
}

// InvalidOptionError reports an out-of-range PortOptions field.
type InvalidOptionError struct {
	Field string
	Value int
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("transport: invalid %s value %d", e.Field, e.Value)
}

// Factory opens a Port at a given path with the given options. This
// indirection lets callers substitute a fake factory in tests without
// touching the driver's construction path.
type Factory interface {
	Open(path string, opts PortOptions) (Port, error)
}
