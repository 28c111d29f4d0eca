// Package controllino is the user-facing driver for a Controllino-style
// I/O board reachable over a serial link: digital/analog pins that can be
// read, written, mode-switched, pulsed, and periodically logged. It
// composes the protocol, transport, chandle, registry, and engine
// packages into a single facade.
package controllino

import (
	"fmt"
	"sync/atomic"

	"github.com/Argon343/controllino/chandle"
	"github.com/Argon343/controllino/engine"
	"github.com/Argon343/controllino/protocol"
	"github.com/Argon343/controllino/registry"
	"github.com/Argon343/controllino/transport"
)

// Driver is the session handle for one Controllino board. Create one with
// New, call Open once, and Kill it when done.
type Driver struct {
	eng    *engine.Engine
	opened atomic.Bool
}

// New wraps an already-open transport in a Driver. The transport is
// assumed stable for the session; there is no reconnect logic. An
// optional engine.Config overrides the engine's tuning (max inbound
// line length, shutdown grace period); only the first one given is
// used.
func New(port transport.Port, cfg ...engine.Config) *Driver {
	return &Driver{eng: engine.New(port, cfg...)}
}

// Open performs the handshake command with the device; calling it twice
// returns ErrAlreadyOpen. The other driver methods do not check whether
// Open has been called and submit their commands regardless.
func (d *Driver) Open() (*chandle.Handle[any], error) {
	if !d.opened.CompareAndSwap(false, true) {
		return nil, ErrAlreadyOpen
	}
	h, _, err := d.eng.Submit(cmdOpen, nil, registry.OneShot, "")
	return h, err
}

// Kill shuts the engine down and fails every still-pending handle and
// recording with ErrShutdown. Idempotent.
func (d *Driver) Kill() error {
	return d.eng.Kill()
}

// ProcessErrors drains the asynchronous error channel. If anything was
// enqueued since the last call, it returns the drained errors joined
// together (errors.Is/As still work against any one of them); otherwise
// it returns nil. This is the only place background-reader faults become
// visible to the caller.
func (d *Driver) ProcessErrors() error {
	errs := d.eng.Errors()
	return joinErrors(errs)
}

// Submit is the low-level escape hatch: build any Command and get back
// its completion handle.
func (d *Driver) Submit(cmd Command) (*chandle.Handle[any], error) {
	name, args, err := cmd.Serialize()
	if err != nil {
		return nil, fmt.Errorf("controllino: serialize command: %w", err)
	}
	h, _, err := d.eng.Submit(name, args, registry.OneShot, "")
	return h, err
}

// SetSignal writes a pin's output. value must be a Level ("HIGH"/"LOW",
// or the equivalent string) for digital pins, or an int 0-255 for analog
// (DAC) pins.
func (d *Driver) SetSignal(pin string, value any) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdSetSignal, map[string]any{"pin": pin, "value": value}, registry.OneShot, "")
	return h, err
}

// GetSignal reads a pin's current value: HIGH/LOW for digital pins, an
// integer for analog pins.
func (d *Driver) GetSignal(pin string) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdGetSignal, map[string]any{"pin": pin}, registry.OneShot, "")
	return h, err
}

// SetPinMode sets a pin's direction (INPUT/OUTPUT).
func (d *Driver) SetPinMode(pin string, mode protocol.PinMode) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdSetPinMode, map[string]any{"pin": pin, "mode": string(mode)}, registry.OneShot, "")
	return h, err
}

// GetPinMode reads a pin's current direction.
func (d *Driver) GetPinMode(pin string) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdGetPinMode, map[string]any{"pin": pin}, registry.OneShot, "")
	return h, err
}

// SavePinModes persists the current pin mode configuration on the device.
func (d *Driver) SavePinModes() (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdSavePinModes, nil, registry.OneShot, "")
	return h, err
}

// LoadPinModes restores the device's previously saved pin mode
// configuration.
func (d *Driver) LoadPinModes() (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdLoadPinModes, nil, registry.OneShot, "")
	return h, err
}

// ResetPinModes resets the device's pin mode configuration to factory
// defaults.
func (d *Driver) ResetPinModes() (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdResetPinModes, nil, registry.OneShot, "")
	return h, err
}

// TriggerPulse fires a single pulse on pin. The firmware sleeps during
// the pulse; callers should not expect logging jobs on other pins to
// make progress while a pulse is in flight.
func (d *Driver) TriggerPulse(pin string) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdTriggerPulse, map[string]any{"pin": pin}, registry.OneShot, "")
	return h, err
}

// LogSignal starts a logging subscription on pin, sampling every
// periodMillis milliseconds. It returns the start request's handle (whose
// result, once fulfilled, just confirms the job started) and the
// recording buffer samples accumulate into.
func (d *Driver) LogSignal(pin string, periodMillis int) (*chandle.Handle[any], *chandle.Recording, error) {
	h, rec, err := d.eng.Submit(cmdLogSignal, map[string]any{"pin": pin, "period_ms": periodMillis}, registry.LoggingStart, pin)
	return h, rec, err
}

// EndLogSignal terminates the active logging subscription on pin. The
// matching recording's Finalize is driven by the engine once the device
// acknowledges this command, not by this call directly.
func (d *Driver) EndLogSignal(pin string) (*chandle.Handle[any], error) {
	h, _, err := d.eng.Submit(cmdEndLogSignal, map[string]any{"pin": pin}, registry.LoggingEnd, pin)
	return h, err
}

// Registry exposes the underlying request registry for admin/diagnostic
// use (see package adminhttp).
func (d *Driver) Registry() *registry.Registry {
	return d.eng.Registry()
}

// SubscribeTail registers a new tail subscriber and returns its id and a
// channel receiving a copy of every raw line read off the transport, for
// admin/diagnostic use (see package adminhttp).
func (d *Driver) SubscribeTail() (uint64, <-chan string) {
	return d.eng.SubscribeTail()
}

// UnsubscribeTail removes a tail subscriber registered by SubscribeTail.
func (d *Driver) UnsubscribeTail(id uint64) {
	d.eng.UnsubscribeTail(id)
}
