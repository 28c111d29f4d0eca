package controllino

import (
	"errors"

	"github.com/Argon343/controllino/chandle"
	"github.com/Argon343/controllino/engine"
	"github.com/Argon343/controllino/protocol"
)

// DeviceError and ProtocolError are re-exported here so callers of this
// package don't need to import protocol directly just to use errors.As.
type (
	DeviceError   = protocol.DeviceError
	ProtocolError = protocol.ProtocolError
)

// Usage and lifecycle errors.
var (
	// ErrNotReady is returned by a handle's Result before it is terminal.
	ErrNotReady = chandle.ErrNotReady
	// ErrAlreadyOpen is returned by a second call to Open.
	ErrAlreadyOpen = errors.New("controllino: already open")
	// ErrClosed is returned by Submit (and the typed helpers) after Kill.
	ErrClosed = engine.ErrClosed
	// ErrShutdown is the terminal error for handles/recordings still
	// pending when Kill runs.
	ErrShutdown = engine.ErrShutdown
	// ErrTransportLost is the terminal error for handles/recordings still
	// pending when the reader hits an unrecoverable transport error.
	ErrTransportLost = engine.ErrTransportLost
)
