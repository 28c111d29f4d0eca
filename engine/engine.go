// Package engine implements the I/O engine at the core of the driver: it
// owns the serial transport for the session, runs the background reader,
// serializes outbound writes, assigns request ids, and dispatches every
// inbound frame to the registry entry that's waiting on it. This is the
// generalization of a fan-out SerialMux into a per-id router: instead of
// broadcasting every line to every subscriber, it routes each frame to the
// one waiting handle or recording that owns its request id.
package engine

import (
	"bufio"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Argon343/controllino/chandle"
	"github.com/Argon343/controllino/logx"
	"github.com/Argon343/controllino/protocol"
	"github.com/Argon343/controllino/registry"
	"github.com/Argon343/controllino/transport"
)

// Sentinel usage/lifecycle errors.
var (
	// ErrClosed is returned by Submit once the engine has shut down,
	// whether via Kill or an unrecoverable transport read failure.
	ErrClosed = errors.New("engine: closed")
	// ErrShutdown is the terminal error given to handles and recordings
	// still pending when Kill runs.
	ErrShutdown = errors.New("engine: shut down")
	// ErrTransportLost is the terminal error given to handles and
	// recordings still pending when the reader hits an unrecoverable
	// transport error.
	ErrTransportLost = errors.New("engine: transport lost")
)

// Config holds the engine's own tuning knobs, as opposed to PortOptions'
// serial-line settings. Zero values are replaced by DefaultConfig's
// values in New.
type Config struct {
	// MaxLineLength bounds a single inbound line read by the background
	// reader. Defaults to protocol.MaxLineLength.
	MaxLineLength int
	// ShutdownGrace bounds how long Kill waits for the background
	// reader to join after closing the transport, before giving up and
	// returning anyway. Defaults to 5 seconds.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the engine's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxLineLength: protocol.MaxLineLength,
		ShutdownGrace: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = protocol.MaxLineLength
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// Engine owns one serial transport for the lifetime of a session.
type Engine struct {
	port transport.Port
	reg  *registry.Registry
	cfg  Config

	submitMu sync.Mutex
	nextID   uint64

	errMu sync.Mutex
	errs  []error

	wg              sync.WaitGroup
	plannedShutdown atomic.Bool
	closed          atomic.Bool
	finalizeOnce    sync.Once

	tailMu   sync.Mutex
	tailSeq  uint64
	tailSubs map[uint64]chan string
}

// New creates an Engine over port and immediately starts its background
// reader. No commands are rejected by the engine before any handshake,
// and the driver facade does not gate on Open either: a command submitted
// before Open is written to the transport like any other. An optional Config
// overrides the engine's tuning; only the first one given is used, and
// zero fields within it fall back to DefaultConfig.
func New(port transport.Port, cfg ...Config) *Engine {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	e := &Engine{
		port:     port,
		reg:      registry.New(),
		cfg:      c.withDefaults(),
		tailSubs: make(map[uint64]chan string),
	}
	e.wg.Add(1)
	go e.readLoop()
	return e
}

// SubscribeTail registers a new tail subscriber and returns its id and a
// channel that receives a copy of every raw line the reader scans off
// the transport, decoded or not. The channel is unbuffered; a slow
// receiver simply misses lines rather than blocking the reader.
func (e *Engine) SubscribeTail() (uint64, <-chan string) {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	e.tailSeq++
	id := e.tailSeq
	ch := make(chan string)
	e.tailSubs[id] = ch
	return id, ch
}

// UnsubscribeTail removes and closes a tail subscriber's channel.
func (e *Engine) UnsubscribeTail(id uint64) {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	if ch, ok := e.tailSubs[id]; ok {
		close(ch)
		delete(e.tailSubs, id)
	}
}

func (e *Engine) broadcastTail(line string) {
	e.tailMu.Lock()
	defer e.tailMu.Unlock()
	for _, ch := range e.tailSubs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Submit assigns a fresh request id, registers an entry for it, encodes
// and writes the frame, and returns the resulting handle (and, for a
// LoggingStart command, its recording buffer). A write failure is
// reported through the handle, not through Submit's own return value;
// Submit's error return is reserved for synchronous usage errors such as
// submitting after the engine has closed.
func (e *Engine) Submit(command string, args map[string]any, kind registry.Kind, pin string) (*chandle.Handle[any], *chandle.Recording, error) {
	if e.closed.Load() {
		return nil, nil, ErrClosed
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.closed.Load() {
		return nil, nil, ErrClosed
	}

	e.nextID++
	if e.nextID == 0 {
		panic("engine: request id counter wrapped")
	}
	id := e.nextID

	entry := &registry.Entry{
		Handle: chandle.New[any](),
		Kind:   kind,
		Pin:    pin,
	}
	var rec *chandle.Recording
	if kind == registry.LoggingStart {
		rec = chandle.NewRecording(pin)
		entry.Recording = rec
	}
	e.reg.Insert(id, entry)

	frame, err := protocol.Encode(id, command, args)
	if err != nil {
		e.reg.Remove(id)
		entry.Handle.SetErr(err)
		if rec != nil {
			rec.Finalize(err)
		}
		return entry.Handle, rec, nil
	}

	if _, werr := e.port.Write(frame); werr != nil {
		e.reg.Remove(id)
		wrapped := fmt.Errorf("engine: write failed: %w", werr)
		entry.Handle.SetErr(wrapped)
		if rec != nil {
			rec.Finalize(wrapped)
		}
		return entry.Handle, rec, nil
	}

	return entry.Handle, rec, nil
}

// Kill shuts the engine down: it stops accepting submissions, closes the
// transport to unblock the reader, joins the reader thread, and fails
// every entry still outstanding with ErrShutdown. It is idempotent.
func (e *Engine) Kill() error {
	e.plannedShutdown.Store(true)
	closeErr := e.port.Close()

	joined := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(e.cfg.ShutdownGrace):
		logx.Logf("engine: reader did not join within %s, proceeding anyway", e.cfg.ShutdownGrace)
	}

	e.finalize(nil)
	return closeErr
}

// Errors drains and returns every error accumulated on the asynchronous
// error channel since the last call.
func (e *Engine) Errors() []error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	out := e.errs
	e.errs = nil
	return out
}

// Registry exposes the underlying registry for admin/inspection use.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

func (e *Engine) pushError(err error) {
	logx.Logf("engine: %v", err)
	e.errMu.Lock()
	e.errs = append(e.errs, err)
	e.errMu.Unlock()
}

// readLoop is the single background reader thread. It owns the read side
// of the transport for the lifetime of the engine.
func (e *Engine) readLoop() {
	defer e.wg.Done()

	scanner := bufio.NewScanner(e.port)
	scanner.Buffer(make([]byte, 0, 4096), e.cfg.MaxLineLength)

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		e.broadcastTail(string(line))
		frame, err := protocol.Decode(line)
		if err != nil {
			e.pushError(err)
			continue
		}
		e.dispatch(frame)
	}

	e.finalize(scanner.Err())
}

// finalize runs exactly once: it marks the engine closed and fails every
// outstanding entry with the appropriate terminal error, depending on
// whether shutdown was planned (Kill) or not (a real transport failure).
func (e *Engine) finalize(readErr error) {
	e.finalizeOnce.Do(func() {
		var terminal error
		if e.plannedShutdown.Load() {
			terminal = ErrShutdown
		} else {
			terminal = ErrTransportLost
			if readErr != nil {
				e.pushError(fmt.Errorf("engine: transport read failed: %w", readErr))
			} else {
				e.pushError(errors.New("engine: transport closed unexpectedly"))
			}
		}

		e.closed.Store(true)

		for _, entry := range e.reg.Drain() {
			failEntry(entry, terminal)
		}

		e.tailMu.Lock()
		for id, ch := range e.tailSubs {
			close(ch)
			delete(e.tailSubs, id)
		}
		e.tailMu.Unlock()
	})
}

func failEntry(entry *registry.Entry, err error) {
	if !entry.Handle.Done() {
		entry.Handle.SetErr(err)
	}
	if entry.Recording != nil && !entry.Recording.Done() {
		entry.Recording.Finalize(err)
	}
}

func (e *Engine) dispatch(frame protocol.Frame) {
	id, ok := frame.ID()
	if !ok {
		e.pushError(&protocol.ProtocolError{Reason: "frame missing id"})
		return
	}

	switch frame.Type() {
	case protocol.FrameTypeResponse:
		e.handleResponse(id, frame)
	case protocol.FrameTypeSample:
		e.handleSample(id, frame)
	default:
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("unknown frame type %q for id %d", frame.Type(), id)})
	}
}

func (e *Engine) handleResponse(id uint64, frame protocol.Frame) {
	entry, ok := e.reg.Lookup(id)
	if !ok {
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("response for unknown id %d", id)})
		return
	}

	switch entry.Kind {
	case registry.OneShot:
		e.finishOneShot(id, entry, frame)
	case registry.LoggingStart:
		e.finishLoggingStart(id, entry, frame)
	case registry.LoggingEnd:
		e.finishLoggingEnd(id, entry, frame)
	}
}

func (e *Engine) finishOneShot(id uint64, entry *registry.Entry, frame protocol.Frame) {
	e.reg.Remove(id)
	if frame.Ok() {
		v, _ := frame.Value()
		entry.Handle.SetResult(v)
		return
	}
	entry.Handle.SetErr(&protocol.DeviceError{Name: frame.ErrorName()})
}

func (e *Engine) finishLoggingStart(id uint64, entry *registry.Entry, frame protocol.Frame) {
	if frame.Ok() {
		v, _ := frame.Value()
		entry.Handle.SetResult(v)
		if entry.Recording != nil {
			entry.Recording.Activate()
		}
		// Only now does the device confirm this id won the race for its
		// pin, so only now does it become visible to LookupByPin. A
		// losing duplicate start never reaches this branch, so it never
		// clobbers the winner's index entry.
		e.reg.ActivatePin(id)
		// Entry stays registered: samples for id keep arriving until the
		// matching logging-end completes.
		return
	}

	devErr := &protocol.DeviceError{Name: frame.ErrorName()}
	entry.Handle.SetErr(devErr)
	if entry.Recording != nil {
		entry.Recording.Finalize(devErr)
	}
	e.reg.Remove(id)
}

func (e *Engine) finishLoggingEnd(id uint64, entry *registry.Entry, frame protocol.Frame) {
	e.reg.Remove(id)

	if !frame.Ok() {
		entry.Handle.SetErr(&protocol.DeviceError{Name: frame.ErrorName()})
		return
	}

	v, _ := frame.Value()
	entry.Handle.SetResult(v)

	startID, startEntry, found := e.reg.LookupByPin(entry.Pin)
	if !found {
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("end_log_signal ack for pin %s with no active start entry", entry.Pin)})
		return
	}
	e.reg.Remove(startID)
	if startEntry.Recording != nil {
		startEntry.Recording.Finalize(nil)
	}
}

func (e *Engine) handleSample(id uint64, frame protocol.Frame) {
	entry, ok := e.reg.Lookup(id)
	if !ok || entry.Kind != registry.LoggingStart || entry.Recording == nil || !entry.Recording.Active() {
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("unsolicited sample for id %d", id)})
		return
	}

	raw, ok := frame.Value()
	if !ok {
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("sample for id %d missing value", id)})
		return
	}

	n, ok := asInt(raw)
	if !ok {
		e.pushError(&protocol.ProtocolError{Reason: fmt.Sprintf("sample for id %d has non-numeric value", id)})
		return
	}
	entry.Recording.Append(n)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
