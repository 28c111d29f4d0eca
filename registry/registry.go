// Package registry implements the in-memory table the I/O engine uses to
// route inbound frames back to the handle (and, for logging subscriptions,
// recording buffer) that originated the request. Generalized from a
// broadcast subscriber map (every listener sees every line) to routing
// by request id, with a pin-keyed secondary index for end_log_signal
// lookups.
package registry

import (
	"sync"

	"github.com/Argon343/controllino/chandle"
	"github.com/Argon343/controllino/logx"
)

// Kind identifies what a registry entry represents.
type Kind int

const (
	// OneShot is an ordinary request/reply command.
	OneShot Kind = iota
	// LoggingStart begins a logging subscription; the entry stays
	// registered after its start handle completes so samples can keep
	// arriving, until the matching LoggingEnd completes.
	LoggingStart
	// LoggingEnd terminates a logging subscription.
	LoggingEnd
)

// Entry is one outstanding request: its completion handle, its kind, and
// — for logging-start entries — the pin it logs and the recording buffer
// samples are appended to.
type Entry struct {
	Handle    *chandle.Handle[any]
	Kind      Kind
	Pin       string
	Recording *chandle.Recording
}

// Registry is the mutex-guarded id -> Entry table plus a pin -> id
// secondary index, updated atomically under the same lock so pin lookups
// are race-free.
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
	byPin   map[string]uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[uint64]*Entry),
		byPin:   make(map[string]uint64),
	}
}

// Insert registers a new outstanding entry under id. It does not touch
// the pin secondary index: a LoggingStart entry isn't known to be the
// active logging job for its pin until the device actually acknowledges
// it (see ActivatePin). Two racing log_signal submissions for the same
// pin both get inserted here; only the one the device accepts should
// ever become visible to LookupByPin.
func (r *Registry) Insert(id uint64, e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// ActivatePin makes id's entry the active logging job for its pin in the
// secondary index. Called once the device has acknowledged a
// LoggingStart command ok — never speculatively at submit time, since
// only the device knows which of two racing starts for the same pin
// wins. A no-op if id is unknown or isn't a LoggingStart entry with a
// pin.
func (r *Registry) ActivatePin(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Kind != LoggingStart || e.Pin == "" {
		return
	}
	r.byPin[e.Pin] = id
}

// Lookup returns the entry for id, if any.
func (r *Registry) Lookup(id uint64) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// LookupByPin returns the id and entry of the active logging job on pin,
// if any.
func (r *Registry) LookupByPin(pin string) (uint64, *Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPin[pin]
	if !ok {
		return 0, nil, false
	}
	e := r.entries[id]
	return id, e, e != nil
}

// Remove deletes the entry for id, along with its pin secondary index
// entry if it owns one.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.entries, id)
	if e.Kind == LoggingStart && e.Pin != "" {
		if current, ok := r.byPin[e.Pin]; ok && current == id {
			delete(r.byPin, e.Pin)
		}
	}
}

// Snapshot returns a copy of all outstanding ids and kinds, for admin
// inspection. It does not expose handles/recordings themselves to avoid
// admin code racing with terminal transitions.
type Snapshot struct {
	ID   uint64
	Kind Kind
	Pin  string
}

// All returns a point-in-time snapshot of every outstanding entry.
func (r *Registry) All() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Snapshot{ID: id, Kind: e.Kind, Pin: e.Pin})
	}
	return out
}

// Drain removes and returns every outstanding entry, used by the engine
// on shutdown to fail everything still pending.
func (r *Registry) Drain() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	if len(out) > 0 {
		logx.Logf("registry: draining %d outstanding entries", len(out))
	}
	r.entries = make(map[uint64]*Entry)
	r.byPin = make(map[string]uint64)
	return out
}
