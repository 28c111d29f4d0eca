package chandle

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample is a single logged value: HIGH/LOW for digital pins arrive as
// 1/0, analog pins arrive as the raw integer reading.
type Sample = int

// Result is the terminal value of a Recording: every sample collected
// for the originating pin, in arrival order.
type Result struct {
	Pin    string
	Values []Sample
}

// Summary holds basic descriptive statistics of a Result's values.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Summary computes Count/Min/Max/Mean over the result's values. Returns
// the zero Summary for an empty recording.
func (r Result) Summary() Summary {
	if len(r.Values) == 0 {
		return Summary{}
	}
	xs := make([]float64, len(r.Values))
	min, max := r.Values[0], r.Values[0]
	for i, v := range r.Values {
		xs[i] = float64(v)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return Summary{
		Count: len(r.Values),
		Min:   float64(min),
		Max:   float64(max),
		Mean:  stat.Mean(xs, nil),
	}
}

// Recording is the append-only sample stream for one logging
// subscription. It is created when the logging-start
// command is submitted, accepts samples only between the start
// acknowledgement and its own terminal transition, and finalizes when
// the matching logging-end completes or the engine shuts down.
type Recording struct {
	mu     sync.Mutex
	cond   *sync.Cond
	pin    string
	values []Sample
	active bool
	done   bool
	err    error
}

// NewRecording creates a Recording for the given pin. It does not begin
// accepting samples until Activate is called (i.e. once the device has
// acknowledged the logging-start command).
func NewRecording(pin string) *Recording {
	r := &Recording{pin: pin}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Activate marks the recording as eligible to receive samples. Samples
// appended before Activate or after Finalize are dropped by the caller
// (the I/O engine), not by Recording itself — Append here simply
// enforces "not terminal".
func (r *Recording) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
}

// Active reports whether the recording is currently eligible to receive
// samples (activated, not yet terminal).
func (r *Recording) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && !r.done
}

// Append adds a sample. It is a no-op once the recording is terminal.
func (r *Recording) Append(v Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.values = append(r.values, v)
}

// Finalize transitions the recording to terminal, successfully if err is
// nil. Calling it twice is a programming error and panics, mirroring
// Handle's one-shot contract.
func (r *Recording) Finalize(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		panic("chandle: recording already terminal")
	}
	r.done = true
	r.active = false
	r.err = err
	r.cond.Broadcast()
}

// Done reports, without blocking, whether the recording has terminated.
func (r *Recording) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Snapshot returns a copy of the samples collected so far, without
// requiring the recording to be terminal. Useful for inspecting an
// in-flight logging job (e.g. for a live chart) without waiting for it
// to be ended.
func (r *Recording) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.values...)
}

// Wait blocks until the recording is terminal or timeout elapses. A zero
// or negative timeout blocks indefinitely.
func (r *Recording) Wait(timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return true
	}
	if timeout <= 0 {
		for !r.done {
			r.cond.Wait()
		}
		return true
	}

	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		timedOut = true
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	for !r.done && !timedOut {
		r.cond.Wait()
	}
	return r.done
}

// Result returns the accumulated samples if the recording ended
// successfully, or the stored error if it failed, or ErrNotReady if it
// hasn't terminated yet.
func (r *Recording) Result() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		return Result{}, ErrNotReady
	}
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Pin: r.pin, Values: append([]Sample(nil), r.values...)}, nil
}
