package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Argon343/controllino/protocol"
	"github.com/Argon343/controllino/registry"
	"github.com/Argon343/controllino/transport"
)

func mustWait(t *testing.T, w interface{ Wait(time.Duration) bool }, what string) {
	t.Helper()
	if !w.Wait(5 * time.Second) {
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestEngineDigitalWriteThenRead(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h, _, err := e.Submit("set_signal", map[string]any{"pin": "D40", "value": "HIGH"}, registry.OneShot, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":"HIGH"}`)
	mustWait(t, h, "set_signal ack")
	v, err := h.Result()
	if err != nil || v != "HIGH" {
		t.Fatalf("got v=%v err=%v", v, err)
	}

	h2, _, err := e.Submit("get_signal", map[string]any{"pin": "D30"}, registry.OneShot, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	port.AddReadLine(`{"id":2,"type":"response","ok":true,"value":"HIGH"}`)
	mustWait(t, h2, "get_signal ack")
	v2, err := h2.Result()
	if err != nil || v2 != "HIGH" {
		t.Fatalf("got v=%v err=%v", v2, err)
	}
}

func TestEngineAnalogWriteThenReadAboveThreshold(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h, _, _ := e.Submit("set_signal", map[string]any{"pin": "DAC0", "value": 255}, registry.OneShot, "")
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":255}`)
	mustWait(t, h, "set_signal ack")
	if _, err := h.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h2, _, _ := e.Submit("get_signal", map[string]any{"pin": "A0"}, registry.OneShot, "")
	port.AddReadLine(`{"id":2,"type":"response","ok":true,"value":850}`)
	mustWait(t, h2, "get_signal ack")
	v, err := h2.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := v.(float64)
	if !ok || n <= 800 {
		t.Fatalf("expected analog reading above 800, got %v", v)
	}
}

func TestEngineAnalogWriteThenReadBelowThreshold(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h, _, _ := e.Submit("set_signal", map[string]any{"pin": "DAC0", "value": 100}, registry.OneShot, "")
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":100}`)
	mustWait(t, h, "set_signal ack")

	h2, _, _ := e.Submit("get_signal", map[string]any{"pin": "A0"}, registry.OneShot, "")
	port.AddReadLine(`{"id":2,"type":"response","ok":true,"value":550}`)
	mustWait(t, h2, "get_signal ack")
	v, err := h2.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := v.(float64)
	if !ok || n >= 600 {
		t.Fatalf("expected analog reading below 600, got %v", v)
	}
}

func TestEngineInvalidPinFailure(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h, _, _ := e.Submit("get_signal", map[string]any{"pin": "D999"}, registry.OneShot, "")
	port.AddReadLine(`{"id":1,"type":"response","ok":false,"error":"INVALID_PIN"}`)
	mustWait(t, h, "error ack")

	_, err := h.Result()
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) || devErr.Name != "INVALID_PIN" {
		t.Fatalf("got %v, want DeviceError INVALID_PIN", err)
	}
}

func TestEngineDuplicateLoggingJob(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h1, rec1, _ := e.Submit("log_signal", map[string]any{"pin": "D30", "period_ms": 10}, registry.LoggingStart, "D30")
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":null}`)
	mustWait(t, h1, "first log_signal ack")
	if _, err := h1.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec1.Active() {
		t.Fatal("expected first recording to be active")
	}

	h2, rec2, _ := e.Submit("log_signal", map[string]any{"pin": "D30", "period_ms": 10}, registry.LoggingStart, "D30")
	port.AddReadLine(`{"id":2,"type":"response","ok":false,"error":"DUPLICATE_LOGGING_JOB"}`)
	mustWait(t, h2, "duplicate log_signal ack")

	_, err := h2.Result()
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) || devErr.Name != "DUPLICATE_LOGGING_JOB" {
		t.Fatalf("got %v, want DeviceError DUPLICATE_LOGGING_JOB", err)
	}
	if !rec2.Done() {
		t.Fatal("expected failed recording to be finalized")
	}
}

// TestEngineEndLogSignalAfterRejectedDuplicateFindsLiveJob reproduces a
// duplicate log_signal attempt (id 2, rejected) followed by an ordinary
// end_log_signal for the same pin. Before the winning id was only
// indexed by pin once the device actually acknowledged it, the rejected
// duplicate's cleanup could clobber the live job's pin index entry,
// leaving end_log_signal unable to find it and rec1 stuck pending
// forever.
func TestEngineEndLogSignalAfterRejectedDuplicateFindsLiveJob(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h1, rec1, _ := e.Submit("log_signal", map[string]any{"pin": "D30", "period_ms": 10}, registry.LoggingStart, "D30")
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":null}`)
	mustWait(t, h1, "first log_signal ack")

	h2, rec2, _ := e.Submit("log_signal", map[string]any{"pin": "D30", "period_ms": 10}, registry.LoggingStart, "D30")
	port.AddReadLine(`{"id":2,"type":"response","ok":false,"error":"DUPLICATE_LOGGING_JOB"}`)
	mustWait(t, h2, "duplicate log_signal ack")
	if !rec2.Done() {
		t.Fatal("expected rejected duplicate's recording to be finalized")
	}

	endHandle, _, _ := e.Submit("end_log_signal", map[string]any{"pin": "D30"}, registry.LoggingEnd, "D30")
	port.AddReadLine(`{"id":3,"type":"response","ok":true,"value":null}`)
	mustWait(t, endHandle, "end_log_signal ack")
	if _, err := endHandle.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustWait(t, rec1, "live recording to finalize")
	if _, err := rec1.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEngineTooManyLoggingJobs(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	pins := []string{"D30", "D31", "D32", "D33", "D34", "D35", "D36", "D37", "D38"}
	for i, pin := range pins {
		id := uint64(i + 1)
		h, _, _ := e.Submit("log_signal", map[string]any{"pin": pin, "period_ms": 10}, registry.LoggingStart, pin)
		if id <= 8 {
			port.AddReadLine(`{"id":` + itoa(id) + `,"type":"response","ok":true,"value":null}`)
			mustWait(t, h, "log_signal ack within cap")
			if _, err := h.Result(); err != nil {
				t.Fatalf("job %d: unexpected error: %v", id, err)
			}
		} else {
			port.AddReadLine(`{"id":` + itoa(id) + `,"type":"response","ok":false,"error":"TOO_MANY_LOGGING_JOBS"}`)
			mustWait(t, h, "9th log_signal ack")
			_, err := h.Result()
			var devErr *protocol.DeviceError
			if !errors.As(err, &devErr) || devErr.Name != "TOO_MANY_LOGGING_JOBS" {
				t.Fatalf("job %d: got %v, want TOO_MANY_LOGGING_JOBS", id, err)
			}
		}
	}
}

func TestEngineStreamingSamplesAndEndLogSignal(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	defer e.Kill()

	h, rec, _ := e.Submit("log_signal", map[string]any{"pin": "D30", "period_ms": 5}, registry.LoggingStart, "D30")
	port.AddReadLine(`{"id":1,"type":"response","ok":true,"value":null}`)
	mustWait(t, h, "log_signal ack")

	for _, v := range []int{0, 0, 1, 1, 0, 0} {
		port.AddReadLine(`{"id":1,"type":"sample","value":` + itoa(uint64(v)) + `}`)
	}

	endHandle, _, _ := e.Submit("end_log_signal", map[string]any{"pin": "D30"}, registry.LoggingEnd, "D30")
	port.AddReadLine(`{"id":2,"type":"response","ok":true,"value":null}`)
	mustWait(t, endHandle, "end_log_signal ack")
	if _, err := endHandle.Result(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustWait(t, rec, "recording to finalize")
	result, err := rec.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{0, 0, 1, 1, 0, 0}
	if len(result.Values) != len(want) {
		t.Fatalf("got %v, want %v", result.Values, want)
	}
	for i := range want {
		if result.Values[i] != want[i] {
			t.Fatalf("got %v, want %v", result.Values, want)
		}
	}
}

func TestEngineKillFailsPendingHandles(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)

	h, _, _ := e.Submit("get_signal", map[string]any{"pin": "D30"}, registry.OneShot, "")
	if err := e.Kill(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustWait(t, h, "shutdown to propagate")
	if _, err := h.Result(); !errors.Is(err, ErrShutdown) {
		t.Fatalf("got %v, want ErrShutdown", err)
	}
}

func TestEngineSubmitAfterCloseReturnsErrClosed(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)
	e.Kill()

	if _, _, err := e.Submit("get_signal", map[string]any{"pin": "D30"}, registry.OneShot, ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestEngineTransportFailureReportsErrTransportLost(t *testing.T) {
	port := transport.NewFakePort()
	e := New(port)

	h, _, _ := e.Submit("get_signal", map[string]any{"pin": "D30"}, registry.OneShot, "")
	port.SetReadError(errors.New("device unplugged"))

	mustWait(t, h, "transport failure to propagate")
	if _, err := h.Result(); !errors.Is(err, ErrTransportLost) {
		t.Fatalf("got %v, want ErrTransportLost", err)
	}

	errs := e.Errors()
	if len(errs) == 0 {
		t.Fatal("expected a background error to be recorded")
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
