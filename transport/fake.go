package transport

import (
	"bytes"
	"errors"
	"sync"
)

// FakePort is a controllable Port double for tests: reads come from a
// buffer fed by AddReadData, writes accumulate in a buffer inspectable
// via WrittenData, and either side can be made to fail. Read blocks
// until data, an armed read error, or Close arrives; Write never blocks.
type FakePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	readErr  error
	writeErr error
	closeErr error
	closed   bool

	readCond *sync.Cond
}

// NewFakePort creates an empty FakePort.
func NewFakePort() *FakePort {
	f := &FakePort{}
	f.readCond = sync.NewCond(&f.mu)
	return f
}

// AddReadData appends bytes for subsequent Read calls to return, waking
// any reader blocked waiting for data.
func (f *FakePort) AddReadData(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readBuf.Write(data)
	f.readCond.Broadcast()
}

// AddReadLine is a convenience for AddReadData that appends a trailing
// newline.
func (f *FakePort) AddReadLine(line string) {
	f.AddReadData([]byte(line + "\n"))
}

// SetReadError makes the next Read return err instead of reading data.
func (f *FakePort) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
	f.readCond.Broadcast()
}

// SetWriteError makes the next Write return err.
func (f *FakePort) SetWriteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// WrittenData returns everything written to the port so far.
func (f *FakePort) WrittenData() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.writeBuf.Bytes()...)
}

// Read blocks until data, an error, or Close is available.
func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.readBuf.Len() == 0 && f.readErr == nil && !f.closed {
		f.readCond.Wait()
	}

	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return 0, err
	}
	if f.readBuf.Len() > 0 {
		return f.readBuf.Read(p)
	}
	// closed with nothing left to read
	return 0, errors.New("transport: fake port closed")
}

// Write appends to the write buffer unless a write error is armed.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errors.New("transport: fake port closed")
	}
	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return 0, err
	}
	return f.writeBuf.Write(p)
}

// Close marks the port closed and wakes any blocked Read.
func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.readCond.Broadcast()
	return f.closeErr
}

// FakeFactory implements Factory, returning a preconfigured Port.
type FakeFactory struct {
	Port      Port
	Err       error
	OpenCalls []OpenCall
	mu        sync.Mutex
}

// OpenCall records a single Open invocation for assertions.
type OpenCall struct {
	Path string
	Opts PortOptions
}

// Open implements Factory.
func (f *FakeFactory) Open(path string, opts PortOptions) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, OpenCall{Path: path, Opts: opts})
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}
