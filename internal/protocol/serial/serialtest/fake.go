// Package serialtest provides an in-memory serial port for tests.
package serialtest

import (
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"

	serialconn "buttcom/internal/protocol/serial"
)

// ErrUnplugged is the write error a FakePort returns once FailAfterWrites is reached
var ErrUnplugged = errors.New("device unplugged")

// FakePort records every write and replays queued responses
type FakePort struct {
	mu sync.Mutex

	writes   [][]byte
	incoming []byte

	// FailAfterWrites makes every write after the first n fail with
	// ErrUnplugged. Zero disables the failure.
	FailAfterWrites int
	// WriteErr is returned by every Write when set
	WriteErr error
	// ReadErr is returned by every Read when set
	ReadErr error
	// ReadFunc replaces the default Read behavior when set
	ReadFunc func(p []byte) (int, error)
	// OnWrite observes every successful write
	OnWrite func(p []byte)

	ReadTimeout time.Duration
	CloseCount  int
	ResetCount  int
}

var _ serialconn.Port = (*FakePort)(nil)

// NewFakePort returns an empty fake port
func NewFakePort() *FakePort {
	return &FakePort{}
}

// QueueResponse makes data available to the next reads
func (f *FakePort) QueueResponse(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incoming = append(f.incoming, data...)
}

func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.ReadFunc != nil {
		readFunc := f.ReadFunc
		f.mu.Unlock()
		return readFunc(p)
	}
	defer f.mu.Unlock()

	if f.ReadErr != nil {
		return 0, f.ReadErr
	}

	// An empty queue behaves like an expired read timeout
	n := copy(p, f.incoming)
	f.incoming = f.incoming[n:]
	return n, nil
}

func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()

	if f.WriteErr != nil {
		f.mu.Unlock()
		return 0, f.WriteErr
	}
	if f.FailAfterWrites > 0 && len(f.writes) >= f.FailAfterWrites {
		f.mu.Unlock()
		return 0, ErrUnplugged
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	onWrite := f.OnWrite
	f.mu.Unlock()

	// Called unlocked so hooks may queue responses
	if onWrite != nil {
		onWrite(buf)
	}
	return len(p), nil
}

func (f *FakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadTimeout = t
	return nil
}

func (f *FakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCount++
	return nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCount++
	return nil
}

// Writes returns every write call in order
func (f *FakePort) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.writes))
	for _, w := range f.writes {
		out = append(out, string(w))
	}
	return out
}

// Sent returns all written bytes concatenated
func (f *FakePort) Sent() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []byte
	for _, w := range f.writes {
		out = append(out, w...)
	}
	return string(out)
}

// Opener hands out a FakePort and records open calls
type Opener struct {
	Port *FakePort
	Err  error

	Opens    int
	LastName string
	LastMode *serial.Mode
}

// NewOpener returns an opener serving port
func NewOpener(port *FakePort) *Opener {
	return &Opener{Port: port}
}

// Open satisfies serialconn.PortOpener
func (o *Opener) Open(name string, mode *serial.Mode) (serialconn.Port, error) {
	o.Opens++
	o.LastName = name
	o.LastMode = mode
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Port, nil
}
