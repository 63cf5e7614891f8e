package link

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

var errFakeClosed = errors.New("fake port closed")

// fakePort is an in-memory Port. Device output is queued with feed and
// everything the host writes is recorded.
type fakePort struct {
	in      chan []byte
	readErr chan error
	closed  chan struct{}
	timeout time.Duration
	pending []byte

	mu      sync.Mutex
	written bytes.Buffer
	writes  [][]byte
	onWrite func(p []byte)

	// When set, Write signals writeEntered and blocks until Close, like a
	// device that never drains its input.
	blockWrites  bool
	writeEntered chan struct{}

	closeCount atomic.Int32
	closeOnce  sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		in:           make(chan []byte, 64),
		readErr:      make(chan error, 1),
		closed:       make(chan struct{}),
		timeout:      pollInterval,
		writeEntered: make(chan struct{}, 1),
	}
}

func (f *fakePort) opener() OpenFunc {
	return func(string) (Port, error) { return f, nil }
}

func (f *fakePort) feed(s string) {
	f.in <- []byte(s)
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		return n, nil
	}
	select {
	case b := <-f.in:
		n := copy(p, b)
		f.pending = b[n:]
		return n, nil
	case err := <-f.readErr:
		return 0, err
	case <-f.closed:
		return 0, errFakeClosed
	case <-time.After(f.timeout):
		return 0, nil
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, errFakeClosed
	default:
	}

	if f.blockWrites {
		f.writeEntered <- struct{}{}
		<-f.closed
		return 0, errFakeClosed
	}

	f.mu.Lock()
	f.written.Write(p)
	f.writes = append(f.writes, append([]byte(nil), p...))
	onWrite := f.onWrite
	f.mu.Unlock()

	if onWrite != nil {
		onWrite(p)
	}
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closeCount.Inc()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) SetReadTimeout(timeout time.Duration) error {
	f.timeout = timeout
	return nil
}

func (f *fakePort) writtenString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}
