package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"remote-cover-controller/internal/link"
)

// fakeLink stands in for a *link.Reader. Lines pushed on lines are relayed;
// Stop or fail close the channel.
type fakeLink struct {
	fakeSender
	lines    chan link.Line
	startErr error

	mu       sync.Mutex
	err      error
	port     string
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		lines:   make(chan link.Line, 16),
		stopped: make(chan struct{}),
	}
}

func (f *fakeLink) Start(portName string) (<-chan link.Line, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	f.port = portName
	f.mu.Unlock()
	return f.lines, nil
}

func (f *fakeLink) Stop() error {
	f.stopOnce.Do(func() {
		close(f.stopped)
		close(f.lines)
	})
	return nil
}

func (f *fakeLink) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.lines) })
}

func (f *fakeLink) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func readResponses(t *testing.T, conn *websocket.Conn, n int) []Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	out := make([]Response, 0, n)
	for i := 0; i < n; i++ {
		var resp Response
		require.NoError(t, conn.ReadJSON(&resp))
		out = append(out, resp)
	}
	return out
}

func TestRelay_ForwardsLinesUntilFailure(t *testing.T) {
	l := newFakeLink()
	h := NewHub(l)
	conn := dial(t, h)

	result := make(chan error, 1)
	go func() { result <- Relay(context.Background(), l, "/dev/ttyUSB1", h) }()

	readErr := errors.New("serial read: device disconnected")
	l.lines <- link.Line{Timestamp: time.Now(), Text: "PONG"}
	l.lines <- link.Line{Timestamp: time.Now(), Text: "STATE:OPEN"}
	l.fail(readErr)

	select {
	case err := <-result:
		require.ErrorIs(t, err, readErr)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not return")
	}

	got := readResponses(t, conn, 3)
	require.Equal(t, "line", got[0].Status)
	require.Equal(t, "PONG", got[0].Message)
	require.Equal(t, "STATE:OPEN", got[1].Message)
	require.Equal(t, "closed", got[2].Status)
	require.Equal(t, readErr.Error(), got[2].Message)
	require.Equal(t, "/dev/ttyUSB1", l.port)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	l := newFakeLink()
	h := NewHub(l)
	conn := dial(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- Relay(ctx, l, "COM3", h) }()

	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
	<-l.stopped

	got := readResponses(t, conn, 1)
	require.Equal(t, "closed", got[0].Status)
	require.Equal(t, "serial port closed", got[0].Message)
}

func TestRelay_StartFailure(t *testing.T) {
	l := newFakeLink()
	l.startErr = errors.New("open COM3: access denied")
	h := NewHub(l)

	err := Relay(context.Background(), l, "COM3", h)
	require.ErrorIs(t, err, l.startErr)
}
