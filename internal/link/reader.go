package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const (
	lineBuffer = 256

	// maxLineLength caps buffered input that has no newline yet.
	maxLineLength = 4096
)

var (
	ErrNotOpen        = errors.New("serial port not open")
	ErrAlreadyRunning = errors.New("reader already running")
	ErrInvalidUTF8    = errors.New("received line is not valid utf-8")
	ErrLineTooLong    = errors.New("received line exceeds maximum length")
)

// State is the lifecycle position of a Reader.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Line is a single line received from the cover controller.
type Line struct {
	Timestamp time.Time
	Text      string
}

// Reader owns one serial connection at a time and surfaces the text lines
// it receives on a channel. Writes may happen concurrently with reading.
type Reader struct {
	open OpenFunc

	mu       sync.Mutex
	sess     *session
	starting bool // an open is in progress outside mu
}

// session is a single open/read/close cycle of a Reader.
type session struct {
	name    string
	port    Port
	running atomic.Bool
	err     atomic.Error
	stopCh  chan struct{}
	doneCh  chan struct{} // closed when the read loop has exited

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	writeMu sync.Mutex // serializes writers; close does not take it
	closed  atomic.Bool
}

func NewReader() *Reader {
	return &Reader{open: OpenSerial}
}

// Start opens portName and begins reading it in a goroutine. The returned
// channel yields every received line in wire order and is closed when the
// session ends, either through Stop or an I/O failure (see Err).
func (r *Reader) Start(portName string) (<-chan Line, error) {
	r.mu.Lock()
	if r.starting || (r.sess != nil && r.sess.running.Load()) {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.starting = true
	r.mu.Unlock()

	// Opening can be slow; keep mu free for Write, State and PortName.
	p, err := r.open(portName)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false

	if err != nil {
		log.Error().Err(err).Str("port", portName).Msg("failed to open serial port")
		return nil, fmt.Errorf("failed to open %s: %w", portName, err)
	}

	s := &session{
		name:   portName,
		port:   p,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.running.Store(true)
	r.sess = s

	lines := make(chan Line, lineBuffer)
	go s.run(lines)

	log.Info().Str("port", portName).Int("baud", BaudRate).Msg("serial port opened")
	return lines, nil
}

// Stop ends the current session and releases the port. It waits at most
// about one poll interval for the read loop to exit. Calling Stop again, or
// before Start, does nothing.
func (r *Reader) Stop() error {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	s.stop()
	<-s.doneCh
	return s.closePort()
}

// Write sends p to the port unmodified. It returns ErrNotOpen when no
// session is open.
func (r *Reader) Write(p []byte) error {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()

	if s == nil {
		return ErrNotOpen
	}
	return s.write(p)
}

// Send writes a cover command.
func (r *Reader) Send(cmd Command) error {
	if err := r.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Name(), err)
	}
	return nil
}

func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.sess == nil:
		return StateNotStarted
	case r.sess.running.Load():
		return StateRunning
	default:
		return StateStopped
	}
}

// Err returns the error that ended the latest session, or nil if it was
// stopped cleanly or is still running.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess == nil {
		return nil
	}
	return r.sess.err.Load()
}

// PortName returns the port of the latest session.
func (r *Reader) PortName() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess == nil {
		return ""
	}
	return r.sess.name
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopCh)
		log.Debug().Str("port", s.name).Msg("serial reader stop requested")
	})
}

// closePort never waits for an in-flight write; that write fails once the
// handle is gone.
func (s *session) closePort() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

func (s *session) write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for len(p) > 0 {
		if s.closed.Load() {
			return ErrNotOpen
		}
		n, err := s.port.Write(p)
		if err != nil {
			if s.closed.Load() {
				return ErrNotOpen
			}
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

func (s *session) fail(err error) {
	s.err.Store(err)
	log.Error().Err(err).Str("port", s.name).Msg("serial session terminated")
}

func (s *session) run(lines chan<- Line) {
	defer close(s.doneCh)
	defer close(lines)
	defer func() {
		s.running.Store(false)
		s.closePort()
	}()

	buf := make([]byte, 1024)
	var partial []byte

	for s.running.Load() {
		n, err := s.port.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				idx := bytes.IndexByte(partial, '\n')
				if idx < 0 {
					break
				}
				raw := partial[:idx]
				partial = partial[idx+1:]

				if !utf8.Valid(raw) {
					s.fail(fmt.Errorf("%w: % x", ErrInvalidUTF8, raw))
					return
				}
				line := Line{
					Timestamp: time.Now(),
					Text:      strings.TrimRightFunc(string(raw), unicode.IsSpace),
				}
				select {
				case lines <- line:
				case <-s.stopCh:
					return
				}
			}
			if len(partial) > maxLineLength {
				s.fail(fmt.Errorf("%w: %d bytes without newline", ErrLineTooLong, len(partial)))
				return
			}
		}

		if err != nil {
			// An error after a stop request ends the session cleanly.
			if !s.running.Load() {
				return
			}
			s.fail(fmt.Errorf("serial read: %w", err))
			return
		}
	}
}
