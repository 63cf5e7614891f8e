package bridge

import (
	"context"

	"github.com/rs/zerolog/log"

	"remote-cover-controller/internal/link"
)

// Link is the serial side of a relay, typically a *link.Reader.
type Link interface {
	Sender
	Start(portName string) (<-chan link.Line, error)
	Stop() error
	Err() error
}

// Relay opens portName on l and forwards every received line to the hub
// until ctx is cancelled or the session fails. Clients get a "closed" notice
// when the session ends. The returned error is the session's failure, if any.
func Relay(ctx context.Context, l Link, portName string, hub *Hub) error {
	lines, err := l.Start(portName)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-done:
		}
	}()

	for line := range lines {
		log.Info().Str("line", line.Text).Msg("received")
		hub.Broadcast(line)
	}

	if err := l.Err(); err != nil {
		hub.Notify(err.Error())
		return err
	}
	hub.Notify("serial port closed")
	return nil
}
