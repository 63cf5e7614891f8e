package link

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// BaudRate is the fixed line speed of the cover controller.
const BaudRate = 57600

// pollInterval bounds every read so the loop can observe a stop request.
const pollInterval = 100 * time.Millisecond

// Port is the subset of serial.Port the reader needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// OpenFunc opens a port by name.
type OpenFunc func(portName string) (Port, error)

// OpenSerial opens portName at 57600 baud, 8N1.
func OpenSerial(portName string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(pollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	return p, nil
}

// AvailablePorts returns the names of detected serial ports.
func AvailablePorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		log.Warn().Err(err).Msg("port enumeration failed")
		return []string{}
	}

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.IsUSB {
			log.Debug().
				Str("port", p.Name).
				Str("vid", p.VID).
				Str("pid", p.PID).
				Str("product", p.Product).
				Msg("found usb serial port")
		}
		names = append(names, p.Name)
	}
	return names
}
