package link

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a fixed ASCII request understood by the cover firmware.
// Commands are written as-is, without terminator.
type Command string

const (
	CommandOpen     Command = "COMMAND:OPEN"
	CommandClose    Command = "COMMAND:CLOSE"
	CommandPing     Command = "COMMAND:PING"
	CommandGetState Command = "COMMAND:GETSTATE"
)

var ErrUnknownCommand = errors.New("unknown command")

// Commands lists every command in display order.
var Commands = []Command{CommandOpen, CommandClose, CommandPing, CommandGetState}

// Name returns the command without its COMMAND: prefix.
func (c Command) Name() string {
	return strings.TrimPrefix(string(c), "COMMAND:")
}

// ParseCommand maps a short name such as "ping" to its Command.
func ParseCommand(name string) (Command, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range Commands {
		if c.Name() == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
