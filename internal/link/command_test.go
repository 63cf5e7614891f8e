package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommand_Bytes(t *testing.T) {
	require.Equal(t, "COMMAND:OPEN", string(CommandOpen))
	require.Equal(t, "COMMAND:CLOSE", string(CommandClose))
	require.Equal(t, "COMMAND:PING", string(CommandPing))
	require.Equal(t, "COMMAND:GETSTATE", string(CommandGetState))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"OPEN", CommandOpen},
		{"close", CommandClose},
		{" Ping ", CommandPing},
		{"getstate", CommandGetState},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}

	_, err := ParseCommand("REBOOT")
	require.ErrorIs(t, err, ErrUnknownCommand)
}
