package config

import (
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDefaultPort(t *testing.T) {
	require.Equal(t, "COM3", DefaultPort("windows"))
	require.Equal(t, "/dev/ttyUSB1", DefaultPort("linux"))
	require.Equal(t, "/dev/ttyUSB1", DefaultPort("darwin"))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(PortEnv, "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPort(runtime.GOOS), cfg.Port)
	require.Empty(t, cfg.WSAddr)
	require.Empty(t, cfg.WSOrigins)
	require.False(t, cfg.Headless)
	require.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv(PortEnv, "")

	cfg, err := Load([]string{"-port", "/dev/ttyACM0", "-ws", ":8990", "-headless", "-log-level", "debug"})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM0", cfg.Port)
	require.Equal(t, ":8990", cfg.WSAddr)
	require.True(t, cfg.Headless)
	require.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestLoad_EnvOverridesPort(t *testing.T) {
	t.Setenv(PortEnv, "/dev/ttyS7")

	cfg, err := Load([]string{"-port", "/dev/ttyACM0"})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyS7", cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(PortEnv, "")

	_, err := Load([]string{"-log-level", "loud"})
	require.Error(t, err)

	_, err = Load([]string{"-headless"})
	require.Error(t, err)

	_, err = Load([]string{"-bogus"})
	require.Error(t, err)
}

func TestLoad_Origins(t *testing.T) {
	t.Setenv(PortEnv, "")

	cfg, err := Load([]string{"-ws", "127.0.0.1:8990", "-ws-origins", "http://observatory.local:8080, ,https://dome.example"})
	require.NoError(t, err)
	require.Equal(t, []string{"http://observatory.local:8080", "https://dome.example"}, cfg.WSOrigins)
}
