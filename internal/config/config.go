package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// PortEnv overrides the serial port when set.
const PortEnv = "COVER_SERIAL_PORT"

type Config struct {
	Port      string   // Serial port name (e.g. COM3, /dev/ttyUSB1)
	WSAddr    string   // WebSocket bridge address; empty disables the bridge
	WSOrigins []string // extra browser origins allowed to use the bridge
	Headless  bool
	LogLevel  zerolog.Level
}

// DefaultPort returns the usual adapter name for goos.
func DefaultPort(goos string) string {
	if goos == "windows" {
		return "COM3"
	}
	return "/dev/ttyUSB1"
}

// Load parses command-line args (without the program name) and applies
// environment overrides.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("remote-cover", flag.ContinueOnError)

	port := fs.String("port", DefaultPort(runtime.GOOS), "Serial port (e.g. COM3, /dev/ttyUSB1)")
	wsAddr := fs.String("ws", "", "WebSocket bridge address (e.g. 127.0.0.1:8990)")
	wsOrigins := fs.String("ws-origins", "", "Comma-separated browser origins allowed besides the bridge host")
	headless := fs.Bool("headless", false, "Run without a window; requires -ws")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envPort := os.Getenv(PortEnv); envPort != "" {
		*port = envPort
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", *logLevel, err)
	}

	if *headless && *wsAddr == "" {
		return nil, errors.New("-headless requires -ws")
	}

	var origins []string
	for _, o := range strings.Split(*wsOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		Port:      *port,
		WSAddr:    *wsAddr,
		WSOrigins: origins,
		Headless:  *headless,
		LogLevel:  level,
	}, nil
}
