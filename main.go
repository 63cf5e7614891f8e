package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"remote-cover-controller/internal/bridge"
	"remote-cover-controller/internal/config"
	"remote-cover-controller/internal/link"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	reader := link.NewReader()

	var hub *bridge.Hub
	var srv *http.Server
	if cfg.WSAddr != "" {
		hub = bridge.NewHub(reader, cfg.WSOrigins...)
		srv = &http.Server{
			Addr:              cfg.WSAddr,
			Handler:           hub.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.WSAddr).Msg("bridge listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("bridge server failed")
			}
		}()
	}

	exitCode := 0
	if cfg.Headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		if err := bridge.Relay(ctx, reader, cfg.Port, hub); err != nil {
			log.Error().Err(err).Msg("headless session ended")
			exitCode = 1
		}
		stop()
	} else {
		a := app.NewWithID("com.github.remote-cover-controller")
		w := a.NewWindow("Remote Cover Controller")
		w.Resize(fyne.NewSize(480, 360))

		ui := NewAppUI(w, reader, hub, cfg.Port)
		ui.Connect(cfg.Port)

		w.ShowAndRun()
	}

	if err := reader.Stop(); err != nil {
		log.Warn().Err(err).Msg("closing serial port")
	}
	if srv != nil {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Shutdown(ctx)
		cancel()
	}
	os.Exit(exitCode)
}
