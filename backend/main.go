package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/soar/xremu/backend/internal/config"
	"github.com/soar/xremu/backend/internal/emulator"
	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/hostkbd"
	"github.com/soar/xremu/backend/internal/hub"
	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/logging"
	"github.com/soar/xremu/backend/internal/relay"
	"github.com/soar/xremu/backend/internal/server"
	"github.com/soar/xremu/backend/internal/settings"
	"github.com/soar/xremu/backend/internal/tray"
)

// os.Interrupt covers Ctrl+C on every platform.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	config.RegisterFlags(pflag.CommandLine)
	configDir := pflag.String("config", ".", "directory holding xremu.yaml")
	pflag.Parse()

	if err := config.Load(pflag.CommandLine, *configDir); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg := config.Get()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	keymap := input.DefaultKeyMapping()
	if cfg.KeymapPath != "" {
		var err error
		if keymap, err = input.LoadKeyMapping(cfg.KeymapPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.KeymapPath).Msg("Failed to load key mapping")
		}
	}

	resolution, err := haptic.ParseResolution(cfg.HapticResolution)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid haptics resolution")
	}

	emu, err := emulator.New(settings.NewStore(cfg.SettingsPath), emulator.Options{
		KeyMapping:   keymap,
		TickInterval: cfg.TickInterval,
		Resolution:   resolution,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start emulator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { emu.Run(ctx) })

	h := hub.NewHub()
	go h.Run()

	dev := emu.Device()
	broadcaster := hub.NewBroadcaster(h, dev.Changes(), emu.PassThroughs())
	spawn(func() { broadcaster.Run(ctx) })

	srv := server.New(h, broadcaster, emu, dev, getFrontendFS(), cfg.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	url := panelURL(cfg.Addr)
	log.Info().Str("url", url).Str("device", emu.Settings().DeviceKey).Msg("xremu started")

	if cfg.Relay.Enabled {
		r := relay.New(cfg.Relay.URL, cfg.Relay.Retry, dev)
		spawn(func() { r.Run(ctx) })
	}

	// Closing the capture window stops the process like the tray's Exit.
	shutdownRequested := make(chan struct{})
	var requestShutdown sync.Once
	shutdown := func() { requestShutdown.Do(func() { close(shutdownRequested) }) }

	if cfg.HostKeyboard && emu.Settings().KeyboardMappingOn {
		w := hostkbd.New("xremu keyboard", emu)
		spawn(func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Host keyboard capture unavailable")
				return
			}
			shutdown()
		})
	}

	var t *tray.Tray
	if cfg.Tray {
		t = tray.New(url, hub.NewMappingSwitch(h, emu), shutdown)
		go t.Run(tray.Icon())
	} else {
		log.Info().Msg("Press Ctrl+C to exit")
	}

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down...")
	case <-shutdownRequested:
		log.Info().Msg("Shutdown requested")
	case err := <-serverErrCh:
		log.Error().Err(err).Msg("HTTP server error")
	}
	cancel()

	if t != nil {
		t.Quit()
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("xremu stopped")
}

// panelURL turns a listen address into a browsable URL.
func panelURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
