// Package hostkbd captures the host keyboard through a small SDL window and
// feeds the key events into the emulator.
package hostkbd

import (
	"context"
	"errors"
	"runtime"

	"github.com/jupiterrider/purego-sdl3/sdl"
	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/keyname"
)

const pollDelayNS = 8_000_000

// Handler receives captured keys.
type Handler interface {
	KeyEvent(ev keyboard.Event) bool
	Blur()
}

// Window is the focusable capture window. Keys are only seen while it has
// focus, and losing focus releases every held direction.
type Window struct {
	title   string
	handler Handler
}

func New(title string, handler Handler) *Window {
	return &Window{title: title, handler: handler}
}

// Run opens the window and pumps SDL events until ctx is cancelled or the
// window is closed. SDL requires the calling goroutine to stay on one thread.
func (w *Window) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !sdl.Init(sdl.InitVideo) {
		return errors.New("SDL init failed: " + sdl.GetError())
	}
	defer sdl.Quit()

	win := sdl.CreateWindow(w.title, 480, 120, 0)
	if win == nil {
		return errors.New("SDL window creation failed: " + sdl.GetError())
	}
	defer sdl.DestroyWindow(win)

	log.Info().Str("title", w.title).Msg("Host keyboard window opened")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !w.processEvents() {
			log.Info().Msg("Host keyboard window closed")
			return nil
		}
		sdl.DelayNS(pollDelayNS)
	}
}

// processEvents drains the SDL queue. It returns false once the window was
// closed.
func (w *Window) processEvents() bool {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventQuit:
			w.handler.Blur()
			return false

		case sdl.EventKeyDown, sdl.EventKeyUp:
			ke := event.Key()
			ev, ok := keyname.Translate(sdl.GetKeyName(ke.Key), event.Type() == sdl.EventKeyDown, ke.Repeat)
			if !ok {
				continue
			}
			handled := w.handler.KeyEvent(ev)
			log.Debug().Str("key", ev.Key).Str("type", string(ev.Type)).Bool("handled", handled).Msg("Host key")

		case sdl.EventWindowFocusLost:
			w.handler.Blur()
		}
	}
	return true
}
