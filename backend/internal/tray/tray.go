// Package tray shows the emulator in the system tray with a panel link and
// an action mapping switch.
package tray

import (
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"github.com/rs/zerolog/log"
)

// ShutdownFunc is called when "Exit" is clicked.
type ShutdownFunc func()

// Toggler is the action mapping switch behind the checkbox item.
type Toggler interface {
	ActionMapping() bool
	SetActionMapping(on bool) error
}

// Tray manages the system tray icon and menu.
type Tray struct {
	url          string
	toggler      Toggler
	shutdownFunc ShutdownFunc
	once         sync.Once
	shuttingDown atomic.Bool
	menuOpen     *systray.MenuItem
	menuMapping  *systray.MenuItem
	menuExit     *systray.MenuItem
}

func New(url string, toggler Toggler, shutdownFn ShutdownFunc) *Tray {
	return &Tray{
		url:          url,
		toggler:      toggler,
		shutdownFunc: shutdownFn,
	}
}

// Run initializes and runs the system tray. It blocks until Quit.
func (t *Tray) Run(iconData []byte) {
	systray.Run(func() {
		t.onReady(iconData)
	}, t.onExit)
}

// Quit removes the tray icon and unblocks Run.
func (t *Tray) Quit() {
	t.shuttingDown.Store(true)
	systray.Quit()
}

func (t *Tray) onReady(iconData []byte) {
	if iconData != nil {
		systray.SetIcon(iconData)
	}
	systray.SetTitle("xremu")
	systray.SetTooltip("xremu - " + t.url)

	t.menuOpen = systray.AddMenuItem("Open Panel", "Open the emulator panel")
	t.menuMapping = systray.AddMenuItemCheckbox("Action Mapping", "Drive the controllers from the keyboard", t.toggler.ActionMapping())
	systray.AddSeparator()
	t.menuExit = systray.AddMenuItem("Exit", "Quit application")

	go t.handleMenuClicks()

	log.Info().Msg("System tray initialized")
}

func (t *Tray) handleMenuClicks() {
	for {
		select {
		case <-t.menuOpen.ClickedCh:
			if !t.shuttingDown.Load() {
				t.openBrowser()
			}
		case <-t.menuMapping.ClickedCh:
			t.toggleMapping()
		case <-t.menuExit.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				t.once.Do(t.shutdownFunc)
				systray.Quit()
				return
			}
		}
	}
}

func (t *Tray) toggleMapping() {
	on := !t.toggler.ActionMapping()
	if err := t.toggler.SetActionMapping(on); err != nil {
		log.Warn().Err(err).Msg("Failed to persist action mapping")
	}
	if t.toggler.ActionMapping() {
		t.menuMapping.Check()
	} else {
		t.menuMapping.Uncheck()
	}
}

func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	log.Info().Msg("System tray exiting")
}

func (t *Tray) openBrowser() {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", t.url)
	case "darwin":
		cmd = exec.Command("open", t.url)
	default:
		cmd = exec.Command("xdg-open", t.url)
	}

	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to open browser")
	}
}
