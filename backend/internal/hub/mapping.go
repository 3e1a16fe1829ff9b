package hub

import (
	"github.com/rs/zerolog/log"
)

// SetActionMapping applies an action mapping change and announces the
// resulting settings to every connected panel. The settings are announced
// even when persisting them failed, since the switch itself took effect.
func (h *Hub) SetActionMapping(cmd Commander, on bool) error {
	err := cmd.SetActionMapping(on)
	data, merr := marshal(NewSettingsMessage(cmd.Settings()))
	if merr != nil {
		log.Error().Err(merr).Msg("Error marshaling settings")
		return err
	}
	h.Broadcast(data)
	return err
}

// MappingSwitch toggles action mapping from outside a panel connection,
// such as the tray, and keeps connected panels in sync.
type MappingSwitch struct {
	hub *Hub
	cmd Commander
}

func NewMappingSwitch(h *Hub, cmd Commander) *MappingSwitch {
	return &MappingSwitch{hub: h, cmd: cmd}
}

// ActionMapping reports whether bound keys are intercepted.
func (s *MappingSwitch) ActionMapping() bool {
	return s.cmd.Settings().ActionMappingOn
}

func (s *MappingSwitch) SetActionMapping(on bool) error {
	return s.hub.SetActionMapping(s.cmd, on)
}
