package service

import "github.com/alanyoungcy/pairarb/internal/domain"

// Reasons recorded when the kill switch engages.
const (
	ReasonManual         = "manual activation"
	ReasonDailyLossLimit = "daily loss limit exceeded"
	ReasonLowBalance     = "low balance warning"
)

// KillSwitchState is either Trading or Halted with a reason.
type KillSwitchState struct {
	Halted bool
	Reason string
}

// Trading is the state in which new trades may be gated through.
func Trading() KillSwitchState { return KillSwitchState{} }

// Halted is the state in which every gate denies.
func Halted(reason string) KillSwitchState { return KillSwitchState{Halted: true, Reason: reason} }

// StateOf reads the kill switch out of persisted settings.
func StateOf(s domain.Settings) KillSwitchState {
	if !s.KillSwitch {
		return Trading()
	}
	return Halted(s.KillSwitchReason)
}

// KillSwitchCommand is an input to the kill switch state machine.
type KillSwitchCommand struct {
	Kind   KillSwitchCommandKind
	Reason string
}

// KillSwitchCommandKind enumerates the commands.
type KillSwitchCommandKind int

const (
	CommandActivate KillSwitchCommandKind = iota
	CommandDeactivate
	CommandToggle
)

// Activate returns an activation command.
func Activate(reason string) KillSwitchCommand {
	return KillSwitchCommand{Kind: CommandActivate, Reason: reason}
}

// Deactivate returns a deactivation command.
func Deactivate() KillSwitchCommand { return KillSwitchCommand{Kind: CommandDeactivate} }

// Toggle returns a toggle command.
func Toggle() KillSwitchCommand { return KillSwitchCommand{Kind: CommandToggle} }

// KillSwitchEffects lists what the caller must do after a transition.
type KillSwitchEffects struct {
	// Persist is true when the stored flag or reason changes.
	Persist bool
	// Sweep cancels exchange orders and clears pending opportunities.
	Sweep bool
	// Alert is the severity of the alert to raise, empty for none.
	Alert domain.AlertSeverity
	// Event is the notification to emit, empty for none.
	Event domain.EventName
}

// Transition is the single authority over kill switch state. Activating an
// already halted switch only re-records the reason; deactivating a trading
// switch does nothing.
func Transition(cur KillSwitchState, cmd KillSwitchCommand) (KillSwitchState, KillSwitchEffects) {
	if cmd.Kind == CommandToggle {
		if cur.Halted {
			cmd = Deactivate()
		} else {
			cmd = Activate(ReasonManual)
		}
	}

	switch cmd.Kind {
	case CommandActivate:
		reason := cmd.Reason
		if reason == "" {
			reason = ReasonManual
		}
		if cur.Halted {
			return Halted(reason), KillSwitchEffects{Persist: reason != cur.Reason}
		}
		return Halted(reason), KillSwitchEffects{
			Persist: true,
			Sweep:   true,
			Alert:   domain.SeverityCritical,
			Event:   domain.EventKillSwitchActivated,
		}
	case CommandDeactivate:
		if !cur.Halted {
			return cur, KillSwitchEffects{}
		}
		return Trading(), KillSwitchEffects{
			Persist: true,
			Alert:   domain.SeverityInfo,
			Event:   domain.EventKillSwitchDeactivated,
		}
	}
	return cur, KillSwitchEffects{}
}
