package service

import (
	"testing"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name      string
		cur       KillSwitchState
		cmd       KillSwitchCommand
		wantState KillSwitchState
		wantFx    KillSwitchEffects
	}{
		{
			name:      "activate from trading",
			cur:       Trading(),
			cmd:       Activate(ReasonDailyLossLimit),
			wantState: Halted(ReasonDailyLossLimit),
			wantFx: KillSwitchEffects{
				Persist: true,
				Sweep:   true,
				Alert:   domain.SeverityCritical,
				Event:   domain.EventKillSwitchActivated,
			},
		},
		{
			name:      "activate without reason defaults to manual",
			cur:       Trading(),
			cmd:       Activate(""),
			wantState: Halted(ReasonManual),
			wantFx: KillSwitchEffects{
				Persist: true,
				Sweep:   true,
				Alert:   domain.SeverityCritical,
				Event:   domain.EventKillSwitchActivated,
			},
		},
		{
			name:      "activate while halted with same reason",
			cur:       Halted(ReasonManual),
			cmd:       Activate(ReasonManual),
			wantState: Halted(ReasonManual),
		},
		{
			name:      "activate while halted records new reason",
			cur:       Halted(ReasonManual),
			cmd:       Activate(ReasonLowBalance),
			wantState: Halted(ReasonLowBalance),
			wantFx:    KillSwitchEffects{Persist: true},
		},
		{
			name:      "deactivate from halted",
			cur:       Halted(ReasonLowBalance),
			cmd:       Deactivate(),
			wantState: Trading(),
			wantFx: KillSwitchEffects{
				Persist: true,
				Alert:   domain.SeverityInfo,
				Event:   domain.EventKillSwitchDeactivated,
			},
		},
		{
			name:      "deactivate while trading",
			cur:       Trading(),
			cmd:       Deactivate(),
			wantState: Trading(),
		},
		{
			name:      "toggle from trading",
			cur:       Trading(),
			cmd:       Toggle(),
			wantState: Halted(ReasonManual),
			wantFx: KillSwitchEffects{
				Persist: true,
				Sweep:   true,
				Alert:   domain.SeverityCritical,
				Event:   domain.EventKillSwitchActivated,
			},
		},
		{
			name:      "toggle from halted",
			cur:       Halted(ReasonDailyLossLimit),
			cmd:       Toggle(),
			wantState: Trading(),
			wantFx: KillSwitchEffects{
				Persist: true,
				Alert:   domain.SeverityInfo,
				Event:   domain.EventKillSwitchDeactivated,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fx := Transition(tt.cur, tt.cmd)
			if got != tt.wantState {
				t.Fatalf("state=%+v want %+v", got, tt.wantState)
			}
			if fx != tt.wantFx {
				t.Fatalf("effects=%+v want %+v", fx, tt.wantFx)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	if s := StateOf(domain.Settings{}); s.Halted {
		t.Fatalf("state=%+v want trading", s)
	}
	s := StateOf(domain.Settings{KillSwitch: true, KillSwitchReason: ReasonLowBalance})
	if s != Halted(ReasonLowBalance) {
		t.Fatalf("state=%+v want halted %q", s, ReasonLowBalance)
	}
}
