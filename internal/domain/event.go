package domain

import "time"

// EventName identifies an outbound notification.
type EventName string

const (
	EventOpportunityNew        EventName = "opportunity:new"
	EventTradeCreated          EventName = "trade:created"
	EventTradeSettled          EventName = "trade:settled"
	EventTradeCancelled        EventName = "trade:cancelled"
	EventAlertNew              EventName = "alert:new"
	EventKillSwitchActivated   EventName = "kill_switch:activated"
	EventKillSwitchDeactivated EventName = "kill_switch:deactivated"
	EventBalanceUpdate         EventName = "balance:update"
	EventSettingsChanged       EventName = "settings:changed"
)

// AllEvents lists every event name in emission-agnostic order.
var AllEvents = []EventName{
	EventOpportunityNew,
	EventTradeCreated,
	EventTradeSettled,
	EventTradeCancelled,
	EventAlertNew,
	EventKillSwitchActivated,
	EventKillSwitchDeactivated,
	EventBalanceUpdate,
	EventSettingsChanged,
}

// Event is one entry of the outbound notification stream.
type Event struct {
	Name      EventName `json:"event"`
	AccountID string    `json:"account_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink accepts outbound events. Emit must not block the caller.
type EventSink interface {
	Emit(ev Event)
}
