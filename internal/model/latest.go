package model

import "time"

// EventKind tags what an Event carries.
type EventKind int

const (
	EventValueUpdated EventKind = iota + 1
	EventVariableError
	EventConnectionState
)

func (k EventKind) String() string {
	switch k {
	case EventValueUpdated:
		return "value_updated"
	case EventVariableError:
		return "variable_error"
	case EventConnectionState:
		return "connection_state"
	default:
		return "unknown"
	}
}

// Event is emitted by the acquisition worker in the order readings complete.
type Event struct {
	Kind       EventKind
	VariableID string
	Value      float64
	Raw        uint16
	Message    string
	Connected  bool
	At         time.Time
}

func ValueUpdated(id string, value float64, raw uint16, at time.Time) Event {
	return Event{Kind: EventValueUpdated, VariableID: id, Value: value, Raw: raw, At: at}
}

func VariableError(id, message string, at time.Time) Event {
	return Event{Kind: EventVariableError, VariableID: id, Message: message, At: at}
}

func ConnectionState(connected bool, message string, at time.Time) Event {
	return Event{Kind: EventConnectionState, Connected: connected, Message: message, At: at}
}
