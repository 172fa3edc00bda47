package model

import "time"

const (
	// MinPollInterval is the fastest a single variable may be sampled.
	MinPollInterval = 100 * time.Millisecond
	// MaxPollInterval caps configured intervals.
	MaxPollInterval = 60 * time.Second
	// DefaultPollInterval applies when neither the variable nor the config sets one.
	DefaultPollInterval = time.Second
)

// AlarmLimits holds an alarm threshold pair. A nil bound is unbounded on that side.
type AlarmLimits struct {
	Enabled bool
	Min     *float64
	Max     *float64
}

// Violated reports whether value lies outside the configured bounds.
// Disabled limits never trip.
func (l AlarmLimits) Violated(value float64) bool {
	if !l.Enabled {
		return false
	}
	if l.Min != nil && value < *l.Min {
		return true
	}
	if l.Max != nil && value > *l.Max {
		return true
	}
	return false
}

// Variable binds a named measurement to one register on one slave.
type Variable struct {
	ID           string
	Name         string
	Unit         string
	Slave        uint8
	Kind         RegisterKind
	Address      uint16
	DataType     DataType
	Scale        float64
	DecimalShift int
	Offset       float64
	Calibration  float64
	Decimals     int
	PollInterval time.Duration
	Enabled      bool
	ZoneID       string
	Alarm        AlarmLimits
}

// Interval returns the variable's poll interval, falling back to def when unset.
func (v Variable) Interval(def time.Duration) time.Duration {
	if v.PollInterval > 0 {
		return v.PollInterval
	}
	if def > 0 {
		return def
	}
	return DefaultPollInterval
}

// Zone groups variables for aggregation and zone-level alarms.
type Zone struct {
	ID        string
	Name      string
	Collapsed bool
	Monitor   bool
	Alarm     AlarmLimits
}

// Snapshot is an immutable configuration handed across goroutines by value.
type Snapshot struct {
	Variables           []Variable
	Zones               []Zone
	DefaultPollInterval time.Duration
	Logging             LoggingSettings
}

// Clone returns a copy whose slices are not shared with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Variables = append([]Variable(nil), s.Variables...)
	out.Zones = append([]Zone(nil), s.Zones...)
	return out
}
