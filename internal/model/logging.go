package model

import (
	"fmt"
	"strings"
	"time"
)

// LogMode picks how history CSV files are split on disk.
type LogMode string

const (
	LogSingle      LogMode = "single"
	LogDaily       LogMode = "daily"
	LogPerVariable LogMode = "per_variable"
)

func ParseLogMode(s string) (LogMode, error) {
	switch LogMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LogPerVariable:
		return LogPerVariable, nil
	case LogSingle:
		return LogSingle, nil
	case LogDaily:
		return LogDaily, nil
	default:
		return "", fmt.Errorf("unsupported logging mode %q", s)
	}
}

// ParseSeparator maps the config value to a CSV field separator.
// "tab" and "\t" both select a tab.
func ParseSeparator(s string) (rune, error) {
	switch s {
	case "", ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", "tab", `\t`:
		return '\t', nil
	default:
		return 0, fmt.Errorf("unsupported separator %q", s)
	}
}

const DefaultLogInterval = 10 * time.Second

// LoggingSettings configures the history CSV logger.
type LoggingSettings struct {
	Enabled   bool
	Folder    string
	Mode      LogMode
	Separator rune
	Interval  time.Duration
}

// AlarmState is the transition recorded for an alarm.
type AlarmState string

const (
	AlarmRaised  AlarmState = "RAISED"
	AlarmCleared AlarmState = "CLEARED"
	AlarmAcked   AlarmState = "ACKED"
)

// AlarmEvent records one alarm transition for a journal.
type AlarmEvent struct {
	At      time.Time  `json:"at"`
	AlarmID string     `json:"alarm_id"`
	Title   string     `json:"title"`
	State   AlarmState `json:"state"`
	Value   *float64   `json:"value,omitempty"`
}
