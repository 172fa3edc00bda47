package config

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"thermo-poller/internal/model"
	"thermo-poller/internal/utils"
)

const (
	DefaultZoneName = "General"
	unnamedZone     = "Zone"
	defaultDecimals = 1
)

// Normalize fills defaults and repairs references. It mutates cfg and runs
// before Validate. It reports whether anything changed, so callers can
// persist the repaired file.
//
//   - at least one zone exists
//   - every zone and variable has an ID
//   - variables pointing at an unknown zone move to the first zone
//   - poll intervals are clamped to [100 ms, 60 s]
func Normalize(cfg *Config) (changed bool) {
	if cfg == nil {
		return false
	}

	// serial
	sp := utils.FromSettings(cfg.SerialSettings())
	if cfg.Serial.Port != sp.Address || cfg.Serial.BaudRate != sp.BaudRate ||
		cfg.Serial.Parity != sp.Parity || cfg.Serial.StopBits != sp.StopBits ||
		cfg.Serial.ByteSize != sp.DataBits || cfg.Serial.TimeoutSec <= 0 {
		changed = true
	}
	cfg.Serial.Port = sp.Address
	cfg.Serial.BaudRate = sp.BaudRate
	cfg.Serial.Parity = sp.Parity
	cfg.Serial.StopBits = sp.StopBits
	cfg.Serial.ByteSize = sp.DataBits
	cfg.Serial.TimeoutSec = sp.Timeout.Seconds()

	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = int(model.DefaultPollInterval / time.Millisecond)
		changed = true
	}
	if c := clampInterval(cfg.PollIntervalMS); c != cfg.PollIntervalMS {
		cfg.PollIntervalMS = c
		changed = true
	}

	// zones
	if len(cfg.Zones) == 0 {
		cfg.Zones = []ZoneConfig{{Name: DefaultZoneName, Monitor: true}}
		changed = true
	}
	zoneIDs := make(map[string]struct{}, len(cfg.Zones))
	for i := range cfg.Zones {
		z := &cfg.Zones[i]
		if strings.TrimSpace(z.ID) == "" {
			z.ID = uuid.NewString()
			changed = true
		}
		if strings.TrimSpace(z.Name) == "" {
			z.Name = unnamedZone
			changed = true
		}
		zoneIDs[z.ID] = struct{}{}
	}
	firstZone := cfg.Zones[0].ID

	// variables
	for i := range cfg.Variables {
		v := &cfg.Variables[i]
		if strings.TrimSpace(v.ID) == "" {
			v.ID = uuid.NewString()
			changed = true
		}
		if strings.TrimSpace(v.Name) == "" {
			v.Name = v.ID
			changed = true
		}
		if v.Type == "" {
			v.Type = string(model.KindHolding)
			changed = true
		}
		if v.DataType == "" {
			v.DataType = string(model.Uint16)
			changed = true
		}
		if v.Scale == nil {
			one := 1.0
			v.Scale = &one
			changed = true
		}
		if v.Decimals == nil {
			d := defaultDecimals
			v.Decimals = &d
			changed = true
		}
		if v.Enabled == nil {
			on := true
			v.Enabled = &on
			changed = true
		}
		if v.PollIntervalMS <= 0 {
			v.PollIntervalMS = cfg.PollIntervalMS
			changed = true
		}
		if c := clampInterval(v.PollIntervalMS); c != v.PollIntervalMS {
			v.PollIntervalMS = c
			changed = true
		}
		if _, ok := zoneIDs[v.ZoneID]; !ok {
			v.ZoneID = firstZone
			changed = true
		}
	}

	// logging
	if strings.TrimSpace(cfg.Logging.Folder) == "" {
		cfg.Logging.Folder = "logs"
		changed = true
	}
	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = string(model.LogPerVariable)
		changed = true
	}
	if cfg.Logging.Separator == "" {
		cfg.Logging.Separator = ","
		changed = true
	}
	if cfg.Logging.IntervalSec == nil {
		sec := model.DefaultLogInterval.Seconds()
		cfg.Logging.IntervalSec = &sec
		changed = true
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = "alarms.db"
		changed = true
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "thermo"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "thermo-poller"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	return changed
}

func clampInterval(ms int) int {
	lo := int(model.MinPollInterval / time.Millisecond)
	hi := int(model.MaxPollInterval / time.Millisecond)
	if ms < lo {
		return lo
	}
	if ms > hi {
		return hi
	}
	return ms
}
