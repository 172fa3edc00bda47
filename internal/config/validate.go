package config

import (
	"fmt"
	"strings"
	"time"

	"thermo-poller/internal/model"
)

// Validate checks a normalized config. It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validateSerial(cfg.Serial); err != nil {
		return err
	}
	if err := validateBlock(cfg.Block); err != nil {
		return err
	}
	if err := validateInterval("poll_interval_ms", cfg.PollIntervalMS); err != nil {
		return err
	}
	if cfg.RefreshIntervalMS < 0 {
		return fmt.Errorf("refresh_interval_ms must be >= 0")
	}

	if len(cfg.Zones) == 0 {
		return fmt.Errorf("at least one zone is required")
	}
	zones := make(map[string]struct{}, len(cfg.Zones))
	for i, z := range cfg.Zones {
		if z.ID == "" {
			return fmt.Errorf("zones[%d]: id is required", i)
		}
		if _, dup := zones[z.ID]; dup {
			return fmt.Errorf("zones[%d]: duplicate id %q", i, z.ID)
		}
		zones[z.ID] = struct{}{}
		if err := validateLimits(z.AlarmMin, z.AlarmMax); err != nil {
			return fmt.Errorf("zone %q: %w", z.ID, err)
		}
	}

	vars := make(map[string]struct{}, len(cfg.Variables))
	for i, v := range cfg.Variables {
		if v.ID == "" {
			return fmt.Errorf("variables[%d]: id is required", i)
		}
		if _, dup := vars[v.ID]; dup {
			return fmt.Errorf("variables[%d]: duplicate id %q", i, v.ID)
		}
		vars[v.ID] = struct{}{}
		if err := validateVariable(v); err != nil {
			return fmt.Errorf("variable %q: %w", v.ID, err)
		}
		if _, ok := zones[v.ZoneID]; !ok {
			return fmt.Errorf("variable %q: unknown zone_id %q", v.ID, v.ZoneID)
		}
	}

	if err := validateLogging(cfg.Logging); err != nil {
		return err
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	if cfg.MQTT.Enabled && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported", cfg.Log.Format)
	}
	return nil
}

func validateSerial(s SerialConfig) error {
	if strings.TrimSpace(s.Port) == "" {
		return fmt.Errorf("serial.port is required")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0")
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity must be N, E or O")
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2")
	}
	if s.ByteSize != 7 && s.ByteSize != 8 {
		return fmt.Errorf("serial.byte_size must be 7 or 8")
	}
	if s.TimeoutSec <= 0 {
		return fmt.Errorf("serial.timeout_sec must be > 0")
	}
	return nil
}

func validateBlock(b BlockConfig) error {
	if b.Start != nil && (*b.Start < 0 || *b.Start > 65535) {
		return fmt.Errorf("block.start out of range")
	}
	if b.Count != nil && (*b.Count < 1 || *b.Count > 125) {
		return fmt.Errorf("block.count must be 1..125")
	}
	if b.Start != nil && b.Count != nil && *b.Start+*b.Count > 65536 {
		return fmt.Errorf("block window exceeds the register space")
	}
	return nil
}

func validateVariable(v VariableConfig) error {
	if v.Slave < 0 || v.Slave > 247 {
		return fmt.Errorf("slave must be 0..247")
	}
	if v.Address < 0 || v.Address > 65535 {
		return fmt.Errorf("address must be 0..65535")
	}
	if _, err := model.ParseRegisterKind(v.Type); err != nil {
		return err
	}
	if _, err := model.ParseDataType(v.DataType); err != nil {
		return err
	}
	if v.DecimalShift < -9 || v.DecimalShift > 9 {
		return fmt.Errorf("decimal_shift must be -9..9")
	}
	if v.Decimals != nil && (*v.Decimals < 0 || *v.Decimals > 9) {
		return fmt.Errorf("decimals must be 0..9")
	}
	if err := validateInterval("poll_interval_ms", v.PollIntervalMS); err != nil {
		return err
	}
	return validateLimits(v.AlarmMin, v.AlarmMax)
}

func validateLogging(l LoggingConfig) error {
	if _, err := model.ParseLogMode(l.Mode); err != nil {
		return err
	}
	if _, err := model.ParseSeparator(l.Separator); err != nil {
		return err
	}
	if l.Enabled && strings.TrimSpace(l.Folder) == "" {
		return fmt.Errorf("logging.folder is required when logging is enabled")
	}
	return nil
}

func validateInterval(field string, ms int) error {
	d := time.Duration(ms) * time.Millisecond
	if d < model.MinPollInterval || d > model.MaxPollInterval {
		return fmt.Errorf("%s must be %d..%d", field,
			model.MinPollInterval.Milliseconds(), model.MaxPollInterval.Milliseconds())
	}
	return nil
}

func validateLimits(lo, hi *float64) error {
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("alarm_min %.3f exceeds alarm_max %.3f", *lo, *hi)
	}
	return nil
}
