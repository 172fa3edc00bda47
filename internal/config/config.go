package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"thermo-poller/internal/collector"
	"thermo-poller/internal/model"
	"thermo-poller/internal/utils"
)

// Config mirrors the YAML file.
type Config struct {
	Serial            SerialConfig     `yaml:"serial"`
	PollIntervalMS    int              `yaml:"poll_interval_ms"`
	RefreshIntervalMS int              `yaml:"refresh_interval_ms"`
	Block             BlockConfig      `yaml:"block"`
	Zones             []ZoneConfig     `yaml:"zones"`
	Variables         []VariableConfig `yaml:"variables"`
	Logging           LoggingConfig    `yaml:"logging"`
	Journal           JournalConfig    `yaml:"journal"`
	MQTT              MQTTConfig       `yaml:"mqtt"`
	Log               LogConfig        `yaml:"log"`
}

type SerialConfig struct {
	Port       string  `yaml:"port"`
	BaudRate   int     `yaml:"baud_rate"`
	Parity     string  `yaml:"parity"`    // N, E or O
	StopBits   int     `yaml:"stop_bits"` // 1 or 2
	ByteSize   int     `yaml:"byte_size"` // 7 or 8
	TimeoutSec float64 `yaml:"timeout_sec"`
}

// BlockConfig sets the anchor window; unset fields take the defaults.
type BlockConfig struct {
	Start *int `yaml:"start"`
	Count *int `yaml:"count"`
}

type ZoneConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Collapsed    bool     `yaml:"collapsed"`
	Monitor      bool     `yaml:"monitor"`
	AlarmEnabled bool     `yaml:"alarm_enabled"`
	AlarmMin     *float64 `yaml:"alarm_min"`
	AlarmMax     *float64 `yaml:"alarm_max"`
}

type VariableConfig struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Unit           string   `yaml:"unit"`
	Slave          int      `yaml:"slave"`
	Type           string   `yaml:"type"` // holding | input
	Address        int      `yaml:"address"`
	DataType       string   `yaml:"data_type"` // uint16 | int16
	Scale          *float64 `yaml:"scale"`
	DecimalShift   int      `yaml:"decimal_shift"`
	Offset         float64  `yaml:"offset"`
	Calibration    float64  `yaml:"calibration"`
	Decimals       *int     `yaml:"decimals"`
	PollIntervalMS int      `yaml:"poll_interval_ms"`
	Enabled        *bool    `yaml:"enabled"`
	ZoneID         string   `yaml:"zone_id"`
	AlarmEnabled   bool     `yaml:"alarm_enabled"`
	AlarmMin       *float64 `yaml:"alarm_min"`
	AlarmMax       *float64 `yaml:"alarm_max"`
}

type LoggingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Folder      string   `yaml:"folder"`
	Mode        string   `yaml:"mode"`         // single | daily | per_variable
	Separator   string   `yaml:"separator"`    // "," ";" or "tab"
	IntervalSec *float64 `yaml:"interval_sec"` // <= 0 disables throttling
}

// JournalConfig enables the SQLite alarm journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MQTTConfig enables publishing events and receiving acknowledgements.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// Default returns the configuration written when none exists.
func Default() *Config {
	cfg := &Config{
		Serial: SerialConfig{
			Port:       utils.DefaultSerialPort,
			BaudRate:   utils.DefaultBaudRate,
			Parity:     utils.DefaultParity,
			StopBits:   utils.DefaultStopBits,
			ByteSize:   utils.DefaultDataBits,
			TimeoutSec: utils.DefaultTimeout.Seconds(),
		},
		PollIntervalMS: int(model.DefaultPollInterval / time.Millisecond),
		Zones: []ZoneConfig{{
			Name:    DefaultZoneName,
			Monitor: true,
		}},
		Logging: LoggingConfig{
			Folder:    "logs",
			Mode:      string(model.LogPerVariable),
			Separator: ",",
		},
	}
	Normalize(cfg)
	return cfg
}

// Load reads, normalizes and validates a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML bytes, then normalizes and validates the result.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrCreate loads path, writing Default() there first when the file is missing.
// created reports whether a new file was written.
func LoadOrCreate(path string) (cfg *Config, created bool, err error) {
	cfg, err = Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	cfg = Default()
	if err := Save(path, cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SerialSettings converts the serial section.
func (c *Config) SerialSettings() model.SerialSettings {
	return model.SerialSettings{
		Port:     c.Serial.Port,
		BaudRate: c.Serial.BaudRate,
		Parity:   c.Serial.Parity,
		StopBits: c.Serial.StopBits,
		DataBits: c.Serial.ByteSize,
		Timeout:  time.Duration(c.Serial.TimeoutSec * float64(time.Second)),
	}
}

// BlockWindow returns the configured anchor window.
func (c *Config) BlockWindow() collector.BlockWindow {
	w := collector.DefaultBlockWindow()
	if c.Block.Start != nil {
		w.Start = uint16(*c.Block.Start)
	}
	if c.Block.Count != nil {
		w.Count = uint16(*c.Block.Count)
	}
	return w
}

// RefreshInterval is the consumer's wall-clock refresh period.
func (c *Config) RefreshInterval() time.Duration {
	if c.RefreshIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// LoggingSettings converts the logging section. Call after Validate.
func (c *Config) LoggingSettings() model.LoggingSettings {
	mode, _ := model.ParseLogMode(c.Logging.Mode)
	sep, _ := model.ParseSeparator(c.Logging.Separator)
	interval := model.DefaultLogInterval
	if c.Logging.IntervalSec != nil {
		interval = time.Duration(*c.Logging.IntervalSec * float64(time.Second))
	}
	return model.LoggingSettings{
		Enabled:   c.Logging.Enabled,
		Folder:    c.Logging.Folder,
		Mode:      mode,
		Separator: sep,
		Interval:  interval,
	}
}

// Snapshot builds the typed configuration shared with the worker and monitor.
// Call after Validate.
func (c *Config) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		DefaultPollInterval: time.Duration(c.PollIntervalMS) * time.Millisecond,
		Logging:             c.LoggingSettings(),
	}
	for _, z := range c.Zones {
		snap.Zones = append(snap.Zones, model.Zone{
			ID:        z.ID,
			Name:      z.Name,
			Collapsed: z.Collapsed,
			Monitor:   z.Monitor,
			Alarm:     model.AlarmLimits{Enabled: z.AlarmEnabled, Min: z.AlarmMin, Max: z.AlarmMax},
		})
	}
	for _, v := range c.Variables {
		kind, _ := model.ParseRegisterKind(v.Type)
		dt, _ := model.ParseDataType(v.DataType)
		mv := model.Variable{
			ID:           v.ID,
			Name:         v.Name,
			Unit:         v.Unit,
			Slave:        uint8(v.Slave),
			Kind:         kind,
			Address:      uint16(v.Address),
			DataType:     dt,
			Scale:        1,
			DecimalShift: v.DecimalShift,
			Offset:       v.Offset,
			Calibration:  v.Calibration,
			PollInterval: time.Duration(v.PollIntervalMS) * time.Millisecond,
			Enabled:      v.Enabled == nil || *v.Enabled,
			ZoneID:       v.ZoneID,
			Alarm:        model.AlarmLimits{Enabled: v.AlarmEnabled, Min: v.AlarmMin, Max: v.AlarmMax},
		}
		if v.Scale != nil {
			mv.Scale = *v.Scale
		}
		if v.Decimals != nil {
			mv.Decimals = *v.Decimals
		}
		snap.Variables = append(snap.Variables, mv)
	}
	return snap
}
