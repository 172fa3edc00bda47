package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermo-poller/internal/model"
)

const sampleYAML = `
serial:
  port: /dev/ttyUSB0
  baud_rate: 19200
  parity: e
  stop_bits: 1
  byte_size: 8
  timeout_sec: 0.5
poll_interval_ms: 500
block:
  start: 200
  count: 4
zones:
  - id: z1
    name: Hornos
    monitor: true
    alarm_enabled: true
    alarm_max: 80
variables:
  - id: t1
    name: Horno 1
    unit: "°C"
    slave: 3
    type: input
    address: 201
    data_type: int16
    decimal_shift: 1
    zone_id: z1
    alarm_enabled: true
    alarm_min: 10
    alarm_max: 90
  - id: t2
    name: Horno 2
    slave: 3
    address: 202
    poll_interval_ms: 20
    zone_id: missing
logging:
  enabled: true
  folder: hist
  mode: daily
  separator: tab
  interval_sec: 0
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "E", cfg.Serial.Parity)
	require.Equal(t, uint16(200), cfg.BlockWindow().Start)
	require.Equal(t, uint16(4), cfg.BlockWindow().Count)

	snap := cfg.Snapshot()
	require.Len(t, snap.Variables, 2)
	require.Equal(t, 500*time.Millisecond, snap.DefaultPollInterval)

	t1 := snap.Variables[0]
	require.Equal(t, model.KindInput, t1.Kind)
	require.Equal(t, model.Int16, t1.DataType)
	require.Equal(t, uint8(3), t1.Slave)
	require.Equal(t, 1.0, t1.Scale)
	require.Equal(t, 1, t1.Decimals)
	require.True(t, t1.Enabled)
	require.Equal(t, 500*time.Millisecond, t1.PollInterval)
	require.True(t, t1.Alarm.Violated(95))

	t2 := snap.Variables[1]
	require.Equal(t, model.KindHolding, t2.Kind)
	require.Equal(t, "z1", t2.ZoneID, "orphan zone reference moves to the first zone")
	require.Equal(t, model.MinPollInterval, t2.PollInterval)

	logs := snap.Logging
	require.True(t, logs.Enabled)
	require.Equal(t, model.LogDaily, logs.Mode)
	require.Equal(t, '\t', logs.Separator)
	require.Equal(t, time.Duration(0), logs.Interval)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{Variables: []VariableConfig{{Slave: 1, Address: 104}}}
	require.True(t, Normalize(cfg))

	require.Len(t, cfg.Zones, 1)
	require.Equal(t, DefaultZoneName, cfg.Zones[0].Name)
	require.True(t, cfg.Zones[0].Monitor)
	require.NotEmpty(t, cfg.Zones[0].ID)

	v := cfg.Variables[0]
	require.NotEmpty(t, v.ID)
	require.Equal(t, v.ID, v.Name)
	require.Equal(t, cfg.Zones[0].ID, v.ZoneID)
	require.Equal(t, 1000, v.PollIntervalMS)
	require.Equal(t, "COM3", cfg.Serial.Port)
	require.Equal(t, 9600, cfg.Serial.BaudRate)
	require.Equal(t, 10.0, *cfg.Logging.IntervalSec)

	require.NoError(t, Validate(cfg))
	require.False(t, Normalize(cfg), "second pass is a no-op")
}

func TestNormalizeClampsPollInterval(t *testing.T) {
	cfg := &Config{PollIntervalMS: 120000}
	Normalize(cfg)
	require.Equal(t, 60000, cfg.PollIntervalMS)
}

func TestNormalizeNamesEmptyZone(t *testing.T) {
	cfg := &Config{Zones: []ZoneConfig{{ID: "z"}}}
	Normalize(cfg)
	require.Equal(t, "Zone", cfg.Zones[0].Name)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"parity":         func(c *Config) { c.Serial.Parity = "X" },
		"stop bits":      func(c *Config) { c.Serial.StopBits = 3 },
		"byte size":      func(c *Config) { c.Serial.ByteSize = 6 },
		"block count":    func(c *Config) { n := 200; c.Block.Count = &n },
		"slave":          func(c *Config) { c.Variables[0].Slave = 248 },
		"negative slave": func(c *Config) { c.Variables[0].Slave = -1 },
		"address":        func(c *Config) { c.Variables[0].Address = 70000 },
		"kind":           func(c *Config) { c.Variables[0].Type = "coil" },
		"data type":      func(c *Config) { c.Variables[0].DataType = "float32" },
		"duplicate id":   func(c *Config) { c.Variables = append(c.Variables, c.Variables[0]) },
		"unknown zone":   func(c *Config) { c.Variables[0].ZoneID = "nope" },
		"inverted alarm": func(c *Config) { lo, hi := 5.0, 1.0; c.Variables[0].AlarmMin, c.Variables[0].AlarmMax = &lo, &hi },
		"log mode":       func(c *Config) { c.Logging.Mode = "hourly" },
		"separator":      func(c *Config) { c.Logging.Separator = "|" },
		"mqtt broker":    func(c *Config) { c.MQTT.Enabled = true },
		"mqtt qos":       func(c *Config) { c.MQTT.QoS = 3 },
		"log level":      func(c *Config) { c.Log.Level = "trace" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{Variables: []VariableConfig{{ID: "v", Slave: 1, Address: 104}}}
			Normalize(cfg)
			require.NoError(t, Validate(cfg))
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestSlaveAddressZeroAccepted(t *testing.T) {
	cfg, err := Parse([]byte("variables:\n  - id: v1\n    slave: 0\n    address: 104\n"))
	require.NoError(t, err)
	require.Equal(t, uint8(0), cfg.Snapshot().Variables[0].Slave)

	cfg.Variables[0].Slave = 247
	require.NoError(t, Validate(cfg))
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := &Config{}
	require.Error(t, Validate(cfg))
	require.Empty(t, cfg.Zones)
	require.Empty(t, cfg.Serial.Port)
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "thermo.yaml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, cfg.Zones, 1)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, cfg.Zones[0].ID, again.Zones[0].ID)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: [\n"), 0o644))
	_, _, err := LoadOrCreate(path)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermo.yaml")
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Save(path, cfg))

	back, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Snapshot(), back.Snapshot())
}

func TestRefreshIntervalDefault(t *testing.T) {
	require.Equal(t, time.Second, (&Config{}).RefreshInterval())
	require.Equal(t, 250*time.Millisecond, (&Config{RefreshIntervalMS: 250}).RefreshInterval())
}
