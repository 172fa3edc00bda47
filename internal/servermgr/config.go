package servermgr

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thermo-poller/internal/modbus"
	"thermo-poller/internal/utils"
)

// Config describes a simulated serial line with one or more temperature
// controllers behind it.
type Config struct {
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
	DataBits   int    `yaml:"data_bits"`
	StopBits   int    `yaml:"stop_bits"`
	Parity     string `yaml:"parity"`

	// Optional: auto-create a virtual serial pair via socat (Unix-like systems)
	SpawnSocat bool   `yaml:"spawn_socat"`
	SocatLink  string `yaml:"socat_link"`
	SocatPeer  string `yaml:"socat_peer"`

	UpdateInterval time.Duration `yaml:"update_interval"`
	Seed           int64         `yaml:"seed"`
	Slaves         []SlaveConfig `yaml:"slaves"`
}

type SlaveConfig struct {
	ID uint8 `yaml:"id"`
	// Readable, when set, is the only range the slave answers; anything
	// else gets exception 0x02.
	Readable  *RangeConfig     `yaml:"readable"`
	Registers []RegisterConfig `yaml:"registers"`
}

type RangeConfig struct {
	Start uint16 `yaml:"start"`
	Count uint16 `yaml:"count"`
}

// RegisterConfig seeds one register. Drift > 0 makes the value random-walk
// by at most Drift per update, staying within Value ± 10*Drift.
type RegisterConfig struct {
	Kind    string `yaml:"kind"`
	Address uint16 `yaml:"address"`
	Value   int    `yaml:"value"`
	Drift   int    `yaml:"drift"`
}

// LoadConfig reads a simulator YAML file and fills defaults.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 5 * time.Second
	}
	if c.SpawnSocat && c.SerialPort == "" {
		c.SerialPort = c.SocatLink
	}
	if len(c.Slaves) == 0 {
		return fmt.Errorf("config has no slaves")
	}
	seen := make(map[uint8]bool)
	for i := range c.Slaves {
		s := &c.Slaves[i]
		if s.ID == 0 {
			s.ID = 1
		}
		if s.ID > 247 {
			return fmt.Errorf("slave id %d out of range", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate slave id %d", s.ID)
		}
		seen[s.ID] = true
		for j := range s.Registers {
			r := &s.Registers[j]
			r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
			if r.Kind == "" {
				r.Kind = modbus.Holding
			}
			if r.Kind != modbus.Holding && r.Kind != modbus.Input {
				return fmt.Errorf("slave %d register %d: unsupported kind %q", s.ID, r.Address, r.Kind)
			}
		}
	}
	return nil
}

// SerialParams returns the line settings with defaults applied.
func (c Config) SerialParams() utils.SerialParams {
	sp := utils.SerialParams{
		Address:  c.SerialPort,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  10 * time.Second,
	}
	utils.EnsureSerialDefaults(&sp)
	return sp
}
