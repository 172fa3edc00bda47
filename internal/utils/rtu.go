package utils

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/goburrow/serial"

	"thermo-poller/internal/model"
)

// Serial line defaults used when a field is left empty.
const (
	DefaultSerialPort = "COM3"
	DefaultBaudRate   = 9600
	DefaultDataBits   = 8
	DefaultStopBits   = 1
	DefaultParity     = "N"
	DefaultTimeout    = time.Second
)

type SerialParams struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// FromSettings converts model settings and fills defaults.
func FromSettings(s model.SerialSettings) SerialParams {
	sp := SerialParams{
		Address:  s.Port,
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		StopBits: s.StopBits,
		Parity:   s.Parity,
		Timeout:  s.Timeout,
	}
	EnsureSerialDefaults(&sp)
	return sp
}

func EnsureSerialDefaults(sp *SerialParams) {
	if strings.TrimSpace(sp.Address) == "" {
		sp.Address = DefaultSerialPort
	}
	if sp.BaudRate == 0 {
		sp.BaudRate = DefaultBaudRate
	}
	if sp.DataBits == 0 {
		sp.DataBits = DefaultDataBits
	}
	if sp.StopBits == 0 {
		sp.StopBits = DefaultStopBits
	}
	sp.Parity = strings.ToUpper(strings.TrimSpace(sp.Parity))
	if sp.Parity == "" {
		sp.Parity = DefaultParity
	}
	if sp.Timeout <= 0 {
		sp.Timeout = DefaultTimeout
	}
}

// Config builds the goburrow serial configuration.
func (sp SerialParams) Config() serial.Config {
	return serial.Config{
		Address:  sp.Address,
		BaudRate: sp.BaudRate,
		DataBits: sp.DataBits,
		StopBits: sp.StopBits,
		Parity:   sp.Parity,
		Timeout:  sp.Timeout,
	}
}

func OpenSerial(sp SerialParams) (io.ReadWriteCloser, error) {
	EnsureSerialDefaults(&sp)
	sc := sp.Config()
	return serial.Open(&sc)
}

// SocatPair names the two ends of a virtual serial link.
type SocatPair struct {
	Link string
	Peer string
}

func BuildSocatPairCmd(ctx context.Context, pair SocatPair) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "socat",
		"-d", "-d",
		"pty,raw,echo=0,link="+pair.Link,
		"pty,raw,echo=0,link="+pair.Peer,
	)
	return cmd
}
