package model

import (
	"fmt"
	"strings"
	"time"
)

// RegisterKind selects the Modbus read function.
type RegisterKind string

const (
	KindHolding RegisterKind = "holding" // function 0x03
	KindInput   RegisterKind = "input"   // function 0x04
)

// ParseRegisterKind accepts the config spellings of a register kind.
func ParseRegisterKind(s string) (RegisterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "holding":
		return KindHolding, nil
	case "input":
		return KindInput, nil
	default:
		return "", fmt.Errorf("unsupported register type %q", s)
	}
}

// DataType is the interpretation of a single 16-bit register.
type DataType string

const (
	Uint16 DataType = "uint16"
	Int16  DataType = "int16"
)

func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uint16":
		return Uint16, nil
	case "int16":
		return Int16, nil
	default:
		return "", fmt.Errorf("unsupported data type %q", s)
	}
}

// SerialSettings describes the RTU line shared by every slave.
type SerialSettings struct {
	Port     string
	BaudRate int
	Parity   string // N, E or O
	StopBits int
	DataBits int
	Timeout  time.Duration
}
