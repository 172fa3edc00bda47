package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Register table names used in simulator configs.
const (
	Holding = "holding"
	Input   = "input"
)

const (
	fcReadHolding = 0x03
	fcReadInput   = 0x04

	excIllegalFunction = 0x01
	excIllegalAddress  = 0x02
	excIllegalValue    = 0x03

	maxReadQuantity = 125
	tableSize       = 1 << 16
)

var (
	errOutOfRange = errors.New("out of range")
	errQuantity   = errors.New("invalid quantity")
	errShortPDU   = errors.New("short pdu")
)

// Range is a contiguous register range [Start, Start+Count).
type Range struct {
	Start uint16
	Count uint16
}

func (r Range) covers(start, quantity uint16) bool {
	return int(start) >= int(r.Start) && int(start)+int(quantity) <= int(r.Start)+int(r.Count)
}

// Slave is an in-memory RTU slave answering read holding (0x03) and read
// input (0x04) requests. When a readable range is set, requests that do not
// fall entirely inside it get an illegal data address exception, the way
// real temperature controllers reject reads past their register map.
type Slave struct {
	ID uint8

	mu       sync.RWMutex
	holding  []uint16
	input    []uint16
	readable *Range
}

// NewSlave constructs a slave with the full 16-bit register space.
func NewSlave(id uint8) *Slave {
	return &Slave{
		ID:      id,
		holding: make([]uint16, tableSize),
		input:   make([]uint16, tableSize),
	}
}

// SetReadable restricts reads to r.
func (s *Slave) SetReadable(r Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readable = &r
}

func (s *Slave) table(kind string) ([]uint16, error) {
	switch kind {
	case Holding:
		return s.holding, nil
	case Input:
		return s.input, nil
	default:
		return nil, fmt.Errorf("unsupported register kind %q", kind)
	}
}

// HandlePDU returns the response PDU for a request PDU (function code + data).
func (s *Slave) HandlePDU(pdu []byte) []byte {
	if len(pdu) == 0 {
		return exceptionResponse(0, excIllegalFunction)
	}
	fc := pdu[0]
	var kind string
	switch fc {
	case fcReadHolding:
		kind = Holding
	case fcReadInput:
		kind = Input
	default:
		return exceptionResponse(fc, excIllegalFunction)
	}
	data, err := s.read(kind, pdu[1:])
	if err != nil {
		return exceptionResponse(fc, errToCode(err))
	}
	return append([]byte{fc, byte(len(data))}, data...)
}

// read serves the request body (start, quantity) from a table.
func (s *Slave) read(kind string, req []byte) ([]byte, error) {
	if len(req) < 4 {
		return nil, errShortPDU
	}
	start := binary.BigEndian.Uint16(req[0:2])
	quantity := binary.BigEndian.Uint16(req[2:4])
	if quantity == 0 || quantity > maxReadQuantity {
		return nil, errQuantity
	}
	if int(start)+int(quantity) > tableSize {
		return nil, errOutOfRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readable != nil && !s.readable.covers(start, quantity) {
		return nil, errOutOfRange
	}
	src, _ := s.table(kind)
	out := make([]byte, 0, 2*int(quantity))
	for _, v := range src[start : int(start)+int(quantity)] {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out, nil
}

func exceptionResponse(fc byte, code byte) []byte {
	return []byte{fc | 0x80, code}
}

func errToCode(err error) byte {
	switch {
	case errors.Is(err, errOutOfRange):
		return excIllegalAddress
	case errors.Is(err, errQuantity), errors.Is(err, errShortPDU):
		return excIllegalValue
	default:
		return excIllegalFunction
	}
}

// Set writes a register of the given kind.
func (s *Slave) Set(kind string, address uint16, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs, err := s.table(kind)
	if err != nil {
		return err
	}
	regs[address] = value
	return nil
}

// Add shifts a register by delta, wrapping like the 16-bit device counter it models.
func (s *Slave) Add(kind string, address uint16, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs, err := s.table(kind)
	if err != nil {
		return err
	}
	regs[address] = uint16(int(regs[address]) + delta)
	return nil
}
