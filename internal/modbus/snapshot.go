package modbus

// Read helpers for inspecting a running slave.

import "fmt"

// Get returns the current value of one register.
func Get(s *Slave, kind string, address uint16) (uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	return regs[address], nil
}

// Window copies count registers of kind starting at start.
func Window(s *Slave, kind string, start, count uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	if int(start)+int(count) > len(regs) {
		return nil, fmt.Errorf("window %d+%d: %w", start, count, errOutOfRange)
	}
	return append([]uint16(nil), regs[start:int(start)+int(count)]...), nil
}
