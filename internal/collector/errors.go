package collector

import (
	"errors"
	"fmt"

	"thermo-poller/internal/model"
)

var (
	// ErrBlockUnresolved is returned while no register offset is known for a (slave, kind) block.
	ErrBlockUnresolved = errors.New("no block map")
	// ErrAddressOutOfBlock means the variable's index fell past the registers a block read returned.
	ErrAddressOutOfBlock = errors.New("address out of block")
	// ErrIncompleteResponse means a slave answered with fewer registers than requested.
	ErrIncompleteResponse = errors.New("incomplete response")
	// ErrSessionClosed is returned by reads after Close.
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionError is fatal: the serial port could not be opened.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open serial port %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadError wraps a failed register read.
type ReadError struct {
	Slave   uint8
	Kind    model.RegisterKind
	Address uint16
	Count   uint16
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s slave=%d addr=%d count=%d: %v", e.Kind, e.Slave, e.Address, e.Count, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
