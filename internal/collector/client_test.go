package collector

import (
	"errors"
	"testing"
	"time"

	mb "github.com/goburrow/modbus"
	"github.com/stretchr/testify/require"

	"thermo-poller/internal/model"
)

type fakeRegisterReader struct {
	holding  []byte
	input    []byte
	err      error
	lastAddr uint16
	lastQty  uint16
	lastFn   string
}

func (f *fakeRegisterReader) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.lastFn, f.lastAddr, f.lastQty = "holding", address, quantity
	return f.holding, f.err
}

func (f *fakeRegisterReader) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	f.lastFn, f.lastAddr, f.lastQty = "input", address, quantity
	return f.input, f.err
}

func TestEffectiveTimeout(t *testing.T) {
	require.Equal(t, MaxIOTimeout, EffectiveTimeout(0))
	require.Equal(t, MaxIOTimeout, EffectiveTimeout(time.Second))
	require.Equal(t, 50*time.Millisecond, EffectiveTimeout(50*time.Millisecond))
}

func TestSessionRoutesByKindAndSlave(t *testing.T) {
	r := &fakeRegisterReader{
		holding: []byte{0x00, 0xFA, 0x01, 0x00},
		input:   []byte{0xFF, 0xFF},
	}
	s := newSession(r, nil)
	var slaves []uint8
	s.setSlave = func(id uint8) { slaves = append(slaves, id) }

	regs, err := s.ReadBlock(3, model.KindHolding, 104, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{250, 256}, regs)
	require.Equal(t, "holding", r.lastFn)
	require.Equal(t, uint16(104), r.lastAddr)
	require.Equal(t, uint16(2), r.lastQty)

	v, err := s.ReadSingle(7, model.KindInput, 30)
	require.NoError(t, err)
	require.Equal(t, uint16(0xFFFF), v)
	require.Equal(t, "input", r.lastFn)
	require.Equal(t, []uint8{3, 7}, slaves)
}

func TestSessionShortResponse(t *testing.T) {
	s := newSession(&fakeRegisterReader{holding: []byte{0x00, 0x01, 0x00}}, nil)
	_, err := s.ReadBlock(1, model.KindHolding, 104, 8)
	require.ErrorIs(t, err, ErrIncompleteResponse)

	var re *ReadError
	require.ErrorAs(t, err, &re)
	require.Equal(t, uint16(104), re.Address)
	require.Equal(t, uint16(8), re.Count)
}

func TestSessionExceptionIsReadError(t *testing.T) {
	exc := &mb.ModbusError{FunctionCode: 0x83, ExceptionCode: 0x02}
	s := newSession(&fakeRegisterReader{err: exc}, nil)
	_, err := s.ReadSingle(1, model.KindHolding, 9999)
	require.Error(t, err)

	var re *ReadError
	require.ErrorAs(t, err, &re)
	var me *mb.ModbusError
	require.True(t, errors.As(err, &me))
	require.Equal(t, byte(0x02), me.ExceptionCode)
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newSession(&fakeRegisterReader{holding: []byte{0, 1}}, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.ReadSingle(1, model.KindHolding, 1)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestConnectionErrorMessage(t *testing.T) {
	err := &ConnectionError{Port: "COM9", Err: errors.New("no such file")}
	require.Equal(t, "cannot open serial port COM9: no such file", err.Error())
	require.ErrorContains(t, errors.Unwrap(err), "no such file")
}
