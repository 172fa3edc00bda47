package collector

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"
	"go.uber.org/zap"

	"thermo-poller/internal/model"
	"thermo-poller/internal/utils"
)

// MaxIOTimeout caps the per-request timeout so one silent slave cannot stall a cycle.
const MaxIOTimeout = 100 * time.Millisecond

// EffectiveTimeout returns min(configured, MaxIOTimeout). Unset means the cap.
func EffectiveTimeout(configured time.Duration) time.Duration {
	if configured <= 0 || configured > MaxIOTimeout {
		return MaxIOTimeout
	}
	return configured
}

// Session is an open link to the RTU bus. Reads are not retried.
type Session interface {
	ReadSingle(slave uint8, kind model.RegisterKind, address uint16) (uint16, error)
	ReadBlock(slave uint8, kind model.RegisterKind, start, count uint16) ([]uint16, error)
	Close() error
}

// registerReader is the subset of mb.Client the session uses.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// RTUSession is a Session over a goburrow RTU handler.
type RTUSession struct {
	port     string
	handler  *mb.RTUClientHandler
	client   registerReader
	setSlave func(uint8)
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Connect opens the serial port described by settings.
func Connect(settings model.SerialSettings, logger *zap.Logger) (*RTUSession, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sp := utils.FromSettings(settings)
	sp.Timeout = EffectiveTimeout(settings.Timeout)

	h := mb.NewRTUClientHandler(sp.Address)
	h.Config = sp.Config()
	// keep the port open for the whole session
	h.IdleTimeout = 0
	if std, err := zap.NewStdLogAt(logger.Named("rtu"), zap.DebugLevel); err == nil {
		h.Logger = std
	}
	if err := h.Connect(); err != nil {
		return nil, &ConnectionError{Port: sp.Address, Err: err}
	}
	logger.Info("serial port opened",
		zap.String("port", sp.Address),
		zap.Int("baud", sp.BaudRate),
		zap.String("parity", sp.Parity),
		zap.Int("stop_bits", sp.StopBits),
		zap.Int("data_bits", sp.DataBits),
		zap.Duration("timeout", sp.Timeout),
	)
	s := newSession(mb.NewClient(h), logger)
	s.port = sp.Address
	s.handler = h
	s.setSlave = func(id uint8) { h.SlaveId = id }
	return s, nil
}

func newSession(client registerReader, logger *zap.Logger) *RTUSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RTUSession{client: client, setSlave: func(uint8) {}, logger: logger}
}

// ReadSingle reads one register.
func (s *RTUSession) ReadSingle(slave uint8, kind model.RegisterKind, address uint16) (uint16, error) {
	regs, err := s.ReadBlock(slave, kind, address, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// ReadBlock reads count consecutive registers starting at start.
func (s *RTUSession) ReadBlock(slave uint8, kind model.RegisterKind, start, count uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(err error) error {
		return &ReadError{Slave: slave, Kind: kind, Address: start, Count: count, Err: err}
	}
	if s.closed {
		return nil, fail(ErrSessionClosed)
	}
	s.setSlave(slave)

	var (
		data []byte
		err  error
	)
	switch kind {
	case model.KindInput:
		data, err = s.client.ReadInputRegisters(start, count)
	case model.KindHolding:
		data, err = s.client.ReadHoldingRegisters(start, count)
	default:
		return nil, fail(fmt.Errorf("unsupported register kind %q", kind))
	}
	if err != nil {
		return nil, fail(err)
	}
	regs := decodeWords(data)
	if len(regs) < int(count) {
		return nil, fail(fmt.Errorf("%w: got %d of %d registers", ErrIncompleteResponse, len(regs), count))
	}
	return regs[:count], nil
}

// Close releases the port. Safe to call more than once.
func (s *RTUSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.handler != nil {
		if err := s.handler.Close(); err != nil {
			s.logger.Debug("close serial port", zap.String("port", s.port), zap.Error(err))
		}
	}
	return nil
}

// decodeWords splits a big-endian register payload; a trailing odd byte is dropped.
func decodeWords(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return out
}
