package servermgr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"thermo-poller/internal/modbus"
)

// Bus answers RTU frames for a set of slaves sharing one serial line.
// Frames with a bad CRC, the broadcast address or an unknown slave id get no
// reply, which the master sees as a timeout.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	slaves map[uint8]*modbus.Slave
}

// NewBus builds a bus serving the given slaves.
func NewBus(logger *zap.Logger, slaves ...*modbus.Slave) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{logger: logger, slaves: make(map[uint8]*modbus.Slave)}
	for _, s := range slaves {
		b.slaves[s.ID] = s
	}
	return b
}

// Slave returns the slave registered under id.
func (b *Bus) Slave(id uint8) (*modbus.Slave, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.slaves[id]
	return s, ok
}

// Serve processes a single RTU stream until it fails or ctx is done.
// Closing rw is the caller's job; a read error after cancellation returns nil.
func (b *Bus) Serve(ctx context.Context, rw io.ReadWriter) error {
	for {
		frame, err := readRequest(rw)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if frame == nil {
			continue
		}
		resp := b.handleFrame(frame)
		if resp == nil {
			continue
		}
		if _, err := rw.Write(resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (b *Bus) handleFrame(frame []byte) []byte {
	address := frame[0]
	if address == 0 {
		return nil
	}
	slave, ok := b.Slave(address)
	if !ok {
		b.logger.Debug("request for unknown slave", zap.Uint8("slave", address))
		return nil
	}
	pdu := slave.HandlePDU(frame[1:])
	b.logger.Debug("request served",
		zap.Uint8("slave", address),
		zap.Uint8("function", frame[1]),
		zap.Bool("exception", pdu[0]&0x80 != 0))
	return encodeFrame(address, pdu)
}

// readRequest reads one request frame and returns it without the CRC.
// A nil frame with a nil error means the CRC did not match.
func readRequest(r io.Reader) ([]byte, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	fn := head[1]

	var body []byte
	switch fn {
	case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06:
		body = make([]byte, 4)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	case 0x0F, 0x10:
		hdr := make([]byte, 5)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, err
		}
		payload := make([]byte, int(hdr[4]))
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		body = append(hdr, payload...)
	default:
		return nil, fmt.Errorf("unsupported function 0x%02x", fn)
	}

	crcBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return nil, err
	}
	frame := append(head, body...)
	if crc16Modbus(frame) != binary.LittleEndian.Uint16(crcBytes) {
		return nil, nil
	}
	return frame, nil
}

func encodeFrame(address byte, pdu []byte) []byte {
	out := make([]byte, 0, 1+len(pdu)+2)
	out = append(out, address)
	out = append(out, pdu...)
	return binary.LittleEndian.AppendUint16(out, crc16Modbus(out))
}

// crc16Modbus computes Modbus RTU CRC16 over the given bytes.
func crc16Modbus(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if (crc & 0x0001) != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc = crc >> 1
			}
		}
	}
	return crc
}
