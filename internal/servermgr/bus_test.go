package servermgr

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thermo-poller/internal/modbus"
)

func request(slave, fn byte, start, qty uint16) []byte {
	pdu := []byte{fn, byte(start >> 8), byte(start), byte(qty >> 8), byte(qty)}
	return encodeFrame(slave, pdu)
}

func startBus(t *testing.T, slaves ...*modbus.Slave) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBus(nil, slaves...).Serve(ctx, server) }()
	t.Cleanup(func() {
		cancel()
		client.Close()
		server.Close()
		require.NoError(t, <-done)
	})
	require.NoError(t, client.SetDeadline(time.Now().Add(2*time.Second)))
	return client
}

func TestCRC(t *testing.T) {
	// read holding 0..1 on slave 1, the standard example frame
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	require.Equal(t, []byte{0x84, 0x0A}, binary.LittleEndian.AppendUint16(nil, crc16Modbus(frame)))
}

func TestBusAnswersRead(t *testing.T) {
	s := modbus.NewSlave(7)
	require.NoError(t, s.Set(modbus.Holding, 104, 215))
	conn := startBus(t, s)

	_, err := conn.Write(request(7, 0x03, 104, 1))
	require.NoError(t, err)

	resp := make([]byte, 7)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 0x03, 2, 0x00, 0xD7}, resp[:5])
	require.Equal(t, crc16Modbus(resp[:5]), binary.LittleEndian.Uint16(resp[5:]))
}

func TestBusIgnoresUnknownSlaveAndBadCRC(t *testing.T) {
	s := modbus.NewSlave(1)
	conn := startBus(t, s)

	_, err := conn.Write(request(9, 0x03, 0, 1))
	require.NoError(t, err)

	bad := request(1, 0x03, 0, 1)
	bad[len(bad)-1] ^= 0xFF
	_, err = conn.Write(bad)
	require.NoError(t, err)

	_, err = conn.Write(request(0, 0x03, 0, 1))
	require.NoError(t, err)

	// only this one gets a reply
	_, err = conn.Write(request(1, 0x04, 0, 1))
	require.NoError(t, err)
	resp := make([]byte, 7)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0x04, 2, 0, 0}, resp[:5])
}

func TestBusException(t *testing.T) {
	s := modbus.NewSlave(2)
	s.SetReadable(modbus.Range{Start: 103, Count: 8})
	conn := startBus(t, s)

	_, err := conn.Write(request(2, 0x03, 104, 8))
	require.NoError(t, err)
	resp := make([]byte, 5)
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0x83, 0x02}, resp[:3])
}

func TestReadRequestMultiWrite(t *testing.T) {
	pdu := []byte{0x10, 0, 1, 0, 1, 2, 0xAB, 0xCD}
	frame := encodeFrame(1, pdu)
	got, err := readRequest(bytes.NewReader(frame))
	require.NoError(t, err)
	require.Equal(t, append([]byte{1}, pdu...), got)

	_, err = readRequest(bytes.NewReader([]byte{1, 0x2B, 0, 0}))
	require.Error(t, err)
}
