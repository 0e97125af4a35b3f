package transport

import (
	"testing"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/brutella/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTestPortResponder(t *testing.T) {
	require := require.New(t)

	p := NewTestPort("test://bus")
	p.Responder = func(frame []byte) [][]byte {
		return [][]byte{append([]byte{0xFF}, frame...)}
	}

	require.ErrorIs(p.SendFrame([]byte{1}), ErrPortClosed)
	require.NoError(p.Open())
	require.NoError(p.SendFrame([]byte{1}))

	frame, err := p.ReceiveFrame()
	require.NoError(err)
	require.Equal([]byte{0xFF, 1}, frame)

	frame, err = p.ReceiveFrame()
	require.NoError(err)
	require.Nil(frame)
	require.Equal(2, p.Receives)

	p.Enqueue([]byte{2})
	require.NoError(p.ClearBuffers())
	frame, _ = p.ReceiveFrame()
	require.Nil(frame)
}

func TestFactory(t *testing.T) {
	logger := zap.NewNop()

	p, err := NewPort(port.PortSettings{Locator: "test://x", Transport: port.TRANSPORT_CAN}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &TestPort{}, p)

	p, err = NewPort(port.PortSettings{Locator: "can0", Transport: port.TRANSPORT_CAN}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &CANPort{}, p)
	assert.False(t, p.IsOpen())

	_, err = NewPort(port.PortSettings{Locator: "/dev/ttyUSB0", Transport: port.TRANSPORT_SERIAL}, nil, logger)
	assert.Error(t, err)

	p, err = NewPort(port.PortSettings{Locator: "/dev/ttyUSB0", Transport: port.TRANSPORT_SERIAL, Framing: codec.SplitASCII}, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", p.Locator())

	p, err = NewPort(port.PortSettings{Locator: "tcp://127.0.0.1:502", Transport: port.TRANSPORT_MODBUS}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &ModbusPort{}, p)

	_, err = NewPort(port.PortSettings{Locator: "udp://x", Transport: port.TRANSPORT_MODBUS}, nil, logger)
	assert.Error(t, err)
}

func TestSerialCut(t *testing.T) {
	p := NewSerialPort("/dev/null", 9600, DefaultReceiveTimeout, codec.SplitFixed, zap.NewNop())
	frame := codec.FixedFrame{Address: 1, Command: 0x90}.Bytes()
	p.buf = append([]byte{0x00, 0x01}, frame...)
	p.buf = append(p.buf, frame[:4]...)

	assert.Equal(t, frame, p.cut())
	assert.Nil(t, p.cut())
	assert.Equal(t, frame[:4], p.buf)
}

func TestCANQueueOverflowLogsOnce(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := NewCANPort("can0", time.Second, zap.New(core))
	frames := make(chan can.Frame, 2)
	p.frames = frames
	receive := p.enqueue(frames)

	for i := 0; i < 10; i++ {
		receive(can.Frame{ID: 0x305})
	}
	assert.Len(t, frames, 2)
	assert.Equal(t, 1, logs.FilterMessage("can receive queue full, dropping frames").Len())

	require.NoError(t, p.ClearBuffers())
	assert.Empty(t, frames)

	receive(can.Frame{ID: 0x305})
	drained := logs.FilterMessage("can receive queue drained").All()
	require.Len(t, drained, 1)
	assert.Equal(t, int64(8), drained[0].ContextMap()["dropped"])

	for i := 0; i < 5; i++ {
		receive(can.Frame{ID: 0x305})
	}
	assert.Equal(t, 2, logs.FilterMessage("can receive queue full, dropping frames").Len())
}
