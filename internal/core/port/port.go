package port

import (
	"bufio"
	"context"

	"github.com/berfenger/bmsgateway/internal/core/domain"
)

// Transport is the kind of physical channel a port locator refers to.
type Transport string

const (
	TRANSPORT_CAN    Transport = "can"
	TRANSPORT_SERIAL Transport = "serial"
	TRANSPORT_MODBUS Transport = "modbus"
)

// Port is a physical channel. CAN frames travel in codec.CANFrame byte form,
// Modbus exchanges as codec.ModbusRequest/ModbusResponse buffers.
type Port interface {
	Locator() string
	Open() error
	Close() error
	IsOpen() bool
	SendFrame(frame []byte) error
	// ReceiveFrame blocks up to the port receive timeout. A nil frame with
	// a nil error means no data.
	ReceiveFrame() ([]byte, error)
	ClearBuffers() error
}

// PortSettings are the transport parameters of one locator.
type PortSettings struct {
	Locator        string
	Transport      Transport
	BaudRate       int
	ReceiveTimeout int // millis
	Framing        bufio.SplitFunc
}

// TelemetrySink receives the storage snapshot after each successful BMS cycle.
type TelemetrySink interface {
	Publish(ctx context.Context, snapshot domain.StorageSnapshot) error
}

// FramePlugin can inspect and replace raw frames on their way to or from a port.
type FramePlugin interface {
	Name() string
	OnSend(unit string, frame []byte) []byte
	OnReceive(unit string, frame []byte) []byte
}

type BMSPlugin interface {
	FramePlugin
	BeforeCycle(unit string)
	// AfterCycle runs on the pack of a successful cycle before it is published.
	AfterCycle(unit string, pack *domain.BatteryPack)
}

type InverterPlugin interface {
	FramePlugin
	// ManipulatePack runs on the aggregate before it is encoded.
	ManipulatePack(unit string, agg *domain.Aggregate)
}
