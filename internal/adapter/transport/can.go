package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/brutella/can"
	"go.uber.org/zap"
)

const (
	// extended frame format flag of a SocketCAN identifier
	canEFFFlag = 0x80000000
	canSFFMask = 0x7FF

	canQueueSize = 256
)

// CANPort is a SocketCAN interface. Received frames are queued by the bus
// subscriber until ReceiveFrame picks them up.
type CANPort struct {
	mu      sync.Mutex
	iface   string
	timeout time.Duration
	bus     *can.Bus
	frames  chan can.Frame
	logger  *zap.Logger
}

func NewCANPort(iface string, timeout time.Duration, logger *zap.Logger) *CANPort {
	return &CANPort{
		iface:   iface,
		timeout: timeout,
		logger:  logger.With(zap.String("port", iface)),
	}
}

func (p *CANPort) Locator() string {
	return p.iface
}

func (p *CANPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus != nil {
		return nil
	}
	iface, err := net.InterfaceByName(p.iface)
	if err != nil {
		return fmt.Errorf("can interface %s: %w", p.iface, err)
	}
	conn, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return fmt.Errorf("can socket %s: %w", p.iface, err)
	}
	frames := make(chan can.Frame, canQueueSize)
	bus := can.NewBus(conn)
	bus.SubscribeFunc(p.enqueue(frames))
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			p.logger.Debug("can bus stopped", zap.Error(err))
		}
	}()
	p.bus = bus
	p.frames = frames
	return nil
}

// enqueue returns the bus subscriber. A full queue is logged once per
// overflow, frames are dropped silently until the queue drains.
func (p *CANPort) enqueue(frames chan can.Frame) func(can.Frame) {
	dropped := 0
	return func(f can.Frame) {
		select {
		case frames <- f:
			if dropped > 0 {
				p.logger.Debug("can receive queue drained", zap.Int("dropped", dropped))
				dropped = 0
			}
		default:
			if dropped == 0 {
				p.logger.Warn("can receive queue full, dropping frames", zap.Uint32("id", f.ID&codec.CANIDMask))
			}
			dropped++
		}
	}
}

func (p *CANPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil
	}
	err := p.bus.Disconnect()
	p.bus = nil
	p.frames = nil
	return err
}

func (p *CANPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bus != nil
}

func (p *CANPort) SendFrame(frame []byte) error {
	cf, err := codec.ParseCANFrame(frame)
	if err != nil {
		return err
	}
	f := can.Frame{ID: cf.ID, Length: uint8(len(cf.Data))}
	if cf.ID > canSFFMask {
		f.ID |= canEFFFlag
	}
	copy(f.Data[:], cf.Data)

	p.mu.Lock()
	bus := p.bus
	p.mu.Unlock()
	if bus == nil {
		return ErrPortClosed
	}
	return bus.Publish(f)
}

func (p *CANPort) ReceiveFrame() ([]byte, error) {
	p.mu.Lock()
	frames := p.frames
	p.mu.Unlock()
	if frames == nil {
		return nil, ErrPortClosed
	}
	select {
	case f := <-frames:
		cf := codec.CANFrame{ID: f.ID & codec.CANIDMask, Data: append([]byte(nil), f.Data[:min(int(f.Length), codec.MaxCANData)]...)}
		return cf.Bytes(), nil
	case <-time.After(p.timeout):
		return nil, nil
	}
}

func (p *CANPort) ClearBuffers() error {
	p.mu.Lock()
	frames := p.frames
	p.mu.Unlock()
	for frames != nil {
		select {
		case <-frames:
		default:
			return nil
		}
	}
	return nil
}

var _ port.Port = (*CANPort)(nil)
