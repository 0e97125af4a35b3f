package transport

import (
	"bufio"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/goburrow/serial"
	"go.uber.org/zap"
)

const (
	serialReadChunk   = 256
	serialReadTimeout = 50 * time.Millisecond
	// bytes kept while waiting for the end of a frame
	serialMaxBuffer = 4096
)

// SerialPort is an RS485 line. Frames are cut out of the byte stream by
// the split function of the protocol using the line.
type SerialPort struct {
	mu      sync.Mutex
	config  serial.Config
	timeout time.Duration
	split   bufio.SplitFunc
	conn    serial.Port
	buf     []byte
	chunk   []byte
	logger  *zap.Logger
}

func NewSerialPort(device string, baudRate int, timeout time.Duration, split bufio.SplitFunc, logger *zap.Logger) *SerialPort {
	return &SerialPort{
		config: serial.Config{
			Address:  device,
			BaudRate: baudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  min(timeout, serialReadTimeout),
		},
		timeout: timeout,
		split:   split,
		chunk:   make([]byte, serialReadChunk),
		logger:  logger.With(zap.String("port", device)),
	}
}

func (p *SerialPort) Locator() string {
	return p.config.Address
}

func (p *SerialPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := serial.Open(&p.config)
	if err != nil {
		return fmt.Errorf("serial %s: %w", p.config.Address, err)
	}
	p.conn = conn
	p.buf = p.buf[:0]
	return nil
}

func (p *SerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *SerialPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *SerialPort) SendFrame(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrPortClosed
	}
	_, err := p.conn.Write(frame)
	return err
}

func (p *SerialPort) ReceiveFrame() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, ErrPortClosed
	}
	deadline := time.Now().Add(p.timeout)
	for {
		if frame := p.cut(); frame != nil {
			return frame, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		n, err := p.conn.Read(p.chunk)
		if err != nil && !errors.Is(err, serial.ErrTimeout) {
			return nil, err
		}
		p.buf = append(p.buf, p.chunk[:n]...)
		if len(p.buf) > serialMaxBuffer {
			p.logger.Warn("serial buffer overflow, discarding", zap.Int("bytes", len(p.buf)))
			p.buf = p.buf[:0]
		}
	}
}

// cut returns the next complete frame in the buffer, dropping leading garbage.
func (p *SerialPort) cut() []byte {
	for len(p.buf) > 0 {
		advance, token, err := p.split(p.buf, false)
		if err != nil {
			p.buf = p.buf[:0]
			return nil
		}
		if advance == 0 {
			return nil
		}
		var frame []byte
		if token != nil {
			frame = append([]byte(nil), token...)
		}
		p.buf = append(p.buf[:0], p.buf[advance:]...)
		if frame != nil {
			return frame
		}
	}
	return nil
}

func (p *SerialPort) ClearBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	if p.conn == nil {
		return nil
	}
	// drain whatever the driver still holds
	for {
		n, err := p.conn.Read(p.chunk)
		if n == 0 || err != nil {
			return nil
		}
	}
}

var _ port.Port = (*SerialPort)(nil)
