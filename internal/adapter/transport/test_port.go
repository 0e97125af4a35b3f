package transport

import (
	"errors"
	"sync"

	"github.com/berfenger/bmsgateway/internal/core/port"
)

var ErrPortClosed = errors.New("port is closed")

// TestPort is a scripted in-memory port. Responder is called for every sent
// frame and its result is queued for ReceiveFrame.
type TestPort struct {
	mu        sync.Mutex
	locator   string
	open      bool
	queue     [][]byte
	Responder func(frame []byte) [][]byte
	OpenErr   error

	Sent     [][]byte
	Opens    int
	Closes   int
	Clears   int
	Receives int
}

func NewTestPort(locator string) *TestPort {
	return &TestPort{locator: locator}
}

// Enqueue adds frames to be returned by ReceiveFrame.
func (p *TestPort) Enqueue(frames ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, frames...)
}

// Pending returns the number of frames waiting for ReceiveFrame.
func (p *TestPort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *TestPort) Locator() string {
	return p.locator
}

func (p *TestPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Opens++
	if p.OpenErr != nil {
		return p.OpenErr
	}
	p.open = true
	return nil
}

func (p *TestPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closes++
	p.open = false
	return nil
}

func (p *TestPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *TestPort) SendFrame(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ErrPortClosed
	}
	p.Sent = append(p.Sent, append([]byte(nil), frame...))
	if p.Responder != nil {
		p.queue = append(p.queue, p.Responder(frame)...)
	}
	return nil
}

func (p *TestPort) ReceiveFrame() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil, ErrPortClosed
	}
	p.Receives++
	if len(p.queue) == 0 {
		return nil, nil
	}
	frame := p.queue[0]
	p.queue = p.queue[1:]
	return frame, nil
}

func (p *TestPort) ClearBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Clears++
	p.queue = nil
	return nil
}

var _ port.Port = (*TestPort)(nil)
