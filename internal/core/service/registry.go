package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/berfenger/bmsgateway/internal/core/port"
)

var (
	ErrUnknownPort   = errors.New("unknown port locator")
	ErrDuplicatePort = errors.New("port locator already registered")
)

// PortRegistry maps locators to ports and serializes cycles per locator.
// It is built once at startup and handed to every engine.
type PortRegistry struct {
	mu    sync.RWMutex
	ports map[string]*portSlot
}

type portSlot struct {
	port port.Port
	// holds one token while the port is allocated
	busy chan struct{}
}

func NewPortRegistry() *PortRegistry {
	return &PortRegistry{ports: make(map[string]*portSlot)}
}

func (r *PortRegistry) Register(p port.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[p.Locator()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePort, p.Locator())
	}
	r.ports[p.Locator()] = &portSlot{port: p, busy: make(chan struct{}, 1)}
	return nil
}

func (r *PortRegistry) slot(locator string) (*portSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.ports[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, locator)
	}
	return s, nil
}

func (r *PortRegistry) Get(locator string) (port.Port, error) {
	s, err := r.slot(locator)
	if err != nil {
		return nil, err
	}
	return s.port, nil
}

// Allocate blocks until the port is free and marks it busy.
func (r *PortRegistry) Allocate(ctx context.Context, locator string) (port.Port, error) {
	s, err := r.slot(locator)
	if err != nil {
		return nil, err
	}
	select {
	case s.busy <- struct{}{}:
		return s.port, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Free releases the port and lets one waiting Allocate through.
func (r *PortRegistry) Free(locator string) {
	s, err := r.slot(locator)
	if err != nil {
		return
	}
	select {
	case <-s.busy:
	default:
	}
}

func (r *PortRegistry) Locators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	locators := make([]string, 0, len(r.ports))
	for l := range r.ports {
		locators = append(locators, l)
	}
	slices.Sort(locators)
	return locators
}

// CloseAll closes every open port.
func (r *PortRegistry) CloseAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, s := range r.ports {
		if s.port.IsOpen() {
			if err := s.port.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.port.Locator(), err))
			}
		}
	}
	return errors.Join(errs...)
}
