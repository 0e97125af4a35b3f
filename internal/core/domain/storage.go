package domain

import (
	"fmt"
	"sync"
	"time"
)

// EnergyStorage holds the configured packs in pack number order. Each pack
// has its own lock so one unit can update its pack while others are read.
type EnergyStorage struct {
	slots []*packSlot
}

type packSlot struct {
	mu   sync.RWMutex
	pack *BatteryPack
}

func NewEnergyStorage(packs int) *EnergyStorage {
	s := &EnergyStorage{slots: make([]*packSlot, packs)}
	for i := range s.slots {
		s.slots[i] = &packSlot{}
	}
	return s
}

func (s *EnergyStorage) Len() int {
	return len(s.slots)
}

func (s *EnergyStorage) slot(idx int) (*packSlot, error) {
	if idx < 0 || idx >= len(s.slots) {
		return nil, fmt.Errorf("%w: pack %d of %d", ErrPackIndex, idx, len(s.slots))
	}
	return s.slots[idx], nil
}

// Update runs fn with exclusive access to pack idx, creating the pack on first use.
func (s *EnergyStorage) Update(idx int, fn func(*BatteryPack) error) error {
	slot, err := s.slot(idx)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.pack == nil {
		slot.pack = NewBatteryPack()
	}
	return fn(slot.pack)
}

// Snapshot returns a copy of pack idx.
func (s *EnergyStorage) Snapshot(idx int) (BatteryPack, error) {
	slot, err := s.slot(idx)
	if err != nil {
		return BatteryPack{}, err
	}
	slot.mu.RLock()
	if slot.pack != nil {
		defer slot.mu.RUnlock()
		return slot.pack.Clone(), nil
	}
	slot.mu.RUnlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.pack == nil {
		slot.pack = NewBatteryPack()
	}
	return slot.pack.Clone(), nil
}

// Snapshots copies every pack in pack number order.
func (s *EnergyStorage) Snapshots() []BatteryPack {
	packs := make([]BatteryPack, len(s.slots))
	for i := range s.slots {
		packs[i], _ = s.Snapshot(i)
	}
	return packs
}

// StorageSnapshot is the serializable view of EnergyStorage handed to sinks.
type StorageSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Units     []string      `json:"units"`
	Packs     []BatteryPack `json:"packs"`
}

func (s *EnergyStorage) StorageSnapshot(units []string) StorageSnapshot {
	return StorageSnapshot{
		Timestamp: time.Now(),
		Units:     units,
		Packs:     s.Snapshots(),
	}
}
