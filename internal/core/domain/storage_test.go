package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageLazyPacks(t *testing.T) {
	s := NewEnergyStorage(2)
	assert.Equal(t, 2, s.Len())

	p, err := s.Snapshot(1)
	require.NoError(t, err)
	assert.Equal(t, CHARGE_STATE_IDLE, p.ChargeState)

	_, err = s.Snapshot(2)
	assert.ErrorIs(t, err, ErrPackIndex)
	assert.ErrorIs(t, s.Update(-1, func(*BatteryPack) error { return nil }), ErrPackIndex)
}

func TestStorageConcurrentUpdate(t *testing.T) {
	s := NewEnergyStorage(1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Update(0, func(p *BatteryPack) error {
				p.PackVoltage++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshots()
		}()
	}
	wg.Wait()

	p, err := s.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, 50, p.PackVoltage)
}
