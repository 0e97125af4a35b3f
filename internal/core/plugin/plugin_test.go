package plugin

import (
	"testing"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{FRAME_LOGGER}, BMSNames())
	assert.Equal(t, []string{CURRENT_LIMIT, FRAME_LOGGER, SOC_ADJUST}, InverterNames())

	bms, err := BMSPlugins([]string{FRAME_LOGGER}, Settings{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, bms, 1)

	_, err = BMSPlugins([]string{SOC_ADJUST}, Settings{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownPlugin)
	_, err = InverterPlugins([]string{"foo"}, Settings{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownPlugin)

	inv, err := InverterPlugins([]string{SOC_ADJUST, CURRENT_LIMIT}, Settings{}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.Equal(t, SOC_ADJUST, inv[0].Name())
	assert.Equal(t, CURRENT_LIMIT, inv[1].Name())
}

func TestFrameLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewFrameLogger(zap.New(core))

	frame := []byte{0x7E, 0x01, 0xAB}
	assert.Equal(t, frame, p.OnSend("pack1", frame))
	assert.Equal(t, frame, p.OnReceive("pack1", frame))

	entries := logs.FilterMessage("frame").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "tx", entries[0].ContextMap()["direction"])
	assert.Equal(t, "rx", entries[1].ContextMap()["direction"])
	assert.Equal(t, "7E 01 AB", entries[0].ContextMap()["data"])
	assert.Equal(t, "pack1", entries[0].ContextMap()["unit"])
}

func TestFrameLoggerQuietAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewFrameLogger(zap.New(core))
	p.OnSend("pack1", []byte{0x01})
	p.AfterCycle("pack1", domain.NewBatteryPack())
	assert.Zero(t, logs.Len())
}

func TestSOCAdjust(t *testing.T) {
	p := NewSOCAdjust(SOCAdjustSettings{MinSOC: 100, MaxSOC: 900})
	for _, tc := range []struct{ in, want int }{
		{50, 0},
		{100, 0},
		{500, 500},
		{900, 1000},
		{1000, 1000},
		{300, 250},
	} {
		agg := &domain.Aggregate{}
		agg.PackSOC = tc.in
		p.ManipulatePack("inv", agg)
		assert.Equal(t, tc.want, agg.PackSOC, "soc %d", tc.in)
	}

	agg := &domain.Aggregate{}
	agg.PackSOC = 420
	NewSOCAdjust(SOCAdjustSettings{MinSOC: 500, MaxSOC: 500}).ManipulatePack("inv", agg)
	assert.Equal(t, 420, agg.PackSOC, "invalid window leaves SOC untouched")
}

func TestCurrentLimit(t *testing.T) {
	p := NewCurrentLimit(CurrentLimitSettings{MaxChargeCurrent: 500})

	agg := &domain.Aggregate{}
	agg.MaxPackChargeCurrent = 1000
	agg.MaxPackDischargeCurrent = 1000
	agg.ChargeMOSState = true
	agg.DischargeMOSState = true
	p.ManipulatePack("inv", agg)
	assert.Equal(t, 500, agg.MaxPackChargeCurrent)
	assert.Equal(t, 1000, agg.MaxPackDischargeCurrent)

	agg.DischargeMOSState = false
	p.ManipulatePack("inv", agg)
	assert.Equal(t, 0, agg.MaxPackDischargeCurrent)
}
