package inverter

import (
	"testing"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAggregate() *domain.Aggregate {
	agg := &domain.Aggregate{BatteryPack: *domain.NewBatteryPack(), Packs: 2}
	agg.MaxPackVoltageLimit = 568
	agg.MinPackVoltageLimit = 480
	agg.MaxPackChargeCurrent = 1000
	agg.MaxPackDischargeCurrent = 1200
	agg.PackVoltage = 532
	agg.PackCurrent = -105
	agg.PackSOC = 750
	agg.PackSOH = 990
	agg.TempAverage = 215
	agg.TempMax = 240
	agg.TempMaxCellNum = 3
	agg.TempMin = 190
	agg.TempMinCellNum = 1
	agg.MaxCellmV = 3340
	agg.MaxCellVNum = 5
	agg.MinCellmV = 3310
	agg.MinCellVNum = 12
	agg.BMSCycles = 42
	agg.NumberOfCells = 32
	agg.RatedCapacitymAh = 200000
	agg.RemainingCapacitymAh = 150000
	agg.ChargeMOSState = true
	agg.DischargeMOSState = true
	agg.ChargeState = domain.CHARGE_STATE_DISCHARGE
	return agg
}

// byID parses encoded frames and indexes their payload by CAN id.
func byID(t *testing.T, frames [][]byte) (map[uint32][]byte, []uint32) {
	t.Helper()
	out := make(map[uint32][]byte)
	var order []uint32
	for _, raw := range frames {
		f, err := codec.ParseCANFrame(raw)
		require.NoError(t, err)
		require.Len(t, f.Data, codec.MaxCANData)
		out[f.ID] = f.Data
		order = append(order, f.ID)
	}
	return out, order
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
	}
	_, err := Lookup("FOO")
	assert.ErrorIs(t, err, ErrUnknownVendor)

	hv, _ := Lookup(PYLON_HV_CAN)
	assert.True(t, hv.RequestDriven())
	lv, _ := Lookup(PYLON_CAN)
	assert.False(t, lv.RequestDriven())
}

func TestPylonLVFrames(t *testing.T) {
	agg := testAggregate()
	agg.SetAlarm(domain.ALARM_PACK_VOLTAGE_HIGH, domain.ALARM_LEVEL_ALARM)
	agg.SetAlarm(domain.ALARM_CHARGE_CURRENT_HIGH, domain.ALARM_LEVEL_WARNING)

	frames, err := PylonCAN().Frames(agg)
	require.NoError(t, err)
	data, order := byID(t, frames)
	assert.Equal(t, []uint32{0x351, 0x355, 0x356, 0x359, 0x35C, 0x35E}, order)

	assert.Equal(t, []byte{0x38, 0x02, 0xE8, 0x03, 0xB0, 0x04, 0xE0, 0x01}, data[0x351])
	assert.Equal(t, []byte{75, 0, 99, 0, 0, 0, 0, 0}, data[0x355])
	// 53.20V in 0.01V, -10.5A, 21.5°C
	assert.Equal(t, []byte{0xC8, 0x14, 0x97, 0xFF, 0xD7, 0x00, 0, 0}, data[0x356])
	assert.Equal(t, []byte{0x02, 0x00, 0x02, 0x01, 2, 'P', 'N', 0}, data[0x359])
	assert.Equal(t, byte(0xC0), data[0x35C][0])
	assert.Equal(t, "PYLON", string(data[0x35E][:5]))
}

func TestPylonLVRoundTrip(t *testing.T) {
	agg := testAggregate()
	frames, err := PylonCAN().Frames(agg)
	require.NoError(t, err)
	data, _ := byID(t, frames)

	get := func(f codec.Field, b []byte) int {
		v, err := f.Get(b)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, agg.MaxPackVoltageLimit, get(lvChargeVoltage, data[0x351]))
	assert.Equal(t, agg.MaxPackChargeCurrent, get(lvChargeCurrent, data[0x351]))
	assert.Equal(t, agg.MaxPackDischargeCurrent, get(lvDischargeCurrent, data[0x351]))
	assert.Equal(t, agg.MinPackVoltageLimit, get(lvDischargeVoltage, data[0x351]))
	assert.Equal(t, agg.PackSOC, get(lvSOC, data[0x355]))
	assert.Equal(t, agg.PackSOH, get(lvSOH, data[0x355]))
	assert.Equal(t, agg.PackVoltage, get(lvVoltage, data[0x356]))
	assert.Equal(t, agg.PackCurrent, get(lvCurrent, data[0x356]))
	assert.Equal(t, agg.TempAverage, get(lvTemperature, data[0x356]))
}

// Frames captured from an LG RESU 10 LV talking to an inverter.
func TestPylonLVReadsResuBroadcast(t *testing.T) {
	values := []byte{0x4b, 0x15, 0xed, 0xff, 0xba, 0x00, 0x00, 0x00}
	limits := []byte{0x41, 0x02, 0x96, 0x03, 0x96, 0x03, 0x00, 0x00}
	soc := []byte{0x4d, 0x00, 0x63, 0x00, 0x00, 0x00, 0x00, 0x00}

	for _, tc := range []struct {
		field codec.Field
		data  []byte
		want  int
	}{
		{lvVoltage, values, 545},
		{lvCurrent, values, -19},
		{lvTemperature, values, 186},
		{lvChargeVoltage, limits, 577},
		{lvChargeCurrent, limits, 918},
		{lvDischargeCurrent, limits, 918},
		{lvSOC, soc, 770},
		{lvSOH, soc, 990},
	} {
		v, err := tc.field.Get(tc.data)
		require.NoError(t, err)
		assert.Equal(t, tc.want, v)
	}
}

func TestDeyeIsPylonLV(t *testing.T) {
	agg := testAggregate()
	pylon, err := PylonCAN().Frames(agg)
	require.NoError(t, err)
	deye, err := DeyeCAN().Frames(agg)
	require.NoError(t, err)
	assert.Equal(t, pylon, deye)
	assert.Equal(t, DEYE_CAN, DeyeCAN().Name)
}

func TestEncodeClamps(t *testing.T) {
	agg := testAggregate()
	agg.PackSOC = 5000
	agg.PackCurrent = -100000

	frames, err := PylonCAN().Frames(agg)
	require.NoError(t, err)
	data, _ := byID(t, frames)
	assert.Equal(t, []byte{0xF4, 0x01}, data[0x355][0:2], "500 percent still fits the field")
	assert.Equal(t, []byte{0x00, 0x80}, data[0x356][2:4])
}

func TestSMAAlarmPairs(t *testing.T) {
	agg := testAggregate()
	agg.SetAlarm(domain.ALARM_PACK_VOLTAGE_HIGH, domain.ALARM_LEVEL_ALARM)
	agg.SetAlarm(domain.ALARM_PACK_VOLTAGE_LOW, domain.ALARM_LEVEL_WARNING)

	frames, err := SMASunnyIslandCAN().Frames(agg)
	require.NoError(t, err)
	data, order := byID(t, frames)
	assert.Equal(t, []uint32{0x351, 0x355, 0x356, 0x35A, 0x35C, 0x35E, 0x35F}, order)

	alarms := codec.U32LE(0)
	warnings := codec.U32LE(4)
	a, err := alarms.Get(data[0x35A])
	require.NoError(t, err)
	w, err := warnings.Get(data[0x35A])
	require.NoError(t, err)

	assert.Equal(t, 0x1, a&0x3, "general alarm")
	assert.Equal(t, 0x1, (a>>2)&0x3, "pack voltage high alarm")
	assert.Equal(t, 0x2, (a>>4)&0x3, "pack voltage low is only a warning")
	assert.Equal(t, 0x1, w&0x3)
	assert.Equal(t, 0x1, (w>>2)&0x3)
	assert.Equal(t, 0x1, (w>>4)&0x3)
	assert.Equal(t, 0x2, (w>>6)&0x3)

	soc, _ := smaSOCHiRes.Get(data[0x355])
	assert.Equal(t, 750, soc)
	capacity, _ := smaCapacityAh.Get(data[0x35F])
	assert.Equal(t, 200000, capacity)
	assert.Equal(t, "BMSGW", string(data[0x35E][:5]))
}

func TestGrowattFrames(t *testing.T) {
	agg := testAggregate()
	agg.ManufacturerCode = "SEPLOS"
	agg.SetAlarm(domain.ALARM_CELL_VOLTAGE_LOW, domain.ALARM_LEVEL_ALARM)

	frames, err := GrowattHVCAN().Frames(agg)
	require.NoError(t, err)
	data, order := byID(t, frames)
	assert.Equal(t, []uint32{0x3110, 0x3120, 0x3130, 0x3140, 0x3150, 0x3160, 0x3170, 0x3180, 0x3190, 0x3200}, order)

	assert.Equal(t, []byte{0x02, 0x38, 0x03, 0xE8, 0x04, 0xB0, 0x03, 0}, data[0x3110])
	assert.Equal(t, []byte{0, 0, 0, 0x02, 0, 0, 0, 0x02}, data[0x3120])

	soc, _ := gwSOC.Get(data[0x3130])
	assert.Equal(t, 750, soc)
	current, _ := gwCurrent.Get(data[0x3130])
	assert.Equal(t, -105, current)
	remaining, _ := gwRemaining.Get(data[0x3140])
	assert.Equal(t, 150000, remaining)

	assert.Equal(t, byte(6), data[0x3150][4], "cell numbers are 1-based on the wire")
	assert.Equal(t, byte(13), data[0x3150][5])
	assert.Equal(t, byte(2), data[0x3170][3], "discharging")
	assert.Equal(t, "SEPLOS", string(data[0x3180][:6]))
}

func hvRequest(selector byte) []byte {
	return codec.CANFrame{ID: pylonHVRequestID, Data: []byte{selector, 0, 0, 0, 0, 0, 0, 0}}.Bytes()
}

func TestPylonHVEnsemble(t *testing.T) {
	agg := testAggregate()
	agg.ChargeMOSState = false
	agg.SetAlarm(domain.ALARM_DISCHARGE_CURRENT_HIGH, domain.ALARM_LEVEL_WARNING)

	frames, result, err := PylonHVCAN().Respond(hvRequest(pylonHVEnsemble), agg)
	require.NoError(t, err)
	assert.Equal(t, port.FRAME_DONE, result)
	data, order := byID(t, frames)
	assert.Equal(t, []uint32{0x4210, 0x4220, 0x4230, 0x4240, 0x4250, 0x4260, 0x4270, 0x4280, 0x4290}, order)

	// -10.5A with the 3000A offset
	assert.Equal(t, []byte{0xC7, 0x74}, data[0x4210][2:4])
	current, _ := hvCurrent.Get(data[0x4210])
	assert.Equal(t, -105, current)
	temp, _ := hvTemperature.Get(data[0x4210])
	assert.Equal(t, 215, temp)
	discharge, _ := hvDischargeCurrent.Get(data[0x4220])
	assert.Equal(t, -1200, discharge)

	alarmWord, _ := hvAlarm.Get(data[0x4250])
	protection, _ := hvProtection.Get(data[0x4250])
	assert.Equal(t, 1<<9, alarmWord)
	assert.Equal(t, 0, protection)

	assert.Equal(t, []byte{0xAA, 0}, data[0x4280][0:2])
}

func TestPylonHVSystem(t *testing.T) {
	agg := testAggregate()
	agg.ManufacturerCode = "LONGNAMEBATT"

	frames, result, err := PylonHVCAN().Respond(hvRequest(pylonHVSystem), agg)
	require.NoError(t, err)
	assert.Equal(t, port.FRAME_DONE, result)
	data, order := byID(t, frames)
	assert.Equal(t, []uint32{0x7310, 0x7320, 0x7330, 0x7340}, order)
	assert.Equal(t, "LONGNAME", string(data[0x7330]))
	assert.Equal(t, "BATT", string(data[0x7340][:4]))
	assert.Equal(t, byte(16), data[0x7320][3])
}

func TestPylonHVIgnoresOtherFrames(t *testing.T) {
	agg := testAggregate()
	for _, request := range [][]byte{
		hvRequest(0x05),
		codec.CANFrame{ID: 0x4201, Data: []byte{0}}.Bytes(),
		{0x00},
	} {
		frames, result, err := PylonHVCAN().Respond(request, agg)
		assert.NoError(t, err)
		assert.Equal(t, port.FRAME_INVALID, result)
		assert.Empty(t, frames)
	}
}

func pylonRequest(cid2 byte) []byte {
	return codec.ASCIIFrame{Version: bms.PylonRS485Version, Address: 2, CID1: pylonRS485CID1, CID2: cid2}.Encode()
}

// decodeWithBMS feeds an inverter response through the BMS side decoder of the same protocol.
func decodeWithBMS(t *testing.T, command int, frame []byte) *domain.BatteryPack {
	t.Helper()
	pack := domain.NewBatteryPack()
	result, err := bms.PylonRS485().Commands[command].Handle(frame, port.NewExchange(2, pack))
	require.NoError(t, err)
	require.Equal(t, port.FRAME_DONE, result)
	return pack
}

func TestPylonRS485RoundTrip(t *testing.T) {
	agg := testAggregate()
	agg.HardwareVersion = "US3000"
	agg.ManufacturerCode = "PYLON"
	agg.SetAlarm(domain.ALARM_CELL_VOLTAGE_HIGH, domain.ALARM_LEVEL_WARNING)
	agg.SetAlarm(domain.ALARM_PACK_VOLTAGE_LOW, domain.ALARM_LEVEL_ALARM)
	proto := PylonRS485()

	frames, result, err := proto.Respond(pylonRequest(bms.PylonRS485SystemInfo), agg)
	require.NoError(t, err)
	assert.Equal(t, port.FRAME_DONE, result)
	require.Len(t, frames, 1)
	info := decodeWithBMS(t, 0, frames[0])
	assert.Equal(t, "US3000", info.HardwareVersion)
	assert.Equal(t, "PYLON", info.ManufacturerCode)

	frames, _, err = proto.Respond(pylonRequest(bms.PylonRS485SystemAnalog), agg)
	require.NoError(t, err)
	analog := decodeWithBMS(t, 1, frames[0])
	assert.Equal(t, 532, analog.PackVoltage)
	assert.Equal(t, -105, analog.PackCurrent)
	assert.Equal(t, 750, analog.PackSOC)
	assert.Equal(t, 990, analog.PackSOH)
	assert.Equal(t, 42, analog.BMSCycles)
	assert.Equal(t, 3340, analog.MaxCellmV)
	assert.Equal(t, 5, analog.MaxCellVNum)
	assert.Equal(t, 3310, analog.MinCellmV)
	assert.Equal(t, 30, analog.CellDiffmV)
	assert.Equal(t, 215, analog.TempAverage)
	assert.Equal(t, 240, analog.TempMax)
	assert.Equal(t, 190, analog.TempMin)
	assert.Equal(t, domain.CHARGE_STATE_DISCHARGE, analog.ChargeState)

	frames, _, err = proto.Respond(pylonRequest(bms.PylonRS485SystemAlarm), agg)
	require.NoError(t, err)
	alarms := decodeWithBMS(t, 2, frames[0])
	assert.Equal(t, domain.ALARM_LEVEL_WARNING, alarms.Alarm(domain.ALARM_CELL_VOLTAGE_HIGH))
	assert.Equal(t, domain.ALARM_LEVEL_ALARM, alarms.Alarm(domain.ALARM_PACK_VOLTAGE_LOW))
	assert.Equal(t, domain.ALARM_LEVEL_NONE, alarms.Alarm(domain.ALARM_CHARGE_CURRENT_HIGH))
}

func TestPylonRS485Rejects(t *testing.T) {
	agg := testAggregate()
	proto := PylonRS485()

	frames, result, err := proto.Respond(pylonRequest(0x4F), agg)
	require.NoError(t, err)
	assert.Equal(t, port.FRAME_DONE, result)
	reply, err := codec.DecodeASCIIFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, byte(codec.RTNCID2Invalid), reply.CID2)
	assert.Equal(t, byte(2), reply.Address)

	corrupt := pylonRequest(bms.PylonRS485SystemAnalog)
	corrupt[len(corrupt)-2] ^= 0x01
	frames, result, _ = proto.Respond(corrupt, agg)
	assert.Equal(t, port.FRAME_INVALID, result)
	assert.Empty(t, frames)

	other := codec.ASCIIFrame{Version: bms.PylonRS485Version, Address: 2, CID1: 0x4A, CID2: 0x61}.Encode()
	_, result, _ = proto.Respond(other, agg)
	assert.Equal(t, port.FRAME_INVALID, result)
}
