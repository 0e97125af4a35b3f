package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T) *domain.EnergyStorage {
	storage := domain.NewEnergyStorage(2)
	require.NoError(t, storage.Update(0, func(p *domain.BatteryPack) error {
		p.PackSOC = 755
		p.PackVoltage = 532
		p.PackCurrent = -105
		p.ChargeMOSState = true
		p.Alarms[domain.ALARM_CELL_VOLTAGE_HIGH] = domain.ALARM_LEVEL_WARNING
		p.UpdatedAt = time.Unix(1700000000, 0)
		return nil
	}))
	return storage
}

func TestPackCollectorSkipsUnknownPacks(t *testing.T) {
	c := NewPackCollector(testStorage(t), []string{"pack1", "pack2"})

	expected := `
# HELP bmsgateway_pack_soc_percent Pack state of charge in percent
# TYPE bmsgateway_pack_soc_percent gauge
bmsgateway_pack_soc_percent{unit="pack1"} 75.5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "bmsgateway_pack_soc_percent"))

	alarms := `
# HELP bmsgateway_pack_alarm_level Active alarm level, 1 warning and 2 alarm
# TYPE bmsgateway_pack_alarm_level gauge
bmsgateway_pack_alarm_level{alarm="CELL_VOLTAGE_HIGH",unit="pack1"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(alarms), "bmsgateway_pack_alarm_level"))
}

func TestPackCollectorValues(t *testing.T) {
	c := NewPackCollector(testStorage(t), []string{"pack1", "pack2"})
	expected := `
# HELP bmsgateway_pack_current_amperes Pack current, positive while charging
# TYPE bmsgateway_pack_current_amperes gauge
bmsgateway_pack_current_amperes{unit="pack1"} -10.5
# HELP bmsgateway_pack_charge_mos Charge MOSFET enabled
# TYPE bmsgateway_pack_charge_mos gauge
bmsgateway_pack_charge_mos{unit="pack1"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"bmsgateway_pack_current_amperes", "bmsgateway_pack_charge_mos"))
}

func TestCycleMetrics(t *testing.T) {
	m := New(testStorage(t), []string{"pack1", "pack2"})
	es := &eventstream.EventStream{}
	sub := m.Subscribe(es)
	defer es.Unsubscribe(sub)

	es.Publish(domain.CycleCompletedEvent{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Outcome: domain.CYCLE_SUCCESS, Duration: 100 * time.Millisecond})
	es.Publish(domain.CycleCompletedEvent{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Outcome: domain.CYCLE_NO_DATA})
	es.Publish(domain.CycleCompletedEvent{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Outcome: domain.CYCLE_NO_DATA})
	es.Publish(domain.BridgeStateUpdateEvent{Online: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("pack1", "bms", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("pack1", "bms", "no_data")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestModbusInstrument(t *testing.T) {
	m := New(domain.NewEnergyStorage(1), []string{"pack1"})
	m.ModbusInstrument().RecordTime("ReadRegisters", 20*time.Millisecond)
	m.ModbusInstrument().RecordTime("WriteRegister", 5*time.Millisecond)
	assert.Equal(t, 2, testutil.CollectAndCount(m.modbusTime))

	count, err := testutil.GatherAndCount(m.Registry, "bmsgateway_pack_soc_percent")
	require.NoError(t, err)
	assert.Zero(t, count)
}
