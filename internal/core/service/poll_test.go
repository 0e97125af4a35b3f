package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/bmsgateway/internal/adapter/transport"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const TEST_LOCATOR = "test://bms"

// echo protocol: request [cmd], response [cmd, value]
func testProtocol() port.BMSProtocol {
	handle := func(cmd byte, apply func(*domain.BatteryPack, int) error) func([]byte, *port.Exchange) (port.FrameResult, error) {
		return func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
			if len(frame) != 2 || frame[0] != cmd {
				return port.FRAME_INVALID, nil
			}
			return port.FRAME_DONE, apply(ex.Pack, int(frame[1]))
		}
	}
	return port.BMSProtocol{
		Name:      "TEST",
		Transport: port.TRANSPORT_SERIAL,
		Commands: []port.BMSCommand{
			{
				Name:    "status",
				Request: func(int) []byte { return []byte{0x01} },
				Handle:  handle(0x01, func(p *domain.BatteryPack, v int) error { return p.SetNumberOfCells(v) }),
			},
			{
				Name:    "cell",
				Request: func(int) []byte { return []byte{0x02} },
				Handle: handle(0x02, func(p *domain.BatteryPack, v int) error {
					return p.SetCellVoltage(v, 3300)
				}),
			},
			{
				Name:    "voltage",
				Request: func(int) []byte { return []byte{0x03} },
				Handle: handle(0x03, func(p *domain.BatteryPack, v int) error {
					p.PackVoltage = v
					return nil
				}),
			},
		},
	}
}

type sleepCounter struct {
	calls int
}

func (s *sleepCounter) sleep(time.Duration) {
	s.calls++
}

func newTestPoll(t *testing.T, p *transport.TestPort) (*PollEngine, *domain.EnergyStorage, *sleepCounter) {
	registry := NewPortRegistry()
	require.NoError(t, registry.Register(p))
	storage := domain.NewEnergyStorage(1)
	engine := NewPollEngine(PollUnit{
		Name:     "pack1",
		Locator:  p.Locator(),
		Delay:    time.Millisecond,
		Protocol: testProtocol(),
	}, registry, storage, zap.NewNop())
	sc := &sleepCounter{}
	engine.Sleep = sc.sleep
	return engine, storage, sc
}

func TestPollSuccess(t *testing.T) {
	require := require.New(t)

	p := transport.NewTestPort(TEST_LOCATOR)
	values := map[byte]byte{0x01: 4, 0x02: 2, 0x03: 244}
	p.Responder = func(frame []byte) [][]byte {
		return [][]byte{{frame[0], values[frame[0]]}}
	}
	engine, storage, _ := newTestPoll(t, p)

	var published []domain.BatteryPack
	engine.OnSuccess = func(bp domain.BatteryPack) {
		published = append(published, bp)
	}

	result := engine.RunCycle(context.Background())
	require.Equal(domain.CYCLE_SUCCESS, result.Outcome, result.Err)
	require.NotEmpty(result.CorrelationID)
	require.Equal(1, p.Opens)
	require.Equal(1, p.Clears)
	require.Equal([][]byte{{0x01}, {0x02}, {0x03}}, p.Sent)

	pack, err := storage.Snapshot(0)
	require.NoError(err)
	require.Equal(244, pack.PackVoltage)
	require.Equal([]int{0, 0, 3300, 0}, pack.CellVmV)
	require.False(pack.UpdatedAt.IsZero())
	require.Len(published, 1)
	require.Equal(244, published[0].PackVoltage)
}

func TestPollNoDataRetriesExactlyTen(t *testing.T) {
	p := transport.NewTestPort(TEST_LOCATOR)
	engine, _, sc := newTestPoll(t, p)
	called := false
	engine.OnSuccess = func(domain.BatteryPack) { called = true }

	result := engine.RunCycle(context.Background())

	assert.Equal(t, domain.CYCLE_NO_DATA, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrNoData)
	assert.Equal(t, MaxNoData, p.Receives)
	assert.Equal(t, MaxNoData-1, sc.calls)
	// port closed and reopened
	assert.Equal(t, 1, p.Closes)
	assert.Equal(t, 2, p.Opens)
	assert.False(t, called)
}

func TestPollTooManyInvalid(t *testing.T) {
	p := transport.NewTestPort(TEST_LOCATOR)
	p.Responder = func(frame []byte) [][]byte {
		garbage := make([][]byte, 20)
		for i := range garbage {
			garbage[i] = []byte{0xEE, 0xEE}
		}
		return garbage
	}
	engine, _, _ := newTestPoll(t, p)

	result := engine.RunCycle(context.Background())

	assert.Equal(t, domain.CYCLE_TOO_MANY_INVALID, result.Outcome)
	assert.Equal(t, MaxInvalid, p.Receives)
	// buffers flushed once at start and once at abort, port not reopened
	assert.Equal(t, 2, p.Clears)
	assert.Equal(t, 0, p.Closes)
}

func TestPollDecodeErrorDoesNotAbort(t *testing.T) {
	p := transport.NewTestPort(TEST_LOCATOR)
	// cell index 9 is beyond the learned 4 cells
	values := map[byte]byte{0x01: 4, 0x02: 9, 0x03: 100}
	p.Responder = func(frame []byte) [][]byte {
		return [][]byte{{frame[0], values[frame[0]]}}
	}
	engine, storage, _ := newTestPoll(t, p)

	result := engine.RunCycle(context.Background())
	require.Equal(t, domain.CYCLE_SUCCESS, result.Outcome)

	pack, _ := storage.Snapshot(0)
	assert.Equal(t, []int{0, 0, 0, 0}, pack.CellVmV)
	assert.Equal(t, 100, pack.PackVoltage)
}

func TestPollFatalOnOpenError(t *testing.T) {
	p := transport.NewTestPort(TEST_LOCATOR)
	p.OpenErr = errors.New("no such device")
	engine, _, _ := newTestPoll(t, p)

	result := engine.RunCycle(context.Background())
	assert.Equal(t, domain.CYCLE_FATAL_IO, result.Outcome)
	assert.ErrorContains(t, result.Err, "no such device")
}

type recordingPlugin struct {
	before, after int
	received      int
}

func (p *recordingPlugin) Name() string { return "recording" }
func (p *recordingPlugin) OnSend(unit string, frame []byte) []byte {
	return frame
}
func (p *recordingPlugin) OnReceive(unit string, frame []byte) []byte {
	p.received++
	return frame
}
func (p *recordingPlugin) BeforeCycle(unit string) { p.before++ }
func (p *recordingPlugin) AfterCycle(unit string, pack *domain.BatteryPack) {
	p.after++
	pack.PackSOC = 500
}

func TestPollPlugins(t *testing.T) {
	p := transport.NewTestPort(TEST_LOCATOR)
	p.Responder = func(frame []byte) [][]byte {
		return [][]byte{{frame[0], 1}}
	}
	registry := NewPortRegistry()
	require.NoError(t, registry.Register(p))
	storage := domain.NewEnergyStorage(1)
	plugin := &recordingPlugin{}
	engine := NewPollEngine(PollUnit{
		Name:     "pack1",
		Locator:  p.Locator(),
		Protocol: testProtocol(),
		Plugins:  []port.BMSPlugin{plugin},
	}, registry, storage, zap.NewNop())

	result := engine.RunCycle(context.Background())
	require.Equal(t, domain.CYCLE_SUCCESS, result.Outcome)
	assert.Equal(t, 1, plugin.before)
	assert.Equal(t, 1, plugin.after)
	assert.Equal(t, 3, plugin.received)

	pack, _ := storage.Snapshot(0)
	assert.Equal(t, 500, pack.PackSOC)
}
