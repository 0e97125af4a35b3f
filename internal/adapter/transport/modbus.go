package transport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusInstrument receives the duration of every Modbus request.
type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

// ModbusPort executes synthetic request buffers against a Modbus RTU or TCP
// device. The response of a request is queued for the next ReceiveFrame.
type ModbusPort struct {
	mu         sync.Mutex
	url        string
	config     modbus.ClientConfiguration
	client     *modbus.ModbusClient
	pending    [][]byte
	instrument []ModbusInstrument
	logger     *zap.Logger
}

// NewModbusPort accepts rtu://<device> and tcp://<host>:<port> locators.
func NewModbusPort(url string, baudRate int, timeout time.Duration, instrument []ModbusInstrument, logger *zap.Logger) (*ModbusPort, error) {
	conf := modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	}
	switch {
	case strings.HasPrefix(url, "rtu://"):
		conf.Speed = uint(baudRate)
		conf.DataBits = 8
		conf.Parity = modbus.PARITY_NONE
		conf.StopBits = 1
	case strings.HasPrefix(url, "tcp://"):
	default:
		return nil, fmt.Errorf("unsupported modbus locator %q", url)
	}
	return &ModbusPort{
		url:        url,
		config:     conf,
		instrument: instrument,
		logger:     logger.With(zap.String("port", url)),
	}, nil
}

func (p *ModbusPort) Locator() string {
	return p.url
}

func (p *ModbusPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	client, err := modbus.NewClient(&p.config)
	if err != nil {
		return err
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("modbus %s: %w", p.url, err)
	}
	p.client = client
	return nil
}

func (p *ModbusPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	p.pending = nil
	return err
}

func (p *ModbusPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

// SendFrame runs the request. Timeouts leave nothing to receive, Modbus
// exceptions are queued as a response with the exception bit set.
func (p *ModbusPort) SendFrame(frame []byte) error {
	req, err := codec.ParseModbusRequest(frame)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return ErrPortClosed
	}
	if err := p.client.SetUnitId(req.UnitID); err != nil {
		return err
	}

	var resp codec.ModbusResponse
	data, err := p.execute(req)
	switch {
	case err == nil:
		resp = codec.ModbusResponse{Function: req.Function, UnitID: req.UnitID, Address: req.Address, Data: data}
	case errors.Is(err, modbus.ErrRequestTimedOut):
		p.logger.Debug("modbus request timed out", zap.Uint16("address", req.Address))
		return nil
	case isModbusException(err):
		p.logger.Debug("modbus exception", zap.Uint16("address", req.Address), zap.Error(err))
		resp = codec.ModbusResponse{Function: req.Function | 0x80, UnitID: req.UnitID, Address: req.Address}
	default:
		return err
	}
	frame, err = resp.Bytes()
	if err != nil {
		return err
	}
	p.pending = append(p.pending, frame)
	return nil
}

func (p *ModbusPort) execute(req codec.ModbusRequest) ([]byte, error) {
	switch req.Function {
	case codec.FuncReadHoldingRegisters, codec.FuncReadInputRegisters:
		regType := modbus.HOLDING_REGISTER
		if req.Function == codec.FuncReadInputRegisters {
			regType = modbus.INPUT_REGISTER
		}
		defer RecordTimer("ReadRegisters", p.instrument)()
		regs, err := p.client.ReadRegisters(req.Address, req.Count, regType)
		if err != nil {
			return nil, err
		}
		return codec.RegistersToBytes(regs), nil
	case codec.FuncReadCoils:
		defer RecordTimer("ReadCoils", p.instrument)()
		bits, err := p.client.ReadCoils(req.Address, req.Count)
		if err != nil {
			return nil, err
		}
		return codec.BitsToBytes(bits), nil
	case codec.FuncReadDiscreteInputs:
		defer RecordTimer("ReadDiscreteInputs", p.instrument)()
		bits, err := p.client.ReadDiscreteInputs(req.Address, req.Count)
		if err != nil {
			return nil, err
		}
		return codec.BitsToBytes(bits), nil
	case codec.FuncWriteRegisters:
		defer RecordTimer("WriteRegisters", p.instrument)()
		if err := p.client.WriteRegisters(req.Address, req.Values); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: function %#x", codec.ErrFraming, req.Function)
}

func isModbusException(err error) bool {
	return errors.Is(err, modbus.ErrIllegalFunction) ||
		errors.Is(err, modbus.ErrIllegalDataAddress) ||
		errors.Is(err, modbus.ErrIllegalDataValue) ||
		errors.Is(err, modbus.ErrServerDeviceFailure) ||
		errors.Is(err, modbus.ErrBadCRC) ||
		errors.Is(err, modbus.ErrProtocolError) ||
		errors.Is(err, modbus.ErrShortFrame)
}

func (p *ModbusPort) ReceiveFrame() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, ErrPortClosed
	}
	if len(p.pending) == 0 {
		return nil, nil
	}
	frame := p.pending[0]
	p.pending = p.pending[1:]
	return frame, nil
}

func (p *ModbusPort) ClearBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}

var _ port.Port = (*ModbusPort)(nil)
