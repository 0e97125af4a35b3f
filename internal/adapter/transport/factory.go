package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"go.uber.org/zap"
)

const (
	DefaultBaudRate       = 9600
	DefaultReceiveTimeout = 500 * time.Millisecond

	// locators with this prefix are served by an in-memory TestPort
	TestLocatorPrefix = "test://"
)

// NewPort builds the port for one locator.
func NewPort(settings port.PortSettings, instrument []ModbusInstrument, logger *zap.Logger) (port.Port, error) {
	if strings.HasPrefix(settings.Locator, TestLocatorPrefix) {
		return NewTestPort(settings.Locator), nil
	}

	timeout := DefaultReceiveTimeout
	if settings.ReceiveTimeout > 0 {
		timeout = time.Duration(settings.ReceiveTimeout) * time.Millisecond
	}
	baudRate := settings.BaudRate
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	switch settings.Transport {
	case port.TRANSPORT_CAN:
		return NewCANPort(settings.Locator, timeout, logger), nil
	case port.TRANSPORT_SERIAL:
		if settings.Framing == nil {
			return nil, fmt.Errorf("serial port %s has no framing", settings.Locator)
		}
		return NewSerialPort(settings.Locator, baudRate, timeout, settings.Framing, logger), nil
	case port.TRANSPORT_MODBUS:
		return NewModbusPort(settings.Locator, baudRate, timeout, instrument, logger)
	}
	return nil, fmt.Errorf("unknown transport %q for %s", settings.Transport, settings.Locator)
}
