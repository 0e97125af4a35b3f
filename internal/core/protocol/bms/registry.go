// Package bms holds the BMS vendor protocols: request builders, frame
// validation and field decoders, registered by vendor name.
package bms

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/berfenger/bmsgateway/internal/core/port"
)

var ErrUnknownVendor = errors.New("unknown BMS vendor")

const (
	PYLON_CAN     = "PYLON_CAN"
	DALY_CAN      = "DALY_CAN"
	DALY_RS485    = "DALY_RS485"
	JK_CAN        = "JK_CAN"
	JK_RS485      = "JK_RS485"
	PYLON_RS485   = "PYLON_RS485"
	SEPLOS_RS485  = "SEPLOS_RS485"
	SEPLOS_MODBUS = "SEPLOS_MODBUS"
)

var protocols = map[string]func() port.BMSProtocol{
	PYLON_CAN:     PylonCAN,
	DALY_CAN:      DalyCAN,
	DALY_RS485:    DalyRS485,
	JK_CAN:        JKCAN,
	JK_RS485:      JKRS485,
	PYLON_RS485:   PylonRS485,
	SEPLOS_RS485:  SeplosRS485,
	SEPLOS_MODBUS: SeplosModbus,
}

func Lookup(vendor string) (port.BMSProtocol, error) {
	ctor, ok := protocols[vendor]
	if !ok {
		return port.BMSProtocol{}, fmt.Errorf("%w: %s", ErrUnknownVendor, vendor)
	}
	return ctor(), nil
}

func Names() []string {
	return slices.Sorted(maps.Keys(protocols))
}
