// Package inverter holds the inverter vendor protocols: encoders turning the
// aggregate into vendor frames and responders for request driven links.
package inverter

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/berfenger/bmsgateway/internal/core/port"
)

var ErrUnknownVendor = errors.New("unknown inverter vendor")

const (
	PYLON_CAN      = "PYLON_CAN"
	DEYE_CAN       = "DEYE_CAN"
	SMA_SI_CAN     = "SMA_SI_CAN"
	GROWATT_HV_CAN = "GROWATT_HV_CAN"
	PYLON_HV_CAN   = "PYLON_HV_CAN"
	PYLON_RS485    = "PYLON_RS485"
)

var protocols = map[string]func() port.InverterProtocol{
	PYLON_CAN:      PylonCAN,
	DEYE_CAN:       DeyeCAN,
	SMA_SI_CAN:     SMASunnyIslandCAN,
	GROWATT_HV_CAN: GrowattHVCAN,
	PYLON_HV_CAN:   PylonHVCAN,
	PYLON_RS485:    PylonRS485,
}

func Lookup(vendor string) (port.InverterProtocol, error) {
	ctor, ok := protocols[vendor]
	if !ok {
		return port.InverterProtocol{}, fmt.Errorf("%w: %s", ErrUnknownVendor, vendor)
	}
	return ctor(), nil
}

func Names() []string {
	return slices.Sorted(maps.Keys(protocols))
}
