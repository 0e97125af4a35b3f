package inverter

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const (
	pylonRS485CID1 = 0x46
	// 0.1K
	kelvinOffset = 2731
)

var (
	pylonRS485Warnings    = alarm.Warnings(bms.PylonRS485AlarmBits...)
	pylonRS485Protections = alarm.Protections(bms.PylonRS485AlarmBits...)
)

// PylonRS485 answers the system commands of the Pylon ASCII protocol in the
// same layout the Pylon BMS decoder reads.
func PylonRS485() port.InverterProtocol {
	return port.InverterProtocol{
		Name:      PYLON_RS485,
		Transport: port.TRANSPORT_SERIAL,
		Framing:   codec.SplitASCII,
		Respond:   pylonRS485Respond,
	}
}

func pylonRS485Respond(request []byte, agg *domain.Aggregate) ([][]byte, port.FrameResult, error) {
	req, err := codec.DecodeASCIIFrame(request)
	if err != nil || req.CID1 != pylonRS485CID1 {
		return nil, port.FRAME_INVALID, nil
	}
	resp := codec.ASCIIFrame{
		Version: bms.PylonRS485Version,
		Address: req.Address,
		CID1:    pylonRS485CID1,
		CID2:    codec.RTNOk,
	}

	var info codec.Builder
	switch req.CID2 {
	case bms.PylonRS485SystemInfo:
		pylonRS485Info(&info, agg)
	case bms.PylonRS485SystemAnalog:
		pylonRS485Analog(&info, agg)
	case bms.PylonRS485SystemAlarm:
		info.U16(int(pylonRS485Warnings.Encode(agg.Alarms))).
			U16(int(pylonRS485Protections.Encode(agg.Alarms)))
	default:
		resp.CID2 = codec.RTNCID2Invalid
		return [][]byte{resp.Encode()}, port.FRAME_DONE, nil
	}
	resp.Info = info.Bytes()
	return [][]byte{resp.Encode()}, port.FRAME_DONE, info.Err()
}

func pylonRS485Info(b *codec.Builder, agg *domain.Aggregate) {
	major, minor := softwareVersion()
	b.String(10, agg.HardwareVersion).
		String(20, manufacturer(agg, pylonManufacturer)).
		U8(major).
		U8(minor)
}

func pylonRS485Analog(b *codec.Builder, agg *domain.Aggregate) {
	b.U16(agg.PackVoltage*100).
		S16(agg.PackCurrent*10).
		U8(agg.PackSOC/10).
		U16(agg.BMSCycles).
		U16(agg.BMSCycles).
		U8(agg.PackSOH/10).
		U8(agg.PackSOH/10).
		U16(agg.MaxCellmV).
		U16(agg.MaxCellVNum).
		U16(agg.MinCellmV).
		U16(agg.MinCellVNum).
		U16(agg.TempAverage+kelvinOffset).
		U16(agg.TempMax+kelvinOffset).
		U16(agg.TempMaxCellNum).
		U16(agg.TempMin+kelvinOffset).
		U16(agg.TempMinCellNum)
}
