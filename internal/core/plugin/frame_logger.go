package plugin

import (
	"fmt"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"go.uber.org/zap"
)

// FrameLogger logs every raw frame at debug level.
type FrameLogger struct {
	passthrough
	logger *zap.Logger
}

func NewFrameLogger(logger *zap.Logger) *FrameLogger {
	return &FrameLogger{logger: logger.With(zap.String("plugin", FRAME_LOGGER))}
}

func (p *FrameLogger) Name() string {
	return FRAME_LOGGER
}

func (p *FrameLogger) OnSend(unit string, frame []byte) []byte {
	p.log(unit, "tx", frame)
	return frame
}

func (p *FrameLogger) OnReceive(unit string, frame []byte) []byte {
	p.log(unit, "rx", frame)
	return frame
}

func (p *FrameLogger) AfterCycle(unit string, pack *domain.BatteryPack) {
	if ce := p.logger.Check(zap.DebugLevel, "pack updated"); ce != nil {
		ce.Write(
			zap.String("unit", unit),
			zap.Int("voltage", pack.PackVoltage),
			zap.Int("current", pack.PackCurrent),
			zap.Int("soc", pack.PackSOC),
		)
	}
}

func (p *FrameLogger) log(unit, direction string, frame []byte) {
	if ce := p.logger.Check(zap.DebugLevel, "frame"); ce != nil {
		ce.Write(
			zap.String("unit", unit),
			zap.String("direction", direction),
			zap.String("data", fmt.Sprintf("% X", frame)),
		)
	}
}
