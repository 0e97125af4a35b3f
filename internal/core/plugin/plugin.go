// Package plugin holds the built-in BMS and inverter plugins and the table
// they are created from by name.
package plugin

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"go.uber.org/zap"
)

var ErrUnknownPlugin = errors.New("unknown plugin")

const (
	FRAME_LOGGER  = "frame_logger"
	SOC_ADJUST    = "soc_adjust"
	CURRENT_LIMIT = "current_limit"
)

// Settings are the parameters of the configurable plugins.
type Settings struct {
	SOCAdjust    SOCAdjustSettings    `mapstructure:"soc_adjust" yaml:"soc_adjust"`
	CurrentLimit CurrentLimitSettings `mapstructure:"current_limit" yaml:"current_limit"`
}

// factory creates a plugin for one side of the gateway. A nil constructor
// means the plugin does not apply to that side.
type factory struct {
	bms      func(s Settings, logger *zap.Logger) port.BMSPlugin
	inverter func(s Settings, logger *zap.Logger) port.InverterPlugin
}

var plugins = map[string]factory{
	FRAME_LOGGER: {
		bms:      func(_ Settings, logger *zap.Logger) port.BMSPlugin { return NewFrameLogger(logger) },
		inverter: func(_ Settings, logger *zap.Logger) port.InverterPlugin { return NewFrameLogger(logger) },
	},
	SOC_ADJUST: {
		inverter: func(s Settings, _ *zap.Logger) port.InverterPlugin { return NewSOCAdjust(s.SOCAdjust) },
	},
	CURRENT_LIMIT: {
		inverter: func(s Settings, _ *zap.Logger) port.InverterPlugin { return NewCurrentLimit(s.CurrentLimit) },
	},
}

func BMSPlugins(names []string, s Settings, logger *zap.Logger) ([]port.BMSPlugin, error) {
	out := make([]port.BMSPlugin, 0, len(names))
	for _, name := range names {
		f, ok := plugins[name]
		if !ok || f.bms == nil {
			return nil, fmt.Errorf("%w: bms plugin %s", ErrUnknownPlugin, name)
		}
		out = append(out, f.bms(s, logger))
	}
	return out, nil
}

func InverterPlugins(names []string, s Settings, logger *zap.Logger) ([]port.InverterPlugin, error) {
	out := make([]port.InverterPlugin, 0, len(names))
	for _, name := range names {
		f, ok := plugins[name]
		if !ok || f.inverter == nil {
			return nil, fmt.Errorf("%w: inverter plugin %s", ErrUnknownPlugin, name)
		}
		out = append(out, f.inverter(s, logger))
	}
	return out, nil
}

// BMSNames lists the plugins usable on BMS units.
func BMSNames() []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(plugins)) {
		if plugins[name].bms != nil {
			names = append(names, name)
		}
	}
	return names
}

func InverterNames() []string {
	var names []string
	for _, name := range slices.Sorted(maps.Keys(plugins)) {
		if plugins[name].inverter != nil {
			names = append(names, name)
		}
	}
	return names
}

// passthrough implements every hook as a no-op.
type passthrough struct{}

func (passthrough) OnSend(_ string, frame []byte) []byte { return frame }
func (passthrough) OnReceive(_ string, frame []byte) []byte { return frame }
func (passthrough) BeforeCycle(string) {}
func (passthrough) AfterCycle(string, *domain.BatteryPack) {}
func (passthrough) ManipulatePack(string, *domain.Aggregate) {}
