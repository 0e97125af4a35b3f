package plugin

import "github.com/berfenger/bmsgateway/internal/core/domain"

// SOCAdjustSettings bound the usable SOC window in 0.1%.
type SOCAdjustSettings struct {
	MinSOC int `mapstructure:"min_soc" yaml:"min_soc"`
	MaxSOC int `mapstructure:"max_soc" yaml:"max_soc"`
}

func (s SOCAdjustSettings) Valid() bool {
	return s.MinSOC >= 0 && s.MaxSOC <= 1000 && s.MinSOC < s.MaxSOC
}

// SOCAdjust rescales the reported SOC so the inverter sees 0% at MinSOC
// and 100% at MaxSOC.
type SOCAdjust struct {
	passthrough
	settings SOCAdjustSettings
}

func NewSOCAdjust(s SOCAdjustSettings) *SOCAdjust {
	return &SOCAdjust{settings: s}
}

func (p *SOCAdjust) Name() string {
	return SOC_ADJUST
}

func (p *SOCAdjust) ManipulatePack(_ string, agg *domain.Aggregate) {
	if !p.settings.Valid() {
		return
	}
	span := p.settings.MaxSOC - p.settings.MinSOC
	soc := (agg.PackSOC - p.settings.MinSOC) * 1000 / span
	agg.PackSOC = max(0, min(1000, soc))
}
