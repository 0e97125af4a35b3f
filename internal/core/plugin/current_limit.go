package plugin

import "github.com/berfenger/bmsgateway/internal/core/domain"

// CurrentLimitSettings cap the current limits sent to the inverter, in 0.1A.
// Zero leaves a limit untouched.
type CurrentLimitSettings struct {
	MaxChargeCurrent    int `mapstructure:"max_charge_current" yaml:"max_charge_current"`
	MaxDischargeCurrent int `mapstructure:"max_discharge_current" yaml:"max_discharge_current"`
}

type CurrentLimit struct {
	passthrough
	settings CurrentLimitSettings
}

func NewCurrentLimit(s CurrentLimitSettings) *CurrentLimit {
	return &CurrentLimit{settings: s}
}

func (p *CurrentLimit) Name() string {
	return CURRENT_LIMIT
}

func (p *CurrentLimit) ManipulatePack(_ string, agg *domain.Aggregate) {
	if p.settings.MaxChargeCurrent > 0 {
		agg.MaxPackChargeCurrent = min(agg.MaxPackChargeCurrent, p.settings.MaxChargeCurrent)
	}
	if p.settings.MaxDischargeCurrent > 0 {
		agg.MaxPackDischargeCurrent = min(agg.MaxPackDischargeCurrent, p.settings.MaxDischargeCurrent)
	}
	if !agg.ChargeMOSState {
		agg.MaxPackChargeCurrent = 0
	}
	if !agg.DischargeMOSState {
		agg.MaxPackDischargeCurrent = 0
	}
}
