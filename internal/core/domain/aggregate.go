package domain

// Aggregate is the logical battery presented to an inverter.
type Aggregate struct {
	BatteryPack
	// Packs is the number of packs the aggregate was built from.
	Packs int

	// pack numbers the global extremes originate from, cell numbers are
	// in the embedded pack fields
	MaxCellVPack int
	MinCellVPack int
	TempMaxPack  int
	TempMinPack  int
}

type SOCMode string

const (
	SOC_MODE_AVERAGE SOCMode = "average"
	SOC_MODE_FIRST   SOCMode = "first"
	SOC_MODE_MIN     SOCMode = "min"
)
