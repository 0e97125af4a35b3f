// Package alarm maps vendor alarm bit fields to the canonical alarm model
// and back.
//
// Decoders declare one Table per bit group and apply them in the vendor's
// evaluation order. Dual tier protocols apply the warning table first with
// Overwrite and the protection table last with Escalate, so an ALARM bit is
// never downgraded by a warning bit of the same pass.
package alarm

import (
	"github.com/berfenger/bmsgateway/internal/core/domain"
)

type Mode int

const (
	// Overwrite writes the table level for set bits and NONE for cleared bits.
	Overwrite Mode = iota
	// Escalate writes the table level for set bits and leaves cleared bits untouched.
	Escalate
	// Clear writes NONE for set bits. Used by vendors with separate clear flags.
	Clear
)

// Bit maps one bit position to an alarm kind.
type Bit struct {
	Pos   uint
	Alarm domain.Alarm
}

// Table is one bit group of a vendor alarm frame.
type Table struct {
	Level domain.AlarmLevel
	Mode  Mode
	Bits  []Bit
}

// Warnings returns a single tier table: bit=1 is WARNING, bit=0 is NONE.
func Warnings(bits ...Bit) Table {
	return Table{Level: domain.ALARM_LEVEL_WARNING, Mode: Overwrite, Bits: bits}
}

// Protections returns an ALARM tier table applied after the warning tier.
func Protections(bits ...Bit) Table {
	return Table{Level: domain.ALARM_LEVEL_ALARM, Mode: Escalate, Bits: bits}
}

// Alarms returns a single tier table where bit=1 is ALARM and bit=0 is NONE.
func Alarms(bits ...Bit) Table {
	return Table{Level: domain.ALARM_LEVEL_ALARM, Mode: Overwrite, Bits: bits}
}

func (t Table) Apply(p *domain.BatteryPack, value uint64) {
	for _, b := range t.Bits {
		set := value&(1<<b.Pos) != 0
		switch t.Mode {
		case Overwrite:
			if set {
				p.SetAlarm(b.Alarm, t.Level)
			} else {
				p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_NONE)
			}
		case Escalate:
			if set {
				p.SetAlarm(b.Alarm, t.Level)
			}
		case Clear:
			if set {
				p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_NONE)
			}
		}
	}
}

// Encode sets the bit of every alarm whose level is at least the table level.
func (t Table) Encode(alarms map[domain.Alarm]domain.AlarmLevel) uint64 {
	var v uint64
	for _, b := range t.Bits {
		if alarms[b.Alarm] >= t.Level {
			v |= 1 << b.Pos
		}
	}
	return v
}

// Kinds lists the alarm kinds a table is responsible for.
func (t Table) Kinds() []domain.Alarm {
	kinds := make([]domain.Alarm, len(t.Bits))
	for i, b := range t.Bits {
		kinds[i] = b.Alarm
	}
	return kinds
}

// Step pairs a table with the raw value it is applied to.
type Step struct {
	Table Table
	Value uint64
}

// Normalize applies steps in order.
func Normalize(p *domain.BatteryPack, steps ...Step) {
	for _, s := range steps {
		s.Table.Apply(p, s.Value)
	}
}

// Leveled maps a 2-bit severity code per alarm kind: 0 is NONE, 1 is
// WARNING, 2 and 3 are ALARM. Pos is the position of the low bit.
type Leveled []Bit

func (l Leveled) Apply(p *domain.BatteryPack, value uint64) {
	for _, b := range l {
		switch (value >> b.Pos) & 0x3 {
		case 0:
			p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_NONE)
		case 1:
			p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_WARNING)
		default:
			p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_ALARM)
		}
	}
}

func (l Leveled) Encode(alarms map[domain.Alarm]domain.AlarmLevel) uint64 {
	var v uint64
	for _, b := range l {
		v |= uint64(alarms[b.Alarm]) << b.Pos
	}
	return v
}

// Pairs encodes each alarm as a 2-bit flag: 01 active, 10 inactive.
type Pairs []Bit

func (pp Pairs) Encode(alarms map[domain.Alarm]domain.AlarmLevel, level domain.AlarmLevel) uint64 {
	var v uint64
	for _, b := range pp {
		if alarms[b.Alarm] >= level {
			v |= 0x1 << b.Pos
		} else {
			v |= 0x2 << b.Pos
		}
	}
	return v
}

func (pp Pairs) Apply(p *domain.BatteryPack, value uint64, level domain.AlarmLevel) {
	for _, b := range pp {
		switch (value >> b.Pos) & 0x3 {
		case 0x1:
			p.SetAlarm(b.Alarm, level)
		case 0x2:
			p.SetAlarm(b.Alarm, domain.ALARM_LEVEL_NONE)
		}
	}
}

// Merge returns the most severe level per alarm kind across all maps.
func Merge(maps ...map[domain.Alarm]domain.AlarmLevel) map[domain.Alarm]domain.AlarmLevel {
	out := make(map[domain.Alarm]domain.AlarmLevel)
	for _, m := range maps {
		for a, l := range m {
			out[a] = max(out[a], l)
		}
	}
	return out
}
