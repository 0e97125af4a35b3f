package domain

import (
	"fmt"
	"strings"
)

// Alarm is the vendor neutral alarm kind.
type Alarm int

const (
	ALARM_CELL_VOLTAGE_HIGH Alarm = iota
	ALARM_CELL_VOLTAGE_LOW
	ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH
	ALARM_CELL_TEMPERATURE_HIGH
	ALARM_CELL_TEMPERATURE_LOW
	ALARM_PACK_VOLTAGE_HIGH
	ALARM_PACK_VOLTAGE_LOW
	ALARM_PACK_TEMPERATURE_HIGH
	ALARM_PACK_TEMPERATURE_LOW
	ALARM_CHARGE_CURRENT_HIGH
	ALARM_DISCHARGE_CURRENT_HIGH
	ALARM_CHARGE_VOLTAGE_HIGH
	ALARM_DISCHARGE_VOLTAGE_LOW
	ALARM_CHARGE_TEMPERATURE_HIGH
	ALARM_CHARGE_TEMPERATURE_LOW
	ALARM_DISCHARGE_TEMPERATURE_HIGH
	ALARM_DISCHARGE_TEMPERATURE_LOW
	ALARM_TEMPERATURE_SENSOR_DIFFERENCE_HIGH
	ALARM_ENCASING_TEMPERATURE_HIGH
	ALARM_CHARGE_MODULE_TEMPERATURE_HIGH
	ALARM_DISCHARGE_MODULE_TEMPERATURE_HIGH
	ALARM_SOC_LOW
	ALARM_SOC_HIGH
	ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION
	ALARM_FAILURE_SENSOR_PACK_VOLTAGE
	ALARM_FAILURE_SENSOR_PACK_CURRENT
	ALARM_FAILURE_SENSOR_PACK_TEMPERATURE
	ALARM_FAILURE_SENSOR_CELL_VOLTAGE
	ALARM_FAILURE_SENSOR_CHARGE_MODULE_TEMPERATURE
	ALARM_FAILURE_SENSOR_DISCHARGE_MODULE_TEMPERATURE
	ALARM_FAILURE_CHARGE_BREAKER
	ALARM_FAILURE_DISCHARGE_BREAKER
	ALARM_FAILURE_COMMUNICATION_INTERNAL
	ALARM_FAILURE_COMMUNICATION_EXTERNAL
	ALARM_FAILURE_EEPROM
	ALARM_FAILURE_CLOCK_MODULE
	ALARM_FAILURE_OTHER

	alarmCount
)

var alarmNames = [alarmCount]string{
	"CELL_VOLTAGE_HIGH",
	"CELL_VOLTAGE_LOW",
	"CELL_VOLTAGE_DIFFERENCE_HIGH",
	"CELL_TEMPERATURE_HIGH",
	"CELL_TEMPERATURE_LOW",
	"PACK_VOLTAGE_HIGH",
	"PACK_VOLTAGE_LOW",
	"PACK_TEMPERATURE_HIGH",
	"PACK_TEMPERATURE_LOW",
	"CHARGE_CURRENT_HIGH",
	"DISCHARGE_CURRENT_HIGH",
	"CHARGE_VOLTAGE_HIGH",
	"DISCHARGE_VOLTAGE_LOW",
	"CHARGE_TEMPERATURE_HIGH",
	"CHARGE_TEMPERATURE_LOW",
	"DISCHARGE_TEMPERATURE_HIGH",
	"DISCHARGE_TEMPERATURE_LOW",
	"TEMPERATURE_SENSOR_DIFFERENCE_HIGH",
	"ENCASING_TEMPERATURE_HIGH",
	"CHARGE_MODULE_TEMPERATURE_HIGH",
	"DISCHARGE_MODULE_TEMPERATURE_HIGH",
	"SOC_LOW",
	"SOC_HIGH",
	"FAILURE_SHORT_CIRCUIT_PROTECTION",
	"FAILURE_SENSOR_PACK_VOLTAGE",
	"FAILURE_SENSOR_PACK_CURRENT",
	"FAILURE_SENSOR_PACK_TEMPERATURE",
	"FAILURE_SENSOR_CELL_VOLTAGE",
	"FAILURE_SENSOR_CHARGE_MODULE_TEMPERATURE",
	"FAILURE_SENSOR_DISCHARGE_MODULE_TEMPERATURE",
	"FAILURE_CHARGE_BREAKER",
	"FAILURE_DISCHARGE_BREAKER",
	"FAILURE_COMMUNICATION_INTERNAL",
	"FAILURE_COMMUNICATION_EXTERNAL",
	"FAILURE_EEPROM",
	"FAILURE_CLOCK_MODULE",
	"FAILURE_OTHER",
}

// Alarms returns every alarm kind in declaration order.
func Alarms() []Alarm {
	all := make([]Alarm, alarmCount)
	for i := range all {
		all[i] = Alarm(i)
	}
	return all
}

func (a Alarm) String() string {
	if a < 0 || a >= alarmCount {
		return fmt.Sprintf("ALARM(%d)", int(a))
	}
	return alarmNames[a]
}

func (a Alarm) MarshalText() ([]byte, error) {
	if a < 0 || a >= alarmCount {
		return nil, fmt.Errorf("unknown alarm %d", int(a))
	}
	return []byte(alarmNames[a]), nil
}

func (a *Alarm) UnmarshalText(b []byte) error {
	s := strings.ToUpper(string(b))
	for i, name := range alarmNames {
		if name == s {
			*a = Alarm(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alarm %q", string(b))
}

// AlarmLevel is ordered, a higher value is more severe.
type AlarmLevel int

const (
	ALARM_LEVEL_NONE AlarmLevel = iota
	ALARM_LEVEL_WARNING
	ALARM_LEVEL_ALARM
)

func (l AlarmLevel) String() string {
	switch l {
	case ALARM_LEVEL_NONE:
		return "NONE"
	case ALARM_LEVEL_WARNING:
		return "WARNING"
	case ALARM_LEVEL_ALARM:
		return "ALARM"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l AlarmLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *AlarmLevel) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "NONE":
		*l = ALARM_LEVEL_NONE
	case "WARNING":
		*l = ALARM_LEVEL_WARNING
	case "ALARM":
		*l = ALARM_LEVEL_ALARM
	default:
		return fmt.Errorf("unknown alarm level %q", string(b))
	}
	return nil
}
