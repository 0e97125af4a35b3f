package mqtt

import (
	"fmt"
	"strings"
)

const (
	SENSOR_TYPE_SENSOR = "sensor"
	SENSOR_TYPE_BINARY = "binary_sensor"

	SENSOR_ID_BRIDGE_STATE = "bridge_state"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	ValueTemplate     string            `json:"value_template,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

// PackSensor is one Home Assistant entity read from a pack state payload.
type PackSensor struct {
	Device            Device
	Unit              string
	Id                string
	SensorType        string
	Name              string
	Field             string  // json field of the pack payload
	Scale             float64 // divisor applied to the raw field, 0 keeps it
	UnitOfMeasurement string
	StateClass        string
	DeviceClass       string
	EntityCategory    string
	EnabledByDefault  *bool
	Icon              string
}

func (s PackSensor) UniqueId() string {
	return fmt.Sprintf("%s_%s", s.Device.Id, s.Id)
}

var disabled = false

type packField struct {
	id, name, field string
	scale           float64
	unit, class     string
	diagnostic      bool
	binary          bool
	icon            string
}

var packFields = []packField{
	{id: "soc", name: "SOC", field: "pack_soc", scale: 10, unit: "%", class: "battery"},
	{id: "soh", name: "SOH", field: "pack_soh", scale: 10, unit: "%", icon: "mdi:heart-pulse", diagnostic: true},
	{id: "voltage", name: "Voltage", field: "pack_voltage", scale: 10, unit: "V", class: "voltage"},
	{id: "current", name: "Current", field: "pack_current", scale: 10, unit: "A", class: "current"},
	{id: "temp_max", name: "Max Temperature", field: "temp_max", scale: 10, unit: "°C", class: "temperature"},
	{id: "temp_min", name: "Min Temperature", field: "temp_min", scale: 10, unit: "°C", class: "temperature"},
	{id: "cell_max", name: "Max Cell Voltage", field: "max_cell_mv", scale: 1000, unit: "V", class: "voltage"},
	{id: "cell_min", name: "Min Cell Voltage", field: "min_cell_mv", scale: 1000, unit: "V", class: "voltage"},
	{id: "cell_diff", name: "Cell Difference", field: "cell_diff_mv", unit: "mV", icon: "mdi:scale-balance"},
	{id: "remaining", name: "Remaining Capacity", field: "remaining_capacity_mah", scale: 1000, unit: "Ah", icon: "mdi:battery-arrow-up"},
	{id: "cycles", name: "Cycles", field: "bms_cycles", icon: "mdi:counter", diagnostic: true},
	{id: "charge_state", name: "State", field: "charge_state", icon: "mdi:battery-sync"},
	{id: "charge_mos", name: "Charge MOS", field: "charge_mos_state", binary: true, diagnostic: true},
	{id: "discharge_mos", name: "Discharge MOS", field: "discharge_mos_state", binary: true, diagnostic: true},
	{id: "balancing", name: "Balancing", field: "cell_balance_active", binary: true, diagnostic: true},
}

// PackSensors lists the entities exposed for one BMS unit.
func PackSensors(unit string, version string) []PackSensor {
	dev := Device{
		Id:           "bmsgateway_" + strings.ReplaceAll(unit, "-", "_"),
		Name:         "Battery " + unit,
		Version:      version,
		Model:        "bmsgateway",
		Manufacturer: "bmsgateway",
	}
	sensors := make([]PackSensor, 0, len(packFields))
	for _, f := range packFields {
		s := PackSensor{
			Device:            dev,
			Unit:              unit,
			Id:                f.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              f.name,
			Field:             f.field,
			Scale:             f.scale,
			UnitOfMeasurement: f.unit,
			DeviceClass:       f.class,
			Icon:              f.icon,
		}
		if f.binary {
			s.SensorType = SENSOR_TYPE_BINARY
		} else if f.unit != "" {
			s.StateClass = "measurement"
		}
		if f.diagnostic {
			s.EntityCategory = "diagnostic"
			s.EnabledByDefault = &disabled
		}
		sensors = append(sensors, s)
	}
	return sensors
}

func HADiscoverySensorTopic(discoveryTopic string, sensor PackSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func PackSensorToHADiscoveryMessage(client *MQTTClient, sensor PackSensor) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:            device(sensor.Device),
		StateTopic:        client.PackStateTopic(sensor.Unit),
		ValueTemplate:     valueTemplate(sensor),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           client.BridgeStateTopic(),
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId(),
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.SensorType == SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = "true"
		disConfig.PayloadOff = "false"
	}
	return disConfig
}

// BridgeStateToHADiscoveryMessage exposes the gateway availability as a binary sensor.
func BridgeStateToHADiscoveryMessage(client *MQTTClient, version string) (string, HADiscoveryConfig) {
	dev := HADiscoveryDevice{
		Id:           []string{"bmsgateway"},
		Manufacturer: "bmsgateway",
		Model:        "bmsgateway",
		Name:         "BMS Gateway",
		Version:      version,
	}
	topic := fmt.Sprintf("%s/%s/%s/%s/config", client.cfg.HADiscoveryTopic, SENSOR_TYPE_BINARY, dev.Id[0], SENSOR_ID_BRIDGE_STATE)
	return topic, HADiscoveryConfig{
		Device:         dev,
		StateTopic:     client.BridgeStateTopic(),
		DeviceClass:    "connectivity",
		EntityCategory: "diagnostic",
		Name:           "Bridge State",
		UniqueId:       "bmsgateway_" + SENSOR_ID_BRIDGE_STATE,
		Platform:       "mqtt",
		PayloadOn:      MQTT_PAYLOAD_ONLINE,
		PayloadOff:     MQTT_PAYLOAD_OFFLINE,
	}
}

func valueTemplate(sensor PackSensor) string {
	switch {
	case sensor.SensorType == SENSOR_TYPE_BINARY:
		return fmt.Sprintf("{{ value_json.%s | lower }}", sensor.Field)
	case sensor.Scale != 0:
		return fmt.Sprintf("{{ (value_json.%s | float / %g) | round(3) }}", sensor.Field, sensor.Scale)
	}
	return fmt.Sprintf("{{ value_json.%s }}", sensor.Field)
}

func device(d Device) HADiscoveryDevice {
	dev := HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
	if dev.ViaDevice == "" && d.Id != "bmsgateway" {
		dev.ViaDevice = "bmsgateway"
	}
	return dev
}
