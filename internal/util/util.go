package util

import (
	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/internal/core/protocol/inverter"

	"go.uber.org/zap"
)

// LoadTestConfig returns a valid configuration with one BMS and one
// inverter on in-memory test ports.
func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		BMS: []config.BMSConfig{
			{
				Name:                    "pack1",
				Vendor:                  bms.DALY_RS485,
				PortLocator:             "test://bms",
				Address:                 1,
				PollIntervalSeconds:     1,
				DelayAfterNoBytesMillis: 1,
			},
		},
		Inverters: []config.InverterConfig{
			{
				Name:                    "inverter",
				Vendor:                  inverter.PYLON_CAN,
				PortLocator:             "test://inverter",
				SendIntervalSeconds:     1,
				DelayAfterNoBytesMillis: 1,
				SOCMode:                 "average",
			},
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "bmsgateway",
			PayloadFormat:    config.PAYLOAD_FORMAT_JSON,
			HADiscoveryTopic: "homeassistant",
		},
		Monitor: config.MonitorConfig{
			WatchdogIntervalSeconds: 60,
		},
		Port: 8080,
	}
}
