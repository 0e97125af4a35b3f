package config_test

import (
	"testing"

	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/plugin"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func TestValidConfig(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.MQTT.BaseTopic = "BMS_Gateway"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bms_gateway", cfg.MQTT.BaseTopic)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.BMS = append(cfg.BMS, config.BMSConfig{
		Name:                "pack1",
		Vendor:              "ACME",
		PortLocator:         "test://bms",
		PollIntervalSeconds: 0,
	})
	cfg.Inverters[0].SOCMode = "max"
	cfg.Plugins.BMS = []string{plugin.SOC_ADJUST}
	cfg.MQTT.BaseTopic = "bms/gateway"

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	for _, want := range []string{
		"duplicate unit name pack1",
		"poll_interval_seconds",
		"unknown BMS vendor",
		"soc_mode",
		"unknown bms plugin soc_adjust",
		"mqtt.base_topic",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLocatorSharedAcrossTransports(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.BMS = append(cfg.BMS, config.BMSConfig{
		Name:                "pack2",
		Vendor:              bms.PYLON_CAN,
		PortLocator:         "test://bms",
		PollIntervalSeconds: 1,
	})
	assert.ErrorContains(t, cfg.Validate(), "locator test://bms is used as serial and can")

	cfg.BMS[1].Vendor = bms.SEPLOS_RS485
	assert.ErrorContains(t, cfg.Validate(), "serial locator test://bms is shared by DALY_RS485 and SEPLOS_RS485")

	cfg.BMS[1].Vendor = bms.DALY_RS485
	cfg.BMS[1].Address = 2
	assert.NoError(t, cfg.Validate(), "two packs of one vendor share a bus")
}

func TestSOCAdjustWindow(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Plugins.Inverter = []string{plugin.SOC_ADJUST}
	assert.Error(t, cfg.Validate())
	cfg.Plugins.SOCAdjust = plugin.SOCAdjustSettings{MinSOC: 50, MaxSOC: 950}
	assert.NoError(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, config.ParseLogLevel("trace"))
	assert.Equal(t, zapcore.WarnLevel, config.ParseLogLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, config.ParseLogLevel("bogus"))
}

func TestRedactedDump(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.MQTT.Password = "hunter2"
	cfg.Plugins.SOCAdjust = plugin.SOCAdjustSettings{MinSOC: 50, MaxSOC: 950}

	out, err := yaml.Marshal(cfg.Redacted())
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), "*redacted*")
	assert.Contains(t, string(out), "log_level: debug")
	assert.Contains(t, string(out), "min_soc: 50")
	assert.Equal(t, "hunter2", cfg.MQTT.Password)
}

func TestHADiscoveryNeedsJSON(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	cfg.MQTT.HADiscoveryTopic = "HomeAssistant"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "homeassistant", cfg.MQTT.HADiscoveryTopic)

	cfg.MQTT.PayloadFormat = config.PAYLOAD_FORMAT_CBOR
	assert.ErrorContains(t, cfg.Validate(), "needs payload_format json")
}

func TestSOCModeDefaultsToAverage(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Inverters[0].SOCMode = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "average", cfg.Inverters[0].SOCMode)
}
