package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/plugin"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/internal/core/protocol/inverter"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level    `yaml:"log_level"`
	Port      uint             `mapstructure:"port" yaml:"port"`
	HttpLog   bool             `mapstructure:"http_log" yaml:"http_log"`
	BMS       []BMSConfig      `mapstructure:"bms" yaml:"bms"`
	Inverters []InverterConfig `mapstructure:"inverters" yaml:"inverters"`
	Ports     []PortConfig     `mapstructure:"ports" yaml:"ports,omitempty"`
	Plugins   PluginsConfig    `mapstructure:"plugins" yaml:"plugins"`
	MQTT      MQTTConfig       `mapstructure:"mqtt" yaml:"mqtt"`
	Monitor   MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
}

type BMSConfig struct {
	Name                    string `mapstructure:"name" yaml:"name"`
	Vendor                  string `mapstructure:"vendor" yaml:"vendor"`
	PortLocator             string `mapstructure:"port_locator" yaml:"port_locator"`
	Address                 int    `mapstructure:"address" yaml:"address"`
	PollIntervalSeconds     uint   `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	DelayAfterNoBytesMillis uint   `mapstructure:"delay_after_no_bytes_millis" yaml:"delay_after_no_bytes_millis"`
}

type InverterConfig struct {
	Name                    string `mapstructure:"name" yaml:"name"`
	Vendor                  string `mapstructure:"vendor" yaml:"vendor"`
	PortLocator             string `mapstructure:"port_locator" yaml:"port_locator"`
	SendIntervalSeconds     uint   `mapstructure:"send_interval_seconds" yaml:"send_interval_seconds"`
	DelayAfterNoBytesMillis uint   `mapstructure:"delay_after_no_bytes_millis" yaml:"delay_after_no_bytes_millis"`
	SOCMode                 string `mapstructure:"soc_mode" yaml:"soc_mode"`
}

// PortConfig overrides the transport parameters of one locator.
type PortConfig struct {
	Locator              string `mapstructure:"locator" yaml:"locator"`
	BaudRate             int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	ReceiveTimeoutMillis int    `mapstructure:"receive_timeout_millis" yaml:"receive_timeout_millis"`
}

type PluginsConfig struct {
	BMS             []string `mapstructure:"bms" yaml:"bms"`
	Inverter        []string `mapstructure:"inverter" yaml:"inverter"`
	plugin.Settings `mapstructure:",squash" yaml:",inline"`
}

type MQTTConfig struct {
	Enable        bool   `mapstructure:"enable" yaml:"enable"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	BaseTopic     string `mapstructure:"base_topic" yaml:"base_topic"`
	PayloadFormat string `mapstructure:"payload_format" yaml:"payload_format"`

	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable" yaml:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic" yaml:"ha_discovery_topic"`
}

type MonitorConfig struct {
	WatchdogIntervalSeconds uint `mapstructure:"watchdog_interval_seconds" yaml:"watchdog_interval_seconds"`
}

const (
	PAYLOAD_FORMAT_JSON = "json"
	PAYLOAD_FORMAT_CBOR = "cbor"
)

var ErrInvalidConfig = errors.New("invalid config")

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// ParseLogLevel maps the configured level name, trace is logged as debug.
func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

// Validate checks the whole configuration and normalizes the MQTT topic.
// Every problem found is reported.
func (cfg *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if len(cfg.BMS) == 0 {
		fail("at least one bms is required")
	}

	names := make(map[string]bool)
	transports := make(map[string]port.Transport)
	// a serial bus is cut into frames by one vendor framing
	serialVendors := make(map[string]string)
	useLocator := func(unit, locator string, transport port.Transport, vendor string) {
		if locator == "" {
			fail("%s: port_locator is empty", unit)
			return
		}
		if t, ok := transports[locator]; ok && t != transport {
			fail("%s: locator %s is used as %s and %s", unit, locator, t, transport)
			return
		}
		transports[locator] = transport
		if transport != port.TRANSPORT_SERIAL {
			return
		}
		if v, ok := serialVendors[locator]; ok && v != vendor {
			fail("%s: serial locator %s is shared by %s and %s", unit, locator, v, vendor)
			return
		}
		serialVendors[locator] = vendor
	}
	useName := func(name string) {
		if name == "" {
			fail("unit name is empty")
		} else if names[name] {
			fail("duplicate unit name %s", name)
		}
		names[name] = true
	}

	for _, b := range cfg.BMS {
		useName(b.Name)
		if b.PollIntervalSeconds < 1 {
			fail("%s: poll_interval_seconds should be >= 1", b.Name)
		}
		proto, err := bms.Lookup(b.Vendor)
		if err != nil {
			fail("%s: %v", b.Name, err)
			continue
		}
		useLocator(b.Name, b.PortLocator, proto.Transport, b.Vendor)
	}
	for i := range cfg.Inverters {
		inv := &cfg.Inverters[i]
		if inv.SOCMode == "" {
			inv.SOCMode = string(domain.SOC_MODE_AVERAGE)
		}
		useName(inv.Name)
		if inv.SendIntervalSeconds < 1 {
			fail("%s: send_interval_seconds should be >= 1", inv.Name)
		}
		switch domain.SOCMode(inv.SOCMode) {
		case domain.SOC_MODE_AVERAGE, domain.SOC_MODE_FIRST, domain.SOC_MODE_MIN:
		default:
			fail("%s: unknown soc_mode %q", inv.Name, inv.SOCMode)
		}
		proto, err := inverter.Lookup(inv.Vendor)
		if err != nil {
			fail("%s: %v", inv.Name, err)
			continue
		}
		useLocator(inv.Name, inv.PortLocator, proto.Transport, inv.Vendor)
	}

	for _, name := range cfg.Plugins.BMS {
		if !slices.Contains(plugin.BMSNames(), name) {
			fail("unknown bms plugin %s", name)
		}
	}
	for _, name := range cfg.Plugins.Inverter {
		if !slices.Contains(plugin.InverterNames(), name) {
			fail("unknown inverter plugin %s", name)
		}
	}
	if slices.Contains(cfg.Plugins.Inverter, plugin.SOC_ADJUST) && !cfg.Plugins.SOCAdjust.Valid() {
		fail("soc_adjust needs 0 <= min_soc < max_soc <= 1000")
	}

	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		fail("mqtt.base_topic: %v", err)
	}
	cfg.MQTT.BaseTopic = baseTopic
	switch cfg.MQTT.PayloadFormat {
	case PAYLOAD_FORMAT_JSON, PAYLOAD_FORMAT_CBOR:
	default:
		fail("unknown mqtt.payload_format %q", cfg.MQTT.PayloadFormat)
	}
	if cfg.MQTT.HADiscoveryEnable {
		hadTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			fail("mqtt.ha_discovery_topic: %v", err)
		}
		cfg.MQTT.HADiscoveryTopic = hadTopic
		if cfg.MQTT.PayloadFormat != PAYLOAD_FORMAT_JSON {
			fail("mqtt.ha_discovery_enable needs payload_format json")
		}
	}

	if cfg.Monitor.WatchdogIntervalSeconds < 1 {
		fail("monitor.watchdog_interval_seconds should be >= 1")
	}

	return errors.Join(errs...)
}

// PortSettings returns the override for locator, zero values when none is configured.
func (cfg *Config) PortSettings(locator string) PortConfig {
	for _, p := range cfg.Ports {
		if p.Locator == locator {
			return p
		}
	}
	return PortConfig{Locator: locator}
}

// Redacted returns a copy safe to print.
func (cfg Config) Redacted() Config {
	if cfg.MQTT.Username != "" {
		cfg.MQTT.Username = "*redacted*"
	}
	if cfg.MQTT.Password != "" {
		cfg.MQTT.Password = "*redacted*"
	}
	return cfg
}
