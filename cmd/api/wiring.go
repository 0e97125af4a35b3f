package main

import (
	"bufio"
	"time"

	"github.com/berfenger/bmsgateway/internal/adapter/transport"
	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/actor"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/plugin"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/internal/core/protocol/inverter"
	"github.com/berfenger/bmsgateway/internal/core/service"
	"github.com/berfenger/bmsgateway/internal/metrics"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

func bmsUnitNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.BMS))
	for i, b := range cfg.BMS {
		names[i] = b.Name
	}
	return names
}

// buildPorts registers one port per locator. Ports are opened by the first cycle using them.
func buildPorts(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*service.PortRegistry, error) {
	registry := service.NewPortRegistry()
	instrument := []transport.ModbusInstrument{m.ModbusInstrument()}

	add := func(locator string, transportKind port.Transport, framing bufio.SplitFunc) error {
		if _, err := registry.Get(locator); err == nil {
			return nil
		}
		override := cfg.PortSettings(locator)
		settings := port.PortSettings{
			Locator:        locator,
			Transport:      transportKind,
			BaudRate:       override.BaudRate,
			ReceiveTimeout: override.ReceiveTimeoutMillis,
			Framing:        framing,
		}
		p, err := transport.NewPort(settings, instrument, logger.With(zap.String("port", locator)))
		if err != nil {
			return err
		}
		return registry.Register(p)
	}

	for _, b := range cfg.BMS {
		proto, err := bms.Lookup(b.Vendor)
		if err != nil {
			return nil, err
		}
		if err := add(b.PortLocator, proto.Transport, proto.Framing); err != nil {
			return nil, err
		}
	}
	for _, inv := range cfg.Inverters {
		proto, err := inverter.Lookup(inv.Vendor)
		if err != nil {
			return nil, err
		}
		if err := add(inv.PortLocator, proto.Transport, proto.Framing); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildUnits creates one engine per configured BMS and inverter.
func buildUnits(cfg *config.Config, registry *service.PortRegistry, storage *domain.EnergyStorage,
	eventStream *eventstream.EventStream, logger *zap.Logger) ([]actor.UnitSpec, error) {
	bmsPlugins, err := plugin.BMSPlugins(cfg.Plugins.BMS, cfg.Plugins.Settings, logger)
	if err != nil {
		return nil, err
	}
	inverterPlugins, err := plugin.InverterPlugins(cfg.Plugins.Inverter, cfg.Plugins.Settings, logger)
	if err != nil {
		return nil, err
	}

	units := make([]actor.UnitSpec, 0, len(cfg.BMS)+len(cfg.Inverters))
	for i, b := range cfg.BMS {
		proto, err := bms.Lookup(b.Vendor)
		if err != nil {
			return nil, err
		}
		engine := service.NewPollEngine(service.PollUnit{
			Name:      b.Name,
			Address:   b.Address,
			PackIndex: i,
			Locator:   b.PortLocator,
			Delay:     time.Duration(b.DelayAfterNoBytesMillis) * time.Millisecond,
			Protocol:  proto,
			Plugins:   bmsPlugins,
		}, registry, storage, logger)
		name, index := b.Name, i
		engine.OnSuccess = func(pack domain.BatteryPack) {
			eventStream.Publish(domain.PackUpdatedEvent{Unit: name, PackIndex: index, Pack: pack})
		}
		units = append(units, actor.UnitSpec{
			Name:     b.Name,
			Kind:     domain.UNIT_KIND_BMS,
			Interval: time.Duration(b.PollIntervalSeconds) * time.Second,
			Runner:   engine,
		})
	}
	for _, inv := range cfg.Inverters {
		proto, err := inverter.Lookup(inv.Vendor)
		if err != nil {
			return nil, err
		}
		engine := service.NewServeEngine(service.ServeUnit{
			Name:     inv.Name,
			Locator:  inv.PortLocator,
			Delay:    time.Duration(inv.DelayAfterNoBytesMillis) * time.Millisecond,
			SOCMode:  domain.SOCMode(inv.SOCMode),
			Protocol: proto,
			Plugins:  inverterPlugins,
		}, registry, storage, logger)
		units = append(units, actor.UnitSpec{
			Name:     inv.Name,
			Kind:     domain.UNIT_KIND_INVERTER,
			Interval: time.Duration(inv.SendIntervalSeconds) * time.Second,
			Runner:   engine,
		})
	}
	return units, nil
}
