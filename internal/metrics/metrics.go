package metrics

import (
	"time"

	"github.com/berfenger/bmsgateway/internal/adapter/transport"
	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics owns the gateway registry.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	modbusTime    *prometheus.HistogramVec
}

func New(storage *domain.EnergyStorage, units []string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed poll and serve cycles by outcome",
		}, []string{"unit", "kind", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll and serve cycles",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"unit", "kind"}),
		modbusTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_request_duration_seconds",
			Help:      "Duration of Modbus requests by function",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewPackCollector(storage, units),
		m.cycles,
		m.cycleDuration,
		m.modbusTime,
	)
	return m
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(e domain.CycleCompletedEvent) {
	kind := string(e.Kind)
	m.cycles.WithLabelValues(e.Unit, kind, e.Outcome.String()).Inc()
	m.cycleDuration.WithLabelValues(e.Unit, kind).Observe(e.Duration.Seconds())
}

// Subscribe feeds cycle events from the stream until the subscription is removed.
func (m *Metrics) Subscribe(es *eventstream.EventStream) *eventstream.Subscription {
	return es.SubscribeWithPredicate(func(evt any) {
		m.ObserveCycle(evt.(domain.CycleCompletedEvent))
	}, func(evt any) bool {
		_, ok := evt.(domain.CycleCompletedEvent)
		return ok
	})
}

// ModbusInstrument times Modbus requests of transport ports.
func (m *Metrics) ModbusInstrument() transport.ModbusInstrument {
	return transport.ModbusInstrument{
		RecordTime: func(fnName string, d time.Duration) {
			m.modbusTime.WithLabelValues(fnName).Observe(d.Seconds())
		},
	}
}
