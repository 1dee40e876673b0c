// Package telemetry exports runtime counters to Prometheus.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/bufferpool"
	"tensord/internal/registry"
)

const namespace = "tensord"

// Metrics records compute operations and exposes pool, registry and device
// state. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	bytes          *prometheus.CounterVec
	registryEvents *prometheus.CounterVec
	gpuAvailable   prometheus.Gauge
	deviceCount    prometheus.Gauge

	state *stateCollector
}

// New creates the metric set and registers it with reg. Passing
// prometheus.DefaultRegisterer exposes it on promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compute",
				Name:      "operations_total",
				Help:      "Total number of dispatched tensor operations",
			},
			[]string{"op", "path"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "compute",
				Name:      "operation_duration_seconds",
				Help:      "Duration of tensor operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"op", "path"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "compute",
				Name:      "bytes_processed_total",
				Help:      "Total operand bytes processed by tensor operations",
			},
			[]string{"op", "path"},
		),
		registryEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Model registry lifecycle events",
			},
			[]string{"event"},
		),
		gpuAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "gpu_available",
			Help:      "1 when the native backend is loaded",
		}),
		deviceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "count",
			Help:      "Devices reported by the native backend",
		}),
		state: newStateCollector(),
	}
	reg.MustRegister(m.operations, m.duration, m.bytes, m.registryEvents, m.gpuAvailable, m.deviceCount, m.state)
	return m
}

// RecordOperation counts one dispatched operation.
func (m *Metrics) RecordOperation(op, path string, d time.Duration, bytes uint64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, path).Inc()
	m.duration.WithLabelValues(op, path).Observe(d.Seconds())
	m.bytes.WithLabelValues(op, path).Add(float64(bytes))
}

// Publish counts registry events. It makes Metrics a registry.EventPublisher.
func (m *Metrics) Publish(ev registry.Event) {
	if m == nil {
		return
	}
	m.registryEvents.WithLabelValues(ev.Name).Inc()
}

// SetBackend records the resolver outcome.
func (m *Metrics) SetBackend(loaded bool, devices int) {
	if m == nil {
		return
	}
	if loaded {
		m.gpuAvailable.Set(1)
	} else {
		m.gpuAvailable.Set(0)
	}
	m.deviceCount.Set(float64(devices))
}

// ObservePool exposes pool accounting, read from stats at scrape time.
func (m *Metrics) ObservePool(stats func() bufferpool.Stats) {
	if m == nil {
		return
	}
	m.state.mu.Lock()
	m.state.pool = stats
	m.state.mu.Unlock()
}

// ObserveRegistry exposes registry accounting, read from stats at scrape time.
func (m *Metrics) ObserveRegistry(stats func() registry.Stats) {
	if m == nil {
		return
	}
	m.state.mu.Lock()
	m.state.registry = stats
	m.state.mu.Unlock()
}

// stateCollector reads pool and registry state on every scrape.
type stateCollector struct {
	mu       sync.Mutex
	pool     func() bufferpool.Stats
	registry func() registry.Stats

	poolBuffers     *prometheus.Desc
	poolMax         *prometheus.Desc
	poolBytes       *prometheus.Desc
	poolCounters    *prometheus.Desc
	registryModels  *prometheus.Desc
	registryMax     *prometheus.Desc
	registryBytes   *prometheus.Desc
	registryBudget  *prometheus.Desc
	registryPinned  *prometheus.Desc
	registryLookups *prometheus.Desc
}

func newStateCollector() *stateCollector {
	fq := func(sub, name string) string { return prometheus.BuildFQName(namespace, sub, name) }
	return &stateCollector{
		poolBuffers:     prometheus.NewDesc(fq("bufferpool", "buffers"), "Device buffers by state", []string{"state"}, nil),
		poolMax:         prometheus.NewDesc(fq("bufferpool", "max_buffers"), "Checkout bound of the buffer pool", nil, nil),
		poolBytes:       prometheus.NewDesc(fq("bufferpool", "bytes"), "Device bytes held by the pool by state", []string{"state"}, nil),
		poolCounters:    prometheus.NewDesc(fq("bufferpool", "events_total"), "Buffer pool events", []string{"event"}, nil),
		registryModels:  prometheus.NewDesc(fq("registry", "models"), "Active cached models", nil, nil),
		registryMax:     prometheus.NewDesc(fq("registry", "max_models"), "Configured model count bound", nil, nil),
		registryBytes:   prometheus.NewDesc(fq("registry", "used_bytes"), "Bytes attributed to active models", nil, nil),
		registryBudget:  prometheus.NewDesc(fq("registry", "budget_bytes"), "Configured cache memory budget", nil, nil),
		registryPinned:  prometheus.NewDesc(fq("registry", "pinned_models"), "Active models with outstanding leases", nil, nil),
		registryLookups: prometheus.NewDesc(fq("registry", "lookups_total"), "Registry lookups by result", []string{"result"}, nil),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolBuffers
	ch <- c.poolMax
	ch <- c.poolBytes
	ch <- c.poolCounters
	ch <- c.registryModels
	ch <- c.registryMax
	ch <- c.registryBytes
	ch <- c.registryBudget
	ch <- c.registryPinned
	ch <- c.registryLookups
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	pool, reg := c.pool, c.registry
	c.mu.Unlock()

	if pool != nil {
		s := pool()
		gauge := prometheus.GaugeValue
		counter := prometheus.CounterValue
		ch <- prometheus.MustNewConstMetric(c.poolBuffers, gauge, float64(s.CheckedOut), "checked_out")
		ch <- prometheus.MustNewConstMetric(c.poolBuffers, gauge, float64(s.Free), "free")
		ch <- prometheus.MustNewConstMetric(c.poolMax, gauge, float64(s.MaxBuffers))
		ch <- prometheus.MustNewConstMetric(c.poolBytes, gauge, float64(s.FreeBytes), "free")
		ch <- prometheus.MustNewConstMetric(c.poolBytes, gauge, float64(s.TotalBytes-s.FreeBytes), "checked_out")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.Allocations), "allocation")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.Reuses), "reuse")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.Waits), "wait")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.AllocFailures), "alloc_failure")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.Retired), "retired")
		ch <- prometheus.MustNewConstMetric(c.poolCounters, counter, float64(s.Oversized), "oversized")
	}
	if reg != nil {
		s := reg()
		ch <- prometheus.MustNewConstMetric(c.registryModels, prometheus.GaugeValue, float64(s.Models))
		ch <- prometheus.MustNewConstMetric(c.registryMax, prometheus.GaugeValue, float64(s.MaxCachedModels))
		ch <- prometheus.MustNewConstMetric(c.registryBytes, prometheus.GaugeValue, float64(s.UsedBytes))
		ch <- prometheus.MustNewConstMetric(c.registryBudget, prometheus.GaugeValue, float64(s.MaxCacheMemoryBytes))
		ch <- prometheus.MustNewConstMetric(c.registryPinned, prometheus.GaugeValue, float64(s.Pinned))
		ch <- prometheus.MustNewConstMetric(c.registryLookups, prometheus.CounterValue, float64(s.Hits), "hit")
		ch <- prometheus.MustNewConstMetric(c.registryLookups, prometheus.CounterValue, float64(s.Misses), "miss")
	}
}
