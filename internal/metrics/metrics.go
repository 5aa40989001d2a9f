// Package metrics wires the orchestrator's Prometheus collectors, in the
// promauto.NewGaugeVec/NewCounterVec style of the teacher's
// prometheus.go, trimmed from ka9q_ubersdr's noise-floor/digital-mode
// metrics down to the orchestrator concerns: queue depth, device
// claims, process counts, parse/decode throughput, and alert counts.
package metrics

import (
	"log"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Metrics holds every collector the orchestrator exports.
type Metrics struct {
	QueueDepth      *prometheus.GaugeVec
	QueueDropped    *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	DevicesClaimed  prometheus.Gauge
	ProcessesAlive  prometheus.Gauge
	ParseErrors     *prometheus.CounterVec
	DecodedEvents   *prometheus.CounterVec
	AlertsFired     *prometheus.CounterVec
	ModeRunning     *prometheus.GaugeVec
	HostCPUPercent  prometheus.Gauge
	HostMemPercent  prometheus.Gauge
	GoroutineCount  prometheus.Gauge
}

// New registers all collectors against the default registry and returns
// the handle used to update them.
func New() *Metrics {
	m := &Metrics{
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intercept_bus_queue_depth",
			Help: "Current depth of a mode's event bus queue.",
		}, []string{"mode"}),
		QueueDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intercept_bus_queue_dropped_total",
			Help: "Events dropped (oldest-first) due to queue overflow.",
		}, []string{"mode"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intercept_bus_events_published_total",
			Help: "Events published onto a mode's queue.",
		}, []string{"mode", "event_type"}),
		DevicesClaimed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intercept_devices_claimed",
			Help: "Number of SDR devices currently claimed.",
		}),
		ProcessesAlive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intercept_processes_alive",
			Help: "Number of supervised child processes currently running.",
		}),
		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intercept_parse_errors_total",
			Help: "Decoder output lines that failed to parse into a typed event.",
		}, []string{"mode"}),
		DecodedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intercept_decoded_events_total",
			Help: "Successfully parsed decoder events.",
		}, []string{"mode", "event_type"}),
		AlertsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "intercept_alerts_fired_total",
			Help: "Alert rule matches.",
		}, []string{"mode", "severity"}),
		ModeRunning: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intercept_mode_running",
			Help: "1 if the mode controller is running, 0 otherwise.",
		}, []string{"mode"}),
		HostCPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intercept_host_cpu_percent",
			Help: "Host CPU utilisation percent, sampled periodically.",
		}),
		HostMemPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intercept_host_mem_percent",
			Help: "Host memory utilisation percent, sampled periodically.",
		}),
		GoroutineCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "intercept_goroutines",
			Help: "Current goroutine count (reader/monitor threads included).",
		}),
	}
	return m
}

// StartHostSampler periodically samples host CPU/mem and goroutine count,
// grounded on instance_reporter.go's periodic host-stat sampling.
func (m *Metrics) StartHostSampler(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sampleHost()
			}
		}
	}()
}

// ObserveQueueDepth, ObserveDropped, and ObservePublished implement
// bus.Metrics without internal/metrics importing internal/bus.
func (m *Metrics) ObserveQueueDepth(mode string, depth int) {
	m.QueueDepth.WithLabelValues(mode).Set(float64(depth))
}

func (m *Metrics) ObserveDropped(mode string) {
	m.QueueDropped.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObservePublished(mode, eventType string) {
	m.EventsPublished.WithLabelValues(mode, eventType).Inc()
}

func (m *Metrics) sampleHost() {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.HostCPUPercent.Set(pct[0])
	} else if err != nil {
		log.Printf("metrics: cpu sample failed: %v", err)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.HostMemPercent.Set(vm.UsedPercent)
	} else {
		log.Printf("metrics: mem sample failed: %v", err)
	}
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
}
