// Package metrics owns the prometheus registry for chainjobs.
//
// All methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainjobs"

// Tick outcomes.
const (
	TickFired    = "fired"
	TickDisabled = "disabled"
	TickOverlap  = "overlap"
)

type Metrics struct {
	reg *prometheus.Registry

	ticks        *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	taskEnabled  *prometheus.GaugeVec
	toggles      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks by task and outcome.",
		}, []string{"task", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Contract function calls by function and result.",
		}, []string{"function", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Contract function call latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"function"}),
		taskEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_enabled",
			Help:      "1 when the task fires on its ticks.",
		}, []string{"task"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toggles_total",
			Help:      "Task enable/disable requests.",
		}, []string{"task", "state"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.calls, m.callDuration, m.taskEnabled, m.toggles,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveTick(task, outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) ObserveCall(function string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.calls.WithLabelValues(function, result).Inc()
	m.callDuration.WithLabelValues(function).Observe(took.Seconds())
}

func (m *Metrics) SetTaskEnabled(task string, on bool) {
	if m == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	m.taskEnabled.WithLabelValues(task).Set(v)
}

func (m *Metrics) ObserveToggle(task string, on bool) {
	if m == nil {
		return
	}
	state := "stop"
	if on {
		state = "start"
	}
	m.toggles.WithLabelValues(task, state).Inc()
	m.SetTaskEnabled(task, on)
}
