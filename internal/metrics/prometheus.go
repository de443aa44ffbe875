package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMetrics mirrors the collector into a private Prometheus registry.
type promMetrics struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	counters *prometheus.CounterVec
	tokens   *prometheus.CounterVec
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	p := &promMetrics{
		registry: reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnimemory_operation_duration_seconds",
			Help:    "Operation latency in seconds by operation",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"op"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnimemory_events_total",
			Help: "Pipeline, index and task engine event counts by name",
		}, []string{"name"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnimemory_llm_tokens_total",
			Help: "LLM tokens by operation and direction",
		}, []string{"op", "direction"}),
	}
	reg.MustRegister(
		p.duration,
		p.counters,
		p.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// RegisterGauge exposes a value computed on scrape, such as queue depth.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) error {
	return c.prom.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "omnimemory_" + name,
		Help: help,
	}, fn))
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
