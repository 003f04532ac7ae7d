package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the aggregator's collectors.
type Metrics struct {
	reg *prometheus.Registry

	requests    *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	evictions   prometheus.Counter
	saves       *prometheus.CounterVec
	connections prometheus.Gauge
}

// New registers the aggregator collectors on a fresh registry. records and
// clock are sampled at scrape time.
func New(records func() int, clock func() uint64) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_requests_total",
			Help: "Responses written, by request method and status code.",
		}, []string{"method", "code"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_publishes_total",
			Help: "Accepted publishes, by whether the identity was new.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_evictions_total",
			Help: "Records removed because they exceeded the expiry threshold.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_snapshot_saves_total",
			Help: "Snapshot file writes, by outcome.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_active_connections",
			Help: "Connections currently being served.",
		}),
	}

	m.reg.MustRegister(m.requests, m.publishes, m.evictions, m.saves, m.connections)
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aggregator_records",
			Help: "Records currently held in the store.",
		}, func() float64 { return float64(records()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aggregator_lamport_clock",
			Help: "Current Lamport clock value.",
		}, func() float64 { return float64(clock()) }),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Request counts one response. Methods other than PUT and GET share the
// "other" label so clients cannot mint series.
func (m *Metrics) Request(method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(methodLabel(method), strconv.Itoa(code)).Inc()
}

func methodLabel(method string) string {
	switch method {
	case "PUT", "GET":
		return method
	default:
		return "other"
	}
}

// Publish counts one accepted publish.
func (m *Metrics) Publish(created bool) {
	if m == nil {
		return
	}
	result := "replaced"
	if created {
		result = "created"
	}
	m.publishes.WithLabelValues(result).Inc()
}

// Evicted adds n expired records.
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// Saved counts one snapshot write outcome.
func (m *Metrics) Saved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
}

// ConnOpened and ConnClosed track in-flight connections.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}
