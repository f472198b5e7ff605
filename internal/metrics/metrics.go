package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the library's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	SignIns    prometheus.Counter
	SignOuts   prometheus.Counter
	Swept      prometheus.Counter
	Present    prometheus.Gauge
	Capacity   prometheus.Gauge
	SeedRows   *prometheus.CounterVec
	Broadcasts *prometheus.CounterVec
}

// New registers the library collectors plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SignIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_signins_total",
			Help: "Visits opened.",
		}),
		SignOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_signouts_total",
			Help: "Visits closed by a sign-out.",
		}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_swept_visits_total",
			Help: "Visits closed by the scheduled sweep.",
		}),
		Present: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_present",
			Help: "People currently signed in.",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_max_capacity",
			Help: "Capacity last set by staff; 0 when unset.",
		}),
		SeedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_seed_rows_total",
			Help: "Seed file rows by outcome.",
		}, []string{"result"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_broadcasts_total",
			Help: "Live-refresh events by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SignIns, m.SignOuts, m.Swept, m.Present, m.Capacity, m.SeedRows, m.Broadcasts,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SignedIn() {
	if m != nil {
		m.SignIns.Inc()
	}
}

func (m *Metrics) SignedOut() {
	if m != nil {
		m.SignOuts.Inc()
	}
}

func (m *Metrics) SweptVisits(n int64) {
	if m != nil {
		m.Swept.Add(float64(n))
	}
}

func (m *Metrics) SetPresent(n int64) {
	if m != nil {
		m.Present.Set(float64(n))
	}
}

func (m *Metrics) SetCapacity(n int64) {
	if m != nil {
		m.Capacity.Set(float64(n))
	}
}

func (m *Metrics) SeedRow(result string) {
	if m != nil {
		m.SeedRows.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Broadcast(kind string) {
	if m != nil {
		m.Broadcasts.WithLabelValues(kind).Inc()
	}
}
