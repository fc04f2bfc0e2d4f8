package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	connActive prometheus.Gauge
	admissions *prometheus.CounterVec
	admitDur   prometheus.Histogram
	balances   *prometheus.CounterVec
	published  *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	identities prometheus.Gauge
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: r,
		httpReqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"},
			[]string{"method", "route", "status"}),
		httpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets},
			[]string{"method", "route", "status"}),
		connActive: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "connections_active"}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "identities_active"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "admissions_total"},
			[]string{"result"}),
		admitDur: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "admission_duration_seconds", Buckets: cfg.Buckets}),
		balances: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "balance_lookups_total"},
			[]string{"source"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "messages_published_total"},
			[]string{"status"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "fanout_deliveries_total"},
			[]string{"status"}),
	}
	r.MustRegister(m.httpReqCnt, m.httpDur, m.connActive, m.identities, m.admissions, m.admitDur,
		m.balances, m.published, m.deliveries)
	return m
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connActive.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connActive.Dec()
}

// ActiveIdentities records the number of registry entries
func (m *Metrics) ActiveIdentities(n int) {
	if m == nil {
		return
	}
	m.identities.Set(float64(n))
}

func (m *Metrics) AdmissionDone(result string, since time.Time) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
	m.admitDur.Observe(time.Since(since).Seconds())
}

// BalanceLookup counts oracle reads by source: cache, ledger or error
func (m *Metrics) BalanceLookup(source string) {
	if m == nil {
		return
	}
	m.balances.WithLabelValues(source).Inc()
}

func (m *Metrics) Published(status string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(status).Inc()
}

// Delivery counts fan-out outcomes: delivered, failed, dropped or malformed
func (m *Metrics) Delivery(status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
